package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/outletwatch/outletwatch/internal/utils"
)

// Tile is one product teaser scraped from a rendered category page.
type Tile struct {
	ProductURL  string
	Name        string
	Description string
	Price       string // display price, e.g. "CA$140", as shown on the tile
}

// TileMatchesKeywords is the cheap prefilter applied before fetching a
// product page. Tiles carry less copy than product pages, so a miss here
// can be overridden with no_category_prefilter.
func TileMatchesKeywords(tile Tile, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	return utils.MatchesAnyKeyword(tile.Name+" "+tile.Description, keywords)
}

// BrowserOptions controls category page rendering.
type BrowserOptions struct {
	Show        bool
	RenderWait  time.Duration
	ScrollTimes int
}

// Browser renders a JS-driven page and returns the final DOM. The category
// page loads its tiles client-side, so a plain GET returns nothing useful.
type Browser interface {
	FetchRenderedHTML(ctx context.Context, pageURL string, opts BrowserOptions) (string, error)
}

// RodBrowser renders pages with a headless Chrome driven through rod, with
// stealth patches applied so the storefront doesn't serve the bot page.
type RodBrowser struct{}

func (RodBrowser) FetchRenderedHTML(ctx context.Context, pageURL string, opts BrowserOptions) (string, error) {
	l := launcher.New().
		Headless(!opts.Show).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("window-size", "1920,1080")

	wsURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx)

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", pageURL, err)
	}

	if err := sleepCtx(ctx, opts.RenderWait); err != nil {
		return "", err
	}
	for i := 0; i < opts.ScrollTimes; i++ {
		if _, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			break
		}
		if err := sleepCtx(ctx, 2*time.Second); err != nil {
			return "", err
		}
	}

	res, err := page.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("read DOM %s: %w", pageURL, err)
	}
	return res.Value.Str(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// tileNameSelector and tileDescSelector match the storefront's tile markup
// across its CSS-module class name variants.
const (
	tileNameSelector  = ".product-tile-name, [class*='product-tile-name'], [class*='tile-name']"
	tileDescSelector  = "[data-component='body1'], [data-component='body2'], [class*='subtitle'], [class*='description']"
	tilePriceSelector = ".qa--product-tile__prices, [class*='price']"
)

// ParseCategoryTiles extracts unique product tiles from rendered category
// page HTML. Tile name and description live on ancestor nodes of the
// product link, a few levels up.
func ParseCategoryTiles(pageHTML string) ([]Tile, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse category page: %w", err)
	}

	var tiles []Tile
	seen := make(map[string]bool)

	doc.Find(`a[href*="/shop/"]`).Each(func(index int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !strings.Contains(href, "/shop/") {
			return
		}
		if i := strings.IndexByte(href, '?'); i >= 0 {
			href = href[:i]
		}
		if seen[href] {
			return
		}
		seen[href] = true

		var name, description, price string
		node := s
		for depth := 0; depth < 8; depth++ {
			node = node.Parent()
			if node.Length() == 0 {
				break
			}
			// Stop before the grid: an ancestor spanning several product
			// links would leak a neighbour's name or price into this tile.
			if node.Find(`a[href*="/shop/"]`).Length() > 1 {
				break
			}

			if name == "" {
				node.Find(tileNameSelector).EachWithBreak(func(_ int, ne *goquery.Selection) bool {
					if t := strings.TrimSpace(ne.Text()); t != "" {
						name = t
						return false
					}
					return true
				})
			}

			if description == "" {
				best := ""
				node.Find(tileDescSelector).Each(func(_ int, de *goquery.Selection) {
					if t := strings.TrimSpace(de.Text()); len(t) > len(best) {
						best = t
					}
				})
				description = best
			}

			if price == "" {
				if pe := node.Find(tilePriceSelector).First(); pe.Length() > 0 {
					price = strings.Join(strings.Fields(pe.Text()), " ")
				}
			}

			if name != "" && description != "" && price != "" {
				break
			}
		}

		if name == "" {
			name = slugFromURL(href)
		}

		tiles = append(tiles, Tile{ProductURL: href, Name: name, Description: description, Price: price})
	})

	return tiles, nil
}

func slugFromURL(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		return u[i+1:]
	}
	return u
}
