// Package scrape is the snapshot source: it turns watch definitions into
// observed stock facts by rendering category pages, fetching product
// pages, and decoding the embedded product JSON. Individual failures are
// collected as ScrapeErrors; a snapshot never fails as a whole.
package scrape

import (
	"context"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/outletwatch/outletwatch/internal/utils"
	"github.com/outletwatch/outletwatch/pkg/config"
	"github.com/outletwatch/outletwatch/pkg/reconcile"
	"github.com/outletwatch/outletwatch/pkg/whttp"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Scraper fetches stock snapshots. Product pages go through the retrying
// HTTP client; category pages go through the rendering Browser.
type Scraper struct {
	Client      *retryablehttp.Client
	Browser     Browser
	BrowserOpts BrowserOptions
	Now         func() time.Time // defaults to time.Now
	Log         Logger           // optional; nil = no logging
}

// Snapshot observes every watch sequentially and returns all facts plus
// all recovered errors. Sequential on purpose: the storefront WAF-bans
// aggressive request rates.
func (s *Scraper) Snapshot(ctx context.Context, watches []config.Watch) ([]reconcile.ObservedFact, []ScrapeError) {
	log := s.Log
	if log == nil {
		log = nopLogger{}
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	var facts []reconcile.ObservedFact
	var errs []ScrapeError

	for _, watch := range watches {
		if ctx.Err() != nil {
			break
		}

		productURLs, watchErrs := s.productURLsForWatch(ctx, watch, log)
		errs = append(errs, watchErrs...)

		if watch.MaxProducts > 0 && len(productURLs) > watch.MaxProducts {
			productURLs = productURLs[:watch.MaxProducts]
		}

		log.Infof("[%s] Products to check: %d", watch.Name, len(productURLs))
		log.Debugf("[%s] Keywords: %v, target sizes: %v", watch.Name, watch.Keywords, watch.Sizes)

		for _, u := range productURLs {
			if ctx.Err() != nil {
				break
			}
			productFacts, err := s.checkProduct(watch, u, now())
			if err != nil {
				errs = append(errs, *err)
				log.Warnf("%s", err.Error())
				continue
			}
			facts = append(facts, productFacts...)
		}
	}

	return facts, errs
}

// productURLsForWatch resolves the watch to a concrete product URL list,
// scraping and prefiltering the category page when needed.
func (s *Scraper) productURLsForWatch(ctx context.Context, watch config.Watch, log Logger) ([]string, []ScrapeError) {
	if len(watch.ProductURLs) > 0 {
		return watch.ProductURLs, nil
	}

	log.Infof("[%s] Scraping product URLs from category page: %s", watch.Name, watch.CategoryURL)

	pageHTML, err := s.Browser.FetchRenderedHTML(ctx, watch.CategoryURL, s.BrowserOpts)
	if err != nil {
		return nil, []ScrapeError{scrapeErr(KindNetwork, watch.Name, watch.CategoryURL, "category scrape failed: %v", err)}
	}

	tiles, err := ParseCategoryTiles(pageHTML)
	if err != nil {
		return nil, []ScrapeError{scrapeErr(KindParse, watch.Name, watch.CategoryURL, "category parse failed: %v", err)}
	}

	var errs []ScrapeError
	if len(tiles) == 0 {
		errs = append(errs, scrapeErr(KindParse, watch.Name, watch.CategoryURL,
			"no products found on category page (possible blocking or page structure change)"))
	}

	if len(watch.Keywords) > 0 && !watch.NoCategoryPrefilter {
		filtered := tiles[:0]
		for _, t := range tiles {
			if TileMatchesKeywords(t, watch.Keywords) {
				filtered = append(filtered, t)
			}
		}
		log.Infof("[%s] Category items: %d, keyword matches: %d", watch.Name, len(tiles), len(filtered))
		tiles = filtered
	} else {
		log.Infof("[%s] Category items: %d (no keyword prefilter)", watch.Name, len(tiles))
	}

	urls := make([]string, 0, len(tiles))
	for _, t := range tiles {
		urls = append(urls, resolveURL(watch.CategoryURL, t.ProductURL))
	}
	return utils.DedupeStrings(urls), errs
}

// checkProduct fetches one product page and computes a fact per target
// size. Returns nil facts with no error when the product simply doesn't
// match the keywords.
func (s *Scraper) checkProduct(watch config.Watch, productURL string, now time.Time) ([]reconcile.ObservedFact, *ScrapeError) {
	res, err := whttp.SendHTTPRequest(&whttp.WHTTPReq{URL: productURL}, s.Client)
	if err != nil {
		e := scrapeErr(KindNetwork, watch.Name, productURL, "request error: %v", err)
		return nil, &e
	}
	if res.StatusCode >= 400 {
		e := scrapeErr(classifyStatus(res.StatusCode), watch.Name, productURL, "HTTP %d", res.StatusCode)
		return nil, &e
	}

	product, ok := extractProductJSON(res.BodyString)
	if !ok {
		e := scrapeErr(KindParse, watch.Name, productURL, "unable to parse product JSON (missing __NEXT_DATA__ or product payload)")
		return nil, &e
	}

	if !productMatchesKeywords(product, watch.Keywords) {
		return nil, nil
	}

	facts := make([]reconcile.ObservedFact, 0, len(watch.Sizes))
	for _, size := range watch.Sizes {
		facts = append(facts, stockForSize(product, watch.Name, productURL, size, res.HTTPTitle, now))
	}
	return facts, nil
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
