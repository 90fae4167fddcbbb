package notify

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// StockItem is one alert line in a restock message.
type StockItem struct {
	Name    string
	Link    string
	Size    string
	Price   string
	Note    string // "Alert 2/3"
	Colours []string
}

// BuildRestockMessage formats the restock alert for one watch.
func BuildRestockMessage(watchName string, items []StockItem, keywords []string, categoryURL string, now time.Time) string {
	var lines []string
	lines = append(lines, "🏔️ Outlet Restock Alert: "+watchName)
	lines = append(lines, "Time: "+now.Format("2006-01-02 15:04:05"))
	if len(keywords) > 0 {
		lines = append(lines, "Keywords: "+strings.Join(keywords, ", "))
	}
	if categoryURL != "" {
		lines = append(lines, "Category: "+categoryURL)
	}
	lines = append(lines, "")

	for idx, item := range items {
		lines = append(lines, fmt.Sprintf("%d. %s", idx+1, item.Name))
		if item.Size != "" {
			lines = append(lines, "   size: "+item.Size)
		}
		if item.Price != "" {
			lines = append(lines, "   price: "+item.Price)
		}
		if item.Note != "" {
			lines = append(lines, "   note: "+item.Note)
		}
		if len(item.Colours) > 0 {
			lines = append(lines, "   colours: "+strings.Join(item.Colours, ", "))
		}
		if item.Link != "" {
			lines = append(lines, "   "+item.Link)
		}
		lines = append(lines, "")
	}

	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// ErrorLine is one recovered scrape failure for the error summary.
type ErrorLine struct {
	Context string
	Message string
}

// BuildErrorMessage formats the run-error summary: totals, a per-site
// breakdown, and the first few errors verbatim.
func BuildErrorMessage(errs []ErrorLine, logFile string, now time.Time) string {
	var lines []string
	lines = append(lines, "⚠️ Outlet Stock Watch Error")
	lines = append(lines, "Time: "+now.Format("2006-01-02 15:04:05"))
	lines = append(lines, fmt.Sprintf("Errors: %d", len(errs)))

	if bySite := groupBySite(errs); len(bySite) > 0 {
		parts := make([]string, 0, len(bySite))
		for _, site := range bySiteKeys(bySite) {
			parts = append(parts, fmt.Sprintf("%s: %d", site, bySite[site]))
		}
		lines = append(lines, "Sites: "+strings.Join(parts, " | "))
	}

	lines = append(lines, "", "Top errors:")
	for _, e := range errs[:min(len(errs), 10)] {
		msg := strings.Join(strings.Fields(e.Message), " ")
		if len(msg) > 300 {
			msg = msg[:297] + "..."
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", e.Context, msg))
	}

	lines = append(lines, "", "Possible causes: network issues, rate limiting/blocking (HTTP 403/429), or site changes.")
	if logFile != "" {
		lines = append(lines, "Log: "+logFile)
	}
	return strings.Join(lines, "\n")
}

// groupBySite counts errors per registrable domain so an operator can see
// at a glance whether one storefront or the whole network is unhappy.
func groupBySite(errs []ErrorLine) map[string]int {
	counts := make(map[string]int)
	for _, e := range errs {
		if site := registrableDomain(e.Context); site != "" {
			counts[site]++
		}
	}
	return counts
}

func bySiteKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// registrableDomain extracts the eTLD+1 of the first URL in the text.
func registrableDomain(text string) string {
	i := strings.Index(text, "http")
	if i < 0 {
		return ""
	}
	raw := text[i:]
	if j := strings.IndexAny(raw, " \t"); j >= 0 {
		raw = raw[:j]
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	domain, err := publicsuffix.Domain(u.Hostname())
	if err != nil {
		return u.Hostname()
	}
	return domain
}

// CatalogItem is one product in a catalog update message.
type CatalogItem struct {
	Name  string
	Price string
	Link  string
}

// PriceChange pairs a product with its old and new prices.
type PriceChange struct {
	Item     CatalogItem
	OldPrice string
	NewPrice string
}

// BuildCatalogMessage formats the catalog update: new items, price
// changes, removals. Returns "" when there is nothing to say.
func BuildCatalogMessage(added, removed []CatalogItem, priceChanges []PriceChange, now time.Time) string {
	var parts []string
	if len(added) > 0 {
		parts = append(parts, fmt.Sprintf("🆕 New items %d", len(added)))
	}
	if len(priceChanges) > 0 {
		parts = append(parts, fmt.Sprintf("💰 Price changes %d", len(priceChanges)))
	}
	if len(removed) > 0 {
		parts = append(parts, fmt.Sprintf("📦 Removed %d", len(removed)))
	}
	if len(parts) == 0 {
		return ""
	}

	var lines []string
	lines = append(lines, "🏔️ Outlet Update")
	lines = append(lines, "Time: "+now.Format("2006-01-02 15:04:05"))
	lines = append(lines, "Summary: "+strings.Join(parts, " | "))

	if len(added) > 0 {
		lines = append(lines, "", "🆕 New items:")
		for _, p := range added[:min(len(added), 10)] {
			lines = append(lines, fmt.Sprintf("- %s (%s)", orNA(p.Name), orNA(p.Price)))
			if p.Link != "" {
				lines = append(lines, "  "+p.Link)
			}
		}
	}

	if len(priceChanges) > 0 {
		lines = append(lines, "", "💰 Price changes:")
		for _, c := range priceChanges[:min(len(priceChanges), 10)] {
			lines = append(lines, fmt.Sprintf("- %s: %s → %s", orNA(c.Item.Name), orNA(c.OldPrice), orNA(c.NewPrice)))
			if c.Item.Link != "" {
				lines = append(lines, "  "+c.Item.Link)
			}
		}
	}

	if len(removed) > 0 {
		lines = append(lines, "", "📦 Removed items:")
		for _, p := range removed[:min(len(removed), 10)] {
			lines = append(lines, "- "+orNA(p.Name))
		}
	}

	return strings.Join(lines, "\n")
}

// FormatPrice renders a price for messages; whole amounts drop the cents.
func FormatPrice(currency string, value float64) string {
	if value == 0 {
		return ""
	}
	amount := fmt.Sprintf("$%.2f", value)
	if value == math.Trunc(value) {
		amount = fmt.Sprintf("$%.0f", value)
	}
	if currency != "" {
		return currency + " " + amount
	}
	return amount
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
