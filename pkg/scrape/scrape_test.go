package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/outletwatch/outletwatch/pkg/config"
	"github.com/outletwatch/outletwatch/pkg/whttp"
)

func testScraper(browser Browser) *Scraper {
	return &Scraper{
		Client:  whttp.NewClient(whttp.RetryPolicy{MaxRetries: 0, Timeout: 5 * time.Second}),
		Browser: browser,
		Now:     func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

type fakeBrowser struct {
	html string
	err  error
}

func (f fakeBrowser) FetchRenderedHTML(context.Context, string, BrowserOptions) (string, error) {
	return f.html, f.err
}

func TestSnapshotDirectProductURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shop/aerios":
			w.Write([]byte(pageWithNextData(productJSON)))
		case "/shop/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	watch := config.Watch{
		Name:        "footwear",
		ProductURLs: []string{srv.URL + "/shop/aerios", srv.URL + "/shop/gone"},
		Keywords:    []string{"gtx"},
		Sizes:       []string{"8", "9"},
	}

	facts, errs := testScraper(nil).Snapshot(context.Background(), []config.Watch{watch})

	// One product resolved into one fact per size; the 404 became an error
	// without aborting the snapshot.
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts, got %d: %+v", len(facts), facts)
	}
	if facts[0].SizeLabel != "8" || !facts[0].InStock {
		t.Errorf("unexpected first fact: %+v", facts[0])
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 scrape error, got %+v", errs)
	}
}

func TestSnapshotKeywordMismatchIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageWithNextData(productJSON)))
	}))
	defer srv.Close()

	watch := config.Watch{
		Name:        "parkas",
		ProductURLs: []string{srv.URL + "/shop/aerios"},
		Keywords:    []string{"down parka"},
		Sizes:       []string{"8"},
	}
	facts, errs := testScraper(nil).Snapshot(context.Background(), []config.Watch{watch})
	if len(facts) != 0 || len(errs) != 0 {
		t.Fatalf("keyword mismatch should be silent: facts=%v errs=%v", facts, errs)
	}
}

func TestSnapshotCategoryDiscovery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageWithNextData(productJSON)))
	}))
	defer srv.Close()

	category := `<html><body>
<div><div class="product-tile-name">Aerios FL 2 GTX Shoe</div><a href="` + srv.URL + `/shop/aerios"></a></div>
<div><div class="product-tile-name">Atom Hoody</div><a href="` + srv.URL + `/shop/atom"></a></div>
</body></html>`

	watch := config.Watch{
		Name:        "footwear",
		CategoryURL: srv.URL + "/c/mens/footwear",
		Keywords:    []string{"gtx"},
		Sizes:       []string{"8"},
	}

	// The prefilter drops the Atom Hoody tile, so only one product page is
	// fetched.
	facts, errs := testScraper(fakeBrowser{html: category}).Snapshot(context.Background(), []config.Watch{watch})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(facts) != 1 || facts[0].ProductID != "X000006789" {
		t.Fatalf("expected 1 fact from filtered tile, got %+v", facts)
	}
}

func TestSnapshotCategoryFailureIsRecovered(t *testing.T) {
	watch := config.Watch{
		Name:        "footwear",
		CategoryURL: "https://outlet.example.com/c/mens/footwear",
		Sizes:       []string{"8"},
	}
	facts, errs := testScraper(fakeBrowser{err: context.DeadlineExceeded}).Snapshot(context.Background(), []config.Watch{watch})
	if len(facts) != 0 {
		t.Fatalf("expected no facts, got %+v", facts)
	}
	if len(errs) != 1 || errs[0].Kind != KindNetwork {
		t.Fatalf("expected one network error, got %+v", errs)
	}
}

func TestSnapshotMaxProductsCap(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(pageWithNextData(productJSON)))
	}))
	defer srv.Close()

	watch := config.Watch{
		Name:        "footwear",
		ProductURLs: []string{srv.URL + "/shop/a", srv.URL + "/shop/b", srv.URL + "/shop/c"},
		MaxProducts: 1,
		Sizes:       []string{"8"},
	}
	testScraper(nil).Snapshot(context.Background(), []config.Watch{watch})
	if hits != 1 {
		t.Fatalf("expected 1 fetch with max_products=1, got %d", hits)
	}
}
