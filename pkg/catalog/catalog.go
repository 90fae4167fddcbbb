// Package catalog detects category-level changes between runs: new
// products, removed products, and price changes. It keeps its own JSON
// baseline file per watch, separate from the stock state.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/outletwatch/outletwatch/pkg/scrape"
)

// Product is one catalog entry in the baseline.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price,omitempty"`
	Link  string `json:"link"`
}

// baselineDoc is the on-disk format.
type baselineDoc struct {
	Products  []Product `json:"products"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// ProductsFromTiles converts scraped category tiles into catalog entries,
// keyed by the product slug.
func ProductsFromTiles(tiles []scrape.Tile) []Product {
	out := make([]Product, 0, len(tiles))
	for _, t := range tiles {
		id := slugOf(t.ProductURL)
		if id == "" {
			id = t.ProductURL
		}
		out = append(out, Product{ID: id, Name: t.Name, Price: t.Price, Link: t.ProductURL})
	}
	return out
}

func slugOf(u string) string {
	u = trimRightSlash(u)
	for i := len(u) - 1; i >= 0; i-- {
		if u[i] == '/' {
			return u[i+1:]
		}
	}
	return u
}

func trimRightSlash(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

// LoadBaseline reads the baseline products. A missing file returns nil
// with no error (first run); a corrupt file returns the cause so the
// caller can warn and rebuild.
func LoadBaseline(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read baseline %s: %w", path, err)
	}
	var doc baselineDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	return doc.Products, nil
}

// SaveBaseline writes the baseline atomically (temp file + rename).
func SaveBaseline(path string, products []Product) error {
	doc := baselineDoc{Products: products, Count: len(products), Timestamp: time.Now().UTC().Truncate(time.Second)}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create baseline directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// PriceChange pairs a product with its old and new display prices.
type PriceChange struct {
	Product  Product
	OldPrice string
	NewPrice string
}

// Changes is the diff between two catalog snapshots.
type Changes struct {
	Added        []Product
	Removed      []Product
	PriceChanges []PriceChange
}

func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.PriceChanges) == 0
}

// Compare diffs old and new products by ID. Price changes only count when
// both sides carry a price: a tile that failed to render its price block
// must not look like a price drop.
func Compare(oldProducts, newProducts []Product) Changes {
	oldByID := indexByID(oldProducts)
	newByID := indexByID(newProducts)

	var changes Changes
	for _, p := range newProducts {
		if _, ok := oldByID[p.ID]; !ok {
			changes.Added = append(changes.Added, p)
		}
	}
	for _, p := range oldProducts {
		if _, ok := newByID[p.ID]; !ok {
			changes.Removed = append(changes.Removed, p)
		}
	}
	for _, newP := range newProducts {
		oldP, ok := oldByID[newP.ID]
		if !ok {
			continue
		}
		if oldP.Price != "" && newP.Price != "" && oldP.Price != newP.Price {
			changes.PriceChanges = append(changes.PriceChanges, PriceChange{Product: newP, OldPrice: oldP.Price, NewPrice: newP.Price})
		}
	}
	return changes
}

func indexByID(products []Product) map[string]Product {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		if p.ID != "" {
			m[p.ID] = p
		}
	}
	return m
}

// NotifyFilter enables/disables change classes in notifications.
type NotifyFilter struct {
	Added        bool
	Removed      bool
	PriceChanges bool
}

// Filter drops disabled change classes.
func (c Changes) Filter(f NotifyFilter) Changes {
	if !f.Added {
		c.Added = nil
	}
	if !f.Removed {
		c.Removed = nil
	}
	if !f.PriceChanges {
		c.PriceChanges = nil
	}
	return c
}
