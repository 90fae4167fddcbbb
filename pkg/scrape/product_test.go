package scrape

import (
	"fmt"
	"testing"
	"time"
)

const productJSON = `{
	"id": "X000006789",
	"slug": "aerios-fl-2-gtx-shoe",
	"name": "Aerios FL 2 GTX Shoe",
	"marketingName": "Aerios FL 2 GTX Shoe Men's",
	"shortDescription": "Fast-and-light hiking shoe.",
	"description": "<p>Waterproof GORE-TEX hiking shoe.</p>",
	"currencyCode": "CAD",
	"price": 200,
	"discountPrice": 140,
	"sizeOptions": {"options": [
		{"label": "8", "value": "SZ8"},
		{"label": "8.5", "value": "SZ85"},
		{"label": "9", "value": "SZ9"}
	]},
	"colourOptions": {"options": [
		{"label": "Black Sapphire", "value": "C1"},
		{"label": "Forage", "value": "C2"}
	]},
	"variants": [
		{"sizeId": "SZ8", "colourId": "C1", "stockStatus": "InStock"},
		{"sizeId": "SZ8", "colourId": "C2", "stockStatus": "OutOfStock"},
		{"sizeId": "SZ85", "colourId": "C1", "stockStatus": "OutOfStock"},
		{"sizeId": "SZ9", "colourId": "C2", "stockStatus": "LowStock"}
	]
}`

func pageWithNextData(inner string) string {
	return fmt.Sprintf(`<html><head><title>Aerios FL 2 GTX Shoe | Outlet</title></head><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"product":%s}}}</script>
</body></html>`, inner)
}

func TestExtractProductJSON(t *testing.T) {
	product, ok := extractProductJSON(pageWithNextData(productJSON))
	if !ok {
		t.Fatal("product payload not found")
	}
	if got := product.Get("id").String(); got != "X000006789" {
		t.Errorf("id = %q", got)
	}
}

func TestExtractProductJSONStringEncoded(t *testing.T) {
	// Some page builds embed the product as a JSON string.
	encoded := fmt.Sprintf("%q", `{"id":"p1","name":"Embedded"}`)
	product, ok := extractProductJSON(pageWithNextData(encoded))
	if !ok {
		t.Fatal("string-encoded payload not found")
	}
	if got := product.Get("name").String(); got != "Embedded" {
		t.Errorf("name = %q", got)
	}
}

func TestExtractProductJSONMissing(t *testing.T) {
	if _, ok := extractProductJSON("<html><body>maintenance</body></html>"); ok {
		t.Fatal("expected no payload")
	}
	if _, ok := extractProductJSON(pageWithNextData("null")); ok {
		t.Fatal("null product should not count as found")
	}
}

func TestStockForSize(t *testing.T) {
	product, ok := extractProductJSON(pageWithNextData(productJSON))
	if !ok {
		t.Fatal("setup: payload not found")
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fact := stockForSize(product, "footwear", "https://outlet.example.com/shop/aerios", "8", "", now)
	if !fact.InStock {
		t.Error("size 8 should be in stock")
	}
	if len(fact.InStockColours) != 1 || fact.InStockColours[0] != "Black Sapphire" {
		t.Errorf("colours = %v", fact.InStockColours)
	}
	if fact.ProductID != "X000006789" || fact.Currency != "CAD" || fact.DiscountPrice != 140 {
		t.Errorf("fact fields wrong: %+v", fact)
	}

	// 8.5 exists but is sold out in every colour.
	fact = stockForSize(product, "footwear", "https://outlet.example.com/shop/aerios", "8.5", "", now)
	if fact.InStock {
		t.Error("size 8.5 should be out of stock")
	}

	// LowStock counts as available.
	fact = stockForSize(product, "footwear", "https://outlet.example.com/shop/aerios", "9", "", now)
	if !fact.InStock || fact.InStockColours[0] != "Forage" {
		t.Errorf("size 9 low stock not detected: %+v", fact)
	}

	// A size the product doesn't carry at all.
	fact = stockForSize(product, "footwear", "https://outlet.example.com/shop/aerios", "13", "", now)
	if fact.InStock {
		t.Error("unknown size should be out of stock")
	}
}

func TestStockForSizeFallbacks(t *testing.T) {
	product, _ := extractProductJSON(pageWithNextData(`{"slug":"some-shoe"}`))
	fact := stockForSize(product, "w", "https://outlet.example.com/shop/some-shoe", "8", "Some Shoe | Outlet", time.Now())
	if fact.ProductID != "some-shoe" {
		t.Errorf("expected slug fallback, got %q", fact.ProductID)
	}
	if fact.ProductName != "Some Shoe | Outlet" {
		t.Errorf("expected title fallback, got %q", fact.ProductName)
	}
}

func TestProductMatchesKeywords(t *testing.T) {
	product, _ := extractProductJSON(pageWithNextData(productJSON))
	if !productMatchesKeywords(product, []string{"gore-tex"}) {
		t.Error("gore-tex should match description text")
	}
	if productMatchesKeywords(product, []string{"parka"}) {
		t.Error("parka should not match")
	}
	if !productMatchesKeywords(product, nil) {
		t.Error("no keywords should match everything")
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]ErrorKind{
		403: KindBlocked,
		429: KindBlocked,
		408: KindTimeout,
		504: KindTimeout,
		500: KindNetwork,
		404: KindNetwork,
	}
	for status, want := range cases {
		if got := classifyStatus(status); got != want {
			t.Errorf("classifyStatus(%d) = %s, want %s", status, got, want)
		}
	}
}
