package scrape

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/outletwatch/outletwatch/internal/utils"
	"github.com/outletwatch/outletwatch/pkg/reconcile"
)

// inStockStatuses are the variant stockStatus values that count as
// available.
var inStockStatuses = map[string]bool{
	"InStock":  true,
	"LowStock": true,
}

// extractProductJSON pulls the embedded product payload out of a product
// page. The outlet is a Next.js app: the interesting data sits in a
// `<script id="__NEXT_DATA__" type="application/json">` blob at
// props.pageProps.product, either as an object or as a JSON string.
func extractProductJSON(pageHTML string) (gjson.Result, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return gjson.Result{}, false
	}

	var product gjson.Result
	found := false
	doc.Find("#__NEXT_DATA__").Each(func(index int, s *goquery.Selection) {
		if found {
			return
		}
		blob := gjson.Get(s.Contents().Text(), "props.pageProps.product")
		switch blob.Type {
		case gjson.JSON:
			product = blob
			found = true
		case gjson.String:
			// Some page builds double-encode the product payload.
			inner := gjson.Parse(blob.Str)
			if inner.Type == gjson.JSON {
				product = inner
				found = true
			}
		}
	})
	return product, found
}

// productMatchesKeywords checks the product's name and marketing copy for
// any of the watch keywords.
func productMatchesKeywords(product gjson.Result, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.Join([]string{
		product.Get("name").String(),
		product.Get("marketingName").String(),
		product.Get("shortDescription").String(),
		utils.StripHTML(product.Get("description").String()),
	}, " ")
	return utils.MatchesAnyKeyword(haystack, keywords)
}

// stockForSize computes one observed fact: whether the target size is
// available in any colour. Variants reference sizes and colours by ID, so
// the size option labels are resolved first.
func stockForSize(product gjson.Result, watch, productURL, sizeLabel, fallbackName string, now time.Time) reconcile.ObservedFact {
	productID := product.Get("id").String()
	if productID == "" {
		productID = product.Get("slug").String()
	}
	if productID == "" {
		productID = productURL
	}

	name := product.Get("name").String()
	if name == "" {
		name = fallbackName
	}
	if name == "" {
		name = productID
	}

	sizeIDs := make(map[string]bool)
	for _, opt := range product.Get("sizeOptions.options").Array() {
		label := opt.Get("label").String()
		value := opt.Get("value")
		if label == "" || !value.Exists() {
			continue
		}
		if utils.SizeLabelMatches(label, sizeLabel) {
			sizeIDs[value.String()] = true
		}
	}

	colourLabels := make(map[string]string)
	for _, opt := range product.Get("colourOptions.options").Array() {
		value := opt.Get("value")
		label := opt.Get("label").String()
		if !value.Exists() || label == "" {
			continue
		}
		colourLabels[value.String()] = label
	}

	var inStockColours []string
	for _, variant := range product.Get("variants").Array() {
		sizeID := variant.Get("sizeId")
		if !sizeID.Exists() || !sizeIDs[sizeID.String()] {
			continue
		}
		if !inStockStatuses[variant.Get("stockStatus").String()] {
			continue
		}
		colourID := variant.Get("colourId").String()
		label := colourLabels[colourID]
		if label == "" {
			label = colourID
		}
		if label == "" {
			label = "Unknown"
		}
		inStockColours = append(inStockColours, label)
	}
	inStockColours = utils.DedupeStrings(inStockColours)

	return reconcile.ObservedFact{
		Watch:          watch,
		ProductID:      productID,
		ProductURL:     productURL,
		ProductName:    name,
		SizeLabel:      sizeLabel,
		InStock:        len(inStockColours) > 0,
		Currency:       product.Get("currencyCode").String(),
		Price:          product.Get("price").Float(),
		DiscountPrice:  product.Get("discountPrice").Float(),
		InStockColours: inStockColours,
		ObservedAt:     now,
	}
}
