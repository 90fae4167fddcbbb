package scrape

import "testing"

const categoryHTML = `<html><body>
<div class="grid">
  <div class="tile">
    <div class="product-tile-name">Aerios FL 2 GTX Shoe</div>
    <div data-component="body2">Fast-and-light waterproof hiking shoe</div>
    <div class="qa--product-tile__prices"><span>CA$140</span> <span>CA$200</span></div>
    <a href="/ca/en/shop/mens/aerios-fl-2-gtx-shoe?colour=black"><img/></a>
  </div>
  <div class="tile">
    <div class="product-tile-name">Norvan LD 3 Shoe</div>
    <a href="/ca/en/shop/mens/norvan-ld-3-shoe"><img/></a>
  </div>
  <div class="tile">
    <a href="/ca/en/shop/mens/norvan-ld-3-shoe"><img/></a>
  </div>
  <div class="tile">
    <a href="/ca/en/help/returns">not a product</a>
  </div>
</div>
</body></html>`

func TestParseCategoryTiles(t *testing.T) {
	tiles, err := ParseCategoryTiles(categoryHTML)
	if err != nil {
		t.Fatal(err)
	}
	if len(tiles) != 2 {
		t.Fatalf("expected 2 unique product tiles, got %d: %+v", len(tiles), tiles)
	}

	if tiles[0].Name != "Aerios FL 2 GTX Shoe" {
		t.Errorf("tile name = %q", tiles[0].Name)
	}
	if tiles[0].Description == "" {
		t.Error("tile description not picked up from ancestor")
	}
	if tiles[0].ProductURL != "/ca/en/shop/mens/aerios-fl-2-gtx-shoe" {
		t.Errorf("query string not stripped: %q", tiles[0].ProductURL)
	}
	if tiles[0].Price != "CA$140 CA$200" {
		t.Errorf("tile price = %q", tiles[0].Price)
	}
	if tiles[1].Price != "" {
		t.Errorf("tile without a price block got %q", tiles[1].Price)
	}
}

func TestParseCategoryTilesSlugFallback(t *testing.T) {
	tiles, err := ParseCategoryTiles(`<html><body><a href="/shop/some-jacket"></a></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	if len(tiles) != 1 || tiles[0].Name != "some-jacket" {
		t.Fatalf("expected slug fallback name, got %+v", tiles)
	}
}

func TestTileMatchesKeywords(t *testing.T) {
	tile := Tile{Name: "Aerios FL 2 GTX Shoe", Description: "Waterproof hiker"}
	if !TileMatchesKeywords(tile, []string{"gtx"}) {
		t.Error("gtx should match tile name")
	}
	if !TileMatchesKeywords(tile, []string{"waterproof"}) {
		t.Error("waterproof should match tile description")
	}
	if TileMatchesKeywords(tile, []string{"down"}) {
		t.Error("down should not match")
	}
	if !TileMatchesKeywords(tile, nil) {
		t.Error("no keywords should match everything")
	}
}

func TestResolveURL(t *testing.T) {
	got := resolveURL("https://outlet.example.com/ca/en/c/mens/footwear", "/ca/en/shop/mens/aerios")
	if got != "https://outlet.example.com/ca/en/shop/mens/aerios" {
		t.Errorf("resolveURL = %q", got)
	}
	got = resolveURL("https://outlet.example.com/c/x", "https://other.example.com/shop/y")
	if got != "https://other.example.com/shop/y" {
		t.Errorf("absolute ref mangled: %q", got)
	}
}
