package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/outletwatch/outletwatch/internal/utils"
	"github.com/outletwatch/outletwatch/pkg/catalog"
	"github.com/outletwatch/outletwatch/pkg/config"
	"github.com/outletwatch/outletwatch/pkg/notify"
	"github.com/outletwatch/outletwatch/pkg/scrape"
)

// catalogCmd implements: outletwatch catalog
//
// Watches the category page itself rather than individual sizes: new
// products, removed products, price changes. Keeps its own baseline file
// next to the stock state.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Diff the category page against the last run and alert on changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromViper(viper.GetViper())
		if err != nil {
			return err
		}

		categoryURL, _ := cmd.Flags().GetString("category-url")
		if categoryURL == "" {
			for _, w := range cfg.Watches {
				if w.CategoryURL != "" {
					categoryURL = w.CategoryURL
					break
				}
			}
		}
		if categoryURL == "" {
			return fmt.Errorf("no category page: pass --category-url or configure a watch with one")
		}

		baselinePath, _ := cmd.Flags().GetString("baseline-file")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		browser := scrape.RodBrowser{}
		opts := scrape.BrowserOptions{
			Show:        cfg.Browser.Show,
			RenderWait:  time.Duration(cfg.Browser.RenderWaitSeconds) * time.Second,
			ScrollTimes: cfg.Browser.ScrollTimes,
		}

		utils.Log.Infof("Rendering category page: %s", categoryURL)
		pageHTML, err := browser.FetchRenderedHTML(cmd.Context(), categoryURL, opts)
		if err != nil {
			return fmt.Errorf("render category page: %w", err)
		}
		tiles, err := scrape.ParseCategoryTiles(pageHTML)
		if err != nil {
			return err
		}
		if len(tiles) == 0 {
			return fmt.Errorf("category page yielded no product tiles; site layout may have changed")
		}
		current := catalog.ProductsFromTiles(tiles)
		utils.Log.Infof("Category has %d products", len(current))

		baseline, err := catalog.LoadBaseline(baselinePath)
		if err != nil {
			utils.Log.Warnf("Baseline unreadable, rebuilding from this run: %v", err)
		}

		if baseline == nil {
			utils.Log.Info("No baseline yet; recording this run without alerting.")
			return catalog.SaveBaseline(baselinePath, current)
		}

		filter := catalog.NotifyFilter{}
		filter.Added, _ = cmd.Flags().GetBool("notify-added")
		filter.Removed, _ = cmd.Flags().GetBool("notify-removed")
		filter.PriceChanges, _ = cmd.Flags().GetBool("notify-price-changes")

		changes := catalog.Compare(baseline, current).Filter(filter)
		if changes.Empty() {
			utils.Log.Info("No catalog changes.")
			return catalog.SaveBaseline(baselinePath, current)
		}

		utils.Log.Infof("Catalog changes: %d added, %d removed, %d price changes",
			len(changes.Added), len(changes.Removed), len(changes.PriceChanges))

		text := notify.BuildCatalogMessage(
			toCatalogItems(changes.Added),
			toCatalogItems(changes.Removed),
			toNotifyPriceChanges(changes.PriceChanges),
			time.Now(),
		)

		if dryRun {
			fmt.Println(text)
		} else {
			notifier := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatIDs)
			if !notifier.Enabled() {
				utils.Log.Warn("Telegram is not configured; printing the update instead.")
				fmt.Println(text)
			} else {
				for _, res := range notifier.Send(cmd.Context(), text) {
					if !res.OK {
						utils.Log.Warnf("Delivery to %s failed (%s): %s", res.Recipient, res.Kind, res.Detail)
					}
				}
			}
		}

		return catalog.SaveBaseline(baselinePath, current)
	},
}

func toCatalogItems(products []catalog.Product) []notify.CatalogItem {
	items := make([]notify.CatalogItem, 0, len(products))
	for _, p := range products {
		items = append(items, notify.CatalogItem{Name: p.Name, Price: p.Price, Link: p.Link})
	}
	return items
}

func toNotifyPriceChanges(changes []catalog.PriceChange) []notify.PriceChange {
	out := make([]notify.PriceChange, 0, len(changes))
	for _, c := range changes {
		out = append(out, notify.PriceChange{
			Item:     notify.CatalogItem{Name: c.Product.Name, Price: c.NewPrice, Link: c.Product.Link},
			OldPrice: c.OldPrice,
			NewPrice: c.NewPrice,
		})
	}
	return out
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().String("category-url", "", "Category page to diff (default: first configured watch)")
	catalogCmd.Flags().String("baseline-file", "data/catalog_baseline.json", "Path to the catalog baseline file")
	catalogCmd.Flags().Bool("dry-run", false, "Print the update instead of sending it")
	catalogCmd.Flags().Bool("notify-added", true, "Alert on newly listed products")
	catalogCmd.Flags().Bool("notify-removed", true, "Alert on delisted products")
	catalogCmd.Flags().Bool("notify-price-changes", true, "Alert on price changes")
}
