package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/outletwatch/outletwatch/pkg/config"
	"github.com/outletwatch/outletwatch/pkg/notify"
	"github.com/outletwatch/outletwatch/pkg/runner"
	"github.com/outletwatch/outletwatch/pkg/scrape"
	"github.com/outletwatch/outletwatch/pkg/whttp"
)

func main() {
	// Usage: go run *.go -product "https://outlet.example.com/shop/alpha-sv-jacket" -size 8

	productFlag := flag.String("product", "", "Product page URL to check")
	sizeFlag := flag.String("size", "8", "Size label to watch")
	stateFlag := flag.String("state", "stock_state.json", "Path to the JSON state file")

	// Parse the command-line flags
	flag.Parse()

	if *productFlag == "" {
		fmt.Println("Product URL is required. Please provide it using the -product flag.")
		return
	}

	cfg := &config.Config{
		StateFile:        *stateFlag,
		NotifyOnFirstRun: true,
		Watches: []config.Watch{
			{Name: "example", ProductURLs: []string{*productFlag}, Sizes: []string{*sizeFlag}},
		},
	}
	if err := cfg.Normalize(); err != nil {
		log.Fatal(err)
	}

	scraper := &scrape.Scraper{
		Client: whttp.NewClient(whttp.RetryPolicy{MaxRetries: 3, MinWait: time.Second, MaxWait: 30 * time.Second, Timeout: 30 * time.Second}),
	}

	// Token and chat IDs come from TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_IDS.
	notifier := notify.NewTelegram("", nil)

	res, err := runner.Run(context.Background(), runner.Options{
		Config:   cfg,
		Source:   scraper,
		Notifier: notifier,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s: %d facts observed, %d alerts\n", res.Status, res.FactCount, res.IntentCount)
}
