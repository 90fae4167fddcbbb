package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/outletwatch/outletwatch/internal/utils"
	"github.com/outletwatch/outletwatch/pkg/config"
	"github.com/outletwatch/outletwatch/pkg/history"
	"github.com/outletwatch/outletwatch/pkg/notify"
	"github.com/outletwatch/outletwatch/pkg/runner"
	"github.com/outletwatch/outletwatch/pkg/scrape"
	"github.com/outletwatch/outletwatch/pkg/whttp"
)

// watchCmd implements: outletwatch watch
//
// One full check cycle: snapshot every watch, compare against the state
// file, alert on restocks, save state. Designed for cron; exits 0 even
// when some pages failed, because a partial run still updated the state.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run one check cycle over all configured watches",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'outletwatch watch --help'", args[0])
		}

		cfg, err := config.FromViper(viper.GetViper())
		if err != nil {
			return err
		}
		if err := applyWatchFlags(cmd, cfg); err != nil {
			return err
		}
		if len(cfg.Watches) == 0 {
			return fmt.Errorf("nothing to watch: add watches to the config file or pass --category-url / --product-url")
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")

		// One writer at a time: overlapping cron runs would race on the
		// state file.
		lock, err := utils.NewStateLock(cfg.StateFile)
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		defer lock.Unlock()

		var hist *history.DB
		if cfg.HistoryDB != "" {
			hist, err = history.Open(cfg.HistoryDB)
			if err != nil {
				utils.Log.Warnf("History database unavailable, continuing without it: %v", err)
				hist = nil
			} else {
				defer hist.Close()
			}
		}

		scraper := &scrape.Scraper{
			Client:  whttp.NewClient(retryPolicy(cfg)),
			Browser: scrape.RodBrowser{},
			BrowserOpts: scrape.BrowserOptions{
				Show:        cfg.Browser.Show,
				RenderWait:  time.Duration(cfg.Browser.RenderWaitSeconds) * time.Second,
				ScrollTimes: cfg.Browser.ScrollTimes,
			},
			Log: utils.Log,
		}

		notifier := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatIDs)
		if !notifier.Enabled() && !dryRun {
			utils.Log.Warn("Telegram is not configured; restocks will only be logged. Set telegram.token and telegram.chat_ids (or TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_IDS).")
		}

		res, err := runner.Run(cmd.Context(), runner.Options{
			Config:   cfg,
			Source:   scraper,
			Notifier: notifier,
			History:  hist,
			DryRun:   dryRun,
			Log:      utils.Log,
		})
		if err != nil {
			return err
		}

		utils.Log.Infof("Run %s: %d facts, %d alerts decided, %d sent, %d errors",
			res.Status, res.FactCount, res.IntentCount, res.AlertsSent, len(res.Errors))
		for _, e := range res.Errors {
			utils.Log.Debugf("recovered: %s", e.Error())
		}
		return nil
	},
}

// applyWatchFlags lets a single ad-hoc watch be defined straight from the
// command line, and overrides the shared knobs.
func applyWatchFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	if v, _ := f.GetString("state-file"); v != "" {
		cfg.StateFile = v
	}
	if v, _ := f.GetString("history-db"); v != "" {
		cfg.HistoryDB = v
	}
	if f.Changed("notify-on-first-run") {
		v, _ := f.GetBool("notify-on-first-run")
		cfg.NotifyOnFirstRun = v
	}
	if f.Changed("max-notifications-per-item") {
		cfg.Repeat.MaxNotificationsPerItem, _ = f.GetInt("max-notifications-per-item")
	}
	if f.Changed("repeat-interval-seconds") {
		cfg.Repeat.RepeatIntervalSeconds, _ = f.GetInt("repeat-interval-seconds")
	}

	categoryURL, _ := f.GetString("category-url")
	productURLs, _ := f.GetStringSlice("product-url")
	if categoryURL == "" && len(productURLs) == 0 {
		return nil
	}

	keywords, _ := f.GetStringSlice("keyword")
	sizes, _ := f.GetStringSlice("size")
	maxProducts, _ := f.GetInt("max-products")
	noPrefilter, _ := f.GetBool("no-category-prefilter")

	// A watch given on the command line replaces the configured ones.
	cfg.Watches = []config.Watch{{
		Name:                "cli",
		CategoryURL:         categoryURL,
		ProductURLs:         productURLs,
		Keywords:            keywords,
		Sizes:               sizes,
		MaxProducts:         maxProducts,
		NoCategoryPrefilter: noPrefilter,
	}}
	return cfg.Normalize()
}

func retryPolicy(cfg *config.Config) whttp.RetryPolicy {
	return whttp.RetryPolicy{
		MaxRetries: cfg.HTTP.MaxRetries,
		MinWait:    time.Duration(cfg.HTTP.MinWaitSeconds) * time.Second,
		MaxWait:    time.Duration(cfg.HTTP.MaxWaitSeconds) * time.Second,
		Timeout:    time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("state-file", "", "Path to the JSON state file (default from config)")
	watchCmd.Flags().String("history-db", "", "Path to the SQLite history DB (empty = no history)")
	watchCmd.Flags().Bool("dry-run", false, "Reconcile and save state but send no notifications")

	watchCmd.Flags().String("category-url", "", "Category page to scrape for products (defines an ad-hoc watch)")
	watchCmd.Flags().StringSlice("product-url", nil, "Product page to check directly (repeatable)")
	watchCmd.Flags().StringSlice("keyword", nil, "Only alert on products matching a keyword (repeatable)")
	watchCmd.Flags().StringSlice("size", nil, "Size label to watch (repeatable, default \"8\")")
	watchCmd.Flags().Int("max-products", 0, "Cap on products checked per watch (0 = no cap)")
	watchCmd.Flags().Bool("no-category-prefilter", false, "Check every category product page instead of keyword-matching tiles first")

	watchCmd.Flags().Bool("notify-on-first-run", true, "Alert for items already in stock on the very first run")
	watchCmd.Flags().Int("max-notifications-per-item", 0, "Max alerts per product+size per restock cycle")
	watchCmd.Flags().Int("repeat-interval-seconds", 0, "Minimum seconds between repeat alerts for the same item")
}
