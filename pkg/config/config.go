// Package config defines the stock-watch configuration surface and its
// validation. Values come from the viper config file, environment, and CLI
// flag overrides; a malformed configuration aborts before any state is
// touched.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/outletwatch/outletwatch/internal/utils"
	"github.com/outletwatch/outletwatch/pkg/reconcile"
)

const (
	DefaultStateFile = "data/stock_watch_state.json"
	DefaultSize      = "8"
)

// Watch is one named monitoring unit: either a category page to discover
// products from, or an explicit product URL list. Immutable for a run.
type Watch struct {
	Name                string   `mapstructure:"name"`
	CategoryURL         string   `mapstructure:"category_url"`
	ProductURLs         []string `mapstructure:"product_urls"`
	Keywords            []string `mapstructure:"keywords"`
	Sizes               []string `mapstructure:"sizes"`
	MaxProducts         int      `mapstructure:"max_products"`
	NoCategoryPrefilter bool     `mapstructure:"no_category_prefilter"`
}

// Repeat caps and throttles per-item notifications.
type Repeat struct {
	MaxNotificationsPerItem int `mapstructure:"max_notifications_per_item"`
	RepeatIntervalSeconds   int `mapstructure:"repeat_interval_seconds"`
}

// ErrorNotify controls the run-error summary alert.
type ErrorNotify struct {
	Enabled               bool `mapstructure:"enabled"`
	RepeatIntervalSeconds int  `mapstructure:"repeat_interval_seconds"`
}

// Browser controls category page rendering.
type Browser struct {
	Show              bool `mapstructure:"show"`
	RenderWaitSeconds int  `mapstructure:"render_wait_seconds"`
	ScrollTimes       int  `mapstructure:"scroll_times"`
}

// HTTP is the retry/backoff policy for product page fetches.
type HTTP struct {
	MaxRetries     int `mapstructure:"max_retries"`
	MinWaitSeconds int `mapstructure:"min_wait_seconds"`
	MaxWaitSeconds int `mapstructure:"max_wait_seconds"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Telegram holds notifier credentials. Token and chat IDs may also come
// from TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_IDS environment variables.
type Telegram struct {
	Token   string   `mapstructure:"token"`
	ChatIDs []string `mapstructure:"chat_ids"`
}

// Config is the full configuration for one run.
type Config struct {
	StateFile        string      `mapstructure:"state_file"`
	HistoryDB        string      `mapstructure:"history_db"`
	NotifyOnFirstRun bool        `mapstructure:"notify_on_first_run"`
	Repeat           Repeat      `mapstructure:"repeat"`
	ErrorNotify      ErrorNotify `mapstructure:"error_notify"`
	Browser          Browser     `mapstructure:"browser"`
	HTTP             HTTP        `mapstructure:"http"`
	Telegram         Telegram    `mapstructure:"telegram"`
	Watches          []Watch     `mapstructure:"watches"`
}

// SetDefaults registers every config key with viper so the generated
// config file documents the full surface.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("state_file", DefaultStateFile)
	v.SetDefault("history_db", "")
	v.SetDefault("notify_on_first_run", true)
	v.SetDefault("repeat.max_notifications_per_item", 1)
	v.SetDefault("repeat.repeat_interval_seconds", 0)
	v.SetDefault("error_notify.enabled", true)
	v.SetDefault("error_notify.repeat_interval_seconds", 3600)
	v.SetDefault("browser.show", false)
	v.SetDefault("browser.render_wait_seconds", 10)
	v.SetDefault("browser.scroll_times", 3)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.min_wait_seconds", 1)
	v.SetDefault("http.max_wait_seconds", 30)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_ids", []string{})
}

// FromViper decodes and validates the configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills derived defaults and validates watch definitions.
func (c *Config) Normalize() error {
	if c.StateFile == "" {
		c.StateFile = DefaultStateFile
	}
	if c.Repeat.MaxNotificationsPerItem < 1 {
		c.Repeat.MaxNotificationsPerItem = 1
	}
	if c.Repeat.RepeatIntervalSeconds < 0 {
		c.Repeat.RepeatIntervalSeconds = 0
	}
	if c.ErrorNotify.RepeatIntervalSeconds < 0 {
		c.ErrorNotify.RepeatIntervalSeconds = 0
	}

	for i := range c.Watches {
		w := &c.Watches[i]
		if w.Name == "" {
			w.Name = fmt.Sprintf("watch-%d", i+1)
		}
		w.ProductURLs = utils.DedupeStrings(stripQueryStrings(w.ProductURLs))
		w.Keywords = utils.DedupeStrings(w.Keywords)
		w.Sizes = utils.DedupeStrings(w.Sizes)
		if len(w.Sizes) == 0 {
			w.Sizes = []string{DefaultSize}
		}
		if w.CategoryURL == "" && len(w.ProductURLs) == 0 {
			return fmt.Errorf("watches[%d] (%s): need category_url or product_urls", i, w.Name)
		}
	}
	return nil
}

// Policy maps the repeat settings onto the reconciliation policy.
func (c *Config) Policy() reconcile.Policy {
	return reconcile.Policy{
		NotifyOnFirstRun:        c.NotifyOnFirstRun,
		MaxNotificationsPerItem: c.Repeat.MaxNotificationsPerItem,
		RepeatInterval:          time.Duration(c.Repeat.RepeatIntervalSeconds) * time.Second,
	}
}

// ErrorRepeatInterval returns the error-alert throttle window.
func (c *Config) ErrorRepeatInterval() time.Duration {
	return time.Duration(c.ErrorNotify.RepeatIntervalSeconds) * time.Second
}

// stripQueryStrings removes tracking parameters so the same product always
// keys identically in the state file.
func stripQueryStrings(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if i := strings.IndexByte(u, '?'); i >= 0 {
			u = u[:i]
		}
		out = append(out, u)
	}
	return out
}
