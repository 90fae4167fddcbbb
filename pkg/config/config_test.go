package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViperWithConfig(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestFromViperDefaults(t *testing.T) {
	v := newViperWithConfig(t, `
watches:
  - name: footwear
    category_url: https://outlet.example.com/c/mens/footwear
`)
	cfg, err := FromViper(v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StateFile != DefaultStateFile {
		t.Errorf("state_file = %q", cfg.StateFile)
	}
	if !cfg.NotifyOnFirstRun {
		t.Error("notify_on_first_run should default to true")
	}
	if !cfg.ErrorNotify.Enabled || cfg.ErrorNotify.RepeatIntervalSeconds != 3600 {
		t.Errorf("error_notify defaults wrong: %+v", cfg.ErrorNotify)
	}
	if got := cfg.Watches[0].Sizes; len(got) != 1 || got[0] != DefaultSize {
		t.Errorf("sizes default = %v", got)
	}
}

func TestWatchValidation(t *testing.T) {
	v := newViperWithConfig(t, `
watches:
  - name: broken
    keywords: [gtx]
`)
	if _, err := FromViper(v); err == nil {
		t.Fatal("watch without category_url or product_urls must fail")
	}
}

func TestProductURLNormalization(t *testing.T) {
	v := newViperWithConfig(t, `
watches:
  - product_urls:
      - https://outlet.example.com/shop/aerios?colour=black
      - https://outlet.example.com/shop/aerios
    sizes: ["8", "8", "9"]
`)
	cfg, err := FromViper(v)
	if err != nil {
		t.Fatal(err)
	}
	w := cfg.Watches[0]
	if len(w.ProductURLs) != 1 || strings.Contains(w.ProductURLs[0], "?") {
		t.Errorf("urls not deduped/stripped: %v", w.ProductURLs)
	}
	if len(w.Sizes) != 2 {
		t.Errorf("sizes not deduped: %v", w.Sizes)
	}
	if w.Name != "watch-1" {
		t.Errorf("missing default name, got %q", w.Name)
	}
}

func TestPolicyMapping(t *testing.T) {
	v := newViperWithConfig(t, `
notify_on_first_run: false
repeat:
  max_notifications_per_item: 3
  repeat_interval_seconds: 1800
watches:
  - category_url: https://outlet.example.com/c/mens/footwear
`)
	cfg, err := FromViper(v)
	if err != nil {
		t.Fatal(err)
	}
	pol := cfg.Policy()
	if pol.NotifyOnFirstRun {
		t.Error("notify_on_first_run override lost")
	}
	if pol.MaxNotificationsPerItem != 3 || pol.RepeatInterval != 30*time.Minute {
		t.Errorf("policy mapping wrong: %+v", pol)
	}
}
