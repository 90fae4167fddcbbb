// Package runner orchestrates a single watch run: take a snapshot,
// reconcile it against the persisted baseline, send notifications, persist
// the state exactly once, and summarise failures. It is the library entry
// point; the CLI is a thin wrapper around Run.
package runner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/outletwatch/outletwatch/pkg/config"
	"github.com/outletwatch/outletwatch/pkg/history"
	"github.com/outletwatch/outletwatch/pkg/notify"
	"github.com/outletwatch/outletwatch/pkg/reconcile"
	"github.com/outletwatch/outletwatch/pkg/scrape"
	"github.com/outletwatch/outletwatch/pkg/state"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// SnapshotSource produces the observed facts for a run. *scrape.Scraper is
// the production implementation.
type SnapshotSource interface {
	Snapshot(ctx context.Context, watches []config.Watch) ([]reconcile.ObservedFact, []scrape.ScrapeError)
}

// Options holds everything Run needs. Config and Source are required.
type Options struct {
	Config   *config.Config
	Source   SnapshotSource
	Notifier notify.Notifier // optional; nil = no notifications
	History  *history.DB     // optional; nil = no event history
	LogFile  string          // mentioned in error alerts, if set

	// DryRun reconciles and persists but sends nothing.
	DryRun bool

	Now func() time.Time // defaults to time.Now
	Log Logger           // optional; nil = no logging
}

// Run statuses.
const (
	StatusDone           = "done"
	StatusDoneWithErrors = "done_with_errors"
)

// Result is the outcome of a single run.
type Result struct {
	Status           string
	FactCount        int
	IntentCount      int
	Errors           []scrape.ScrapeError
	AlertsSent       int
	AlertsFailed     int
	ErrorAlertSent   bool
	StateSaveFailure error
}

// Run executes one full cycle. The state file is written exactly once, and
// always: scrape failures degrade the run to done_with_errors but never
// lose the observations that did succeed.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = nopLogger{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("runner: nil config")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("runner: nil snapshot source")
	}

	startedAt := now()
	result := &Result{}

	store, err := state.Load(cfg.StateFile)
	if err != nil {
		log.Warnf("State file unreadable, starting from an empty baseline: %v", err)
	}
	firstRun := len(store.Items) == 0

	facts, scrapeErrs := opts.Source.Snapshot(ctx, cfg.Watches)
	result.FactCount = len(facts)
	result.Errors = scrapeErrs
	log.Infof("Snapshot complete: %d facts, %d errors", len(facts), len(scrapeErrs))

	// Remember which items were in stock before this run so the history DB
	// can record the in -> out transitions reconcile handles silently.
	wasInStock := make(map[string]bool, len(store.Items))
	for key, item := range store.Items {
		if item != nil && item.InStock != nil && *item.InStock {
			wasInStock[key] = true
		}
	}

	runAt := now()
	intents := reconcile.Reconcile(store, facts, cfg.Policy(), runAt)
	result.IntentCount = len(intents)
	if firstRun {
		log.Infof("First run: %d items recorded as baseline", len(store.Items))
	}

	if opts.History != nil {
		if err := opts.History.LogEvents(ctx, buildEvents(intents, facts, wasInStock, runAt)); err != nil {
			log.Warnf("Could not log stock events: %v", err)
		}
	}

	// Restock alerts, one message per watch.
	if len(intents) > 0 {
		sendStockAlerts(ctx, opts, cfg, intents, runAt, result, log)
	}

	// Decide the error alert before persisting so the throttle stamp lands
	// in the same write as the run's observations.
	var errorAlertText string
	if len(scrapeErrs) > 0 && cfg.ErrorNotify.Enabled && !opts.DryRun && opts.Notifier != nil && opts.Notifier.Enabled() {
		sig := errorSignature(scrapeErrs)
		if shouldSendErrorAlert(store.ErrorAlert, sig, cfg.ErrorRepeatInterval(), runAt) {
			errorAlertText = notify.BuildErrorMessage(toErrorLines(scrapeErrs), opts.LogFile, runAt)
			t := runAt
			store.ErrorAlert.LastNotifiedAt = &t
			store.ErrorAlert.LastSignature = sig
		} else {
			log.Debugf("Error alert suppressed: same signature within the repeat window")
		}
	}

	if err := state.Save(store, cfg.StateFile); err != nil {
		log.Errorf("Could not save state file: %v", err)
		result.StateSaveFailure = err
	}

	if errorAlertText != "" {
		ok := dispatch(ctx, opts.Notifier, errorAlertText, log)
		result.ErrorAlertSent = ok
		if !ok {
			result.AlertsFailed++
		}
	}

	result.Status = StatusDone
	if len(scrapeErrs) > 0 || result.AlertsFailed > 0 || result.StateSaveFailure != nil {
		result.Status = StatusDoneWithErrors
	}

	if opts.History != nil {
		summary := history.RunSummary{
			StartedAt:   startedAt,
			FinishedAt:  now(),
			WatchCount:  len(cfg.Watches),
			FactCount:   result.FactCount,
			IntentCount: result.IntentCount,
			ErrorCount:  len(scrapeErrs),
			Status:      result.Status,
		}
		if err := opts.History.LogRun(ctx, summary); err != nil {
			log.Warnf("Could not log run summary: %v", err)
		}
	}

	return result, nil
}

// sendStockAlerts groups intents by watch and sends one message per watch.
func sendStockAlerts(ctx context.Context, opts Options, cfg *config.Config, intents []reconcile.Intent, now time.Time, result *Result, log Logger) {
	byWatch := make(map[string][]reconcile.Intent)
	var order []string
	for _, in := range intents {
		if _, ok := byWatch[in.Fact.Watch]; !ok {
			order = append(order, in.Fact.Watch)
		}
		byWatch[in.Fact.Watch] = append(byWatch[in.Fact.Watch], in)
	}

	for _, watchName := range order {
		watch := watchByName(cfg, watchName)
		items := make([]notify.StockItem, 0, len(byWatch[watchName]))
		for _, in := range byWatch[watchName] {
			items = append(items, stockItem(in))
		}

		text := notify.BuildRestockMessage(watchName, items, watch.Keywords, watch.CategoryURL, now)
		if opts.DryRun {
			log.Infof("[dry-run] Would send alert for %s (%d items)", watchName, len(items))
			continue
		}
		if opts.Notifier == nil || !opts.Notifier.Enabled() {
			log.Warnf("[%s] %d items in stock but no notifier is configured", watchName, len(items))
			continue
		}
		if dispatch(ctx, opts.Notifier, text, log) {
			result.AlertsSent++
		} else {
			result.AlertsFailed++
		}
	}
}

// dispatch sends text to every recipient and returns true when at least
// one delivery succeeded.
func dispatch(ctx context.Context, n notify.Notifier, text string, log Logger) bool {
	ok := false
	for _, res := range n.Send(ctx, text) {
		if res.OK {
			ok = true
			continue
		}
		log.Warnf("Delivery to %s failed (%s): %s", res.Recipient, res.Kind, res.Detail)
	}
	return ok
}

func watchByName(cfg *config.Config, name string) config.Watch {
	for _, w := range cfg.Watches {
		if w.Name == name {
			return w
		}
	}
	return config.Watch{Name: name}
}

// stockItem converts an intent into a message line.
func stockItem(in reconcile.Intent) notify.StockItem {
	f := in.Fact
	item := notify.StockItem{
		Name:    f.ProductName,
		Link:    f.ProductURL,
		Size:    f.SizeLabel,
		Colours: f.InStockColours,
	}
	switch {
	case f.DiscountPrice > 0 && f.Price > 0 && f.DiscountPrice < f.Price:
		item.Price = fmt.Sprintf("%s (was %s)", notify.FormatPrice(f.Currency, f.DiscountPrice), notify.FormatPrice(f.Currency, f.Price))
	case f.Price > 0:
		item.Price = notify.FormatPrice(f.Currency, f.Price)
	}
	if in.MaxAlerts > 1 {
		item.Note = fmt.Sprintf("Alert %d/%d", in.AlertNumber, in.MaxAlerts)
	}
	return item
}

// buildEvents maps intents and silent out-of-stock transitions onto
// history rows.
func buildEvents(intents []reconcile.Intent, facts []reconcile.ObservedFact, wasInStock map[string]bool, now time.Time) []history.Event {
	var events []history.Event
	for _, in := range intents {
		events = append(events, history.Event{
			OccurredAt:  now,
			Watch:       in.Fact.Watch,
			ProductID:   in.Fact.ProductID,
			ProductName: in.Fact.ProductName,
			SizeLabel:   in.Fact.SizeLabel,
			ProductURL:  in.Fact.ProductURL,
			EventType:   eventType(in.Kind),
		})
	}

	seen := make(map[string]bool, len(facts))
	for _, f := range facts {
		key := state.ItemKey(f.ProductID, f.SizeLabel)
		if seen[key] {
			continue
		}
		seen[key] = true
		if wasInStock[key] && !f.InStock {
			events = append(events, history.Event{
				OccurredAt:  now,
				Watch:       f.Watch,
				ProductID:   f.ProductID,
				ProductName: f.ProductName,
				SizeLabel:   f.SizeLabel,
				ProductURL:  f.ProductURL,
				EventType:   history.EventOutOfStock,
			})
		}
	}
	return events
}

func eventType(kind reconcile.IntentKind) string {
	switch kind {
	case reconcile.IntentFirstSeenInStock:
		return history.EventFirstSeen
	case reconcile.IntentRestock:
		return history.EventRestock
	default:
		return history.EventRepeatAlert
	}
}

// errorSignature fingerprints the run's failures. A changed error mix
// bypasses the repeat throttle; only the first 20 errors participate so
// one flapping product page doesn't churn the signature.
func errorSignature(errs []scrape.ScrapeError) string {
	n := len(errs)
	if n > 20 {
		n = 20
	}
	var b strings.Builder
	for _, e := range errs[:n] {
		b.WriteString(e.Context)
		b.WriteString("|")
		b.WriteString(e.Message)
		b.WriteString("\n")
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// shouldSendErrorAlert applies the throttle: a new signature always goes
// out, a repeated one only after the repeat window has elapsed.
func shouldSendErrorAlert(ea state.ErrorAlertState, sig string, interval time.Duration, now time.Time) bool {
	if sig != ea.LastSignature {
		return true
	}
	if interval <= 0 || ea.LastNotifiedAt == nil {
		return true
	}
	return now.Sub(*ea.LastNotifiedAt) >= interval
}

func toErrorLines(errs []scrape.ScrapeError) []notify.ErrorLine {
	lines := make([]notify.ErrorLine, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, notify.ErrorLine{Context: e.Context, Message: e.Message})
	}
	return lines
}
