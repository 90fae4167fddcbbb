// Package reconcile compares a snapshot of observed stock facts against the
// persisted baseline and decides which notifications to emit. It performs
// no I/O: loading and saving the store belongs to the orchestrator.
package reconcile

import (
	"time"

	"github.com/outletwatch/outletwatch/pkg/state"
)

// ObservedFact is one scrape result: availability of a single product+size
// as seen during this run. Facts are ephemeral and never persisted.
type ObservedFact struct {
	Watch          string
	ProductID      string
	ProductURL     string
	ProductName    string
	SizeLabel      string
	InStock        bool
	Currency       string
	Price          float64
	DiscountPrice  float64
	InStockColours []string
	ObservedAt     time.Time
}

// Policy controls when notification intents are emitted.
type Policy struct {
	// NotifyOnFirstRun emits an alert when a product+size is seen for the
	// first time and is already in stock.
	NotifyOnFirstRun bool

	// MaxNotificationsPerItem caps alerts per product+size per restock
	// cycle. Values below 1 are treated as 1.
	MaxNotificationsPerItem int

	// RepeatInterval is the minimum time between repeated alerts for the
	// same item. Zero means no time gating.
	RepeatInterval time.Duration
}

func (p Policy) maxPerItem() int {
	if p.MaxNotificationsPerItem < 1 {
		return 1
	}
	return p.MaxNotificationsPerItem
}

// IntentKind classifies why a notification is being emitted.
type IntentKind string

const (
	IntentFirstSeenInStock IntentKind = "first_seen_in_stock"
	IntentRestock          IntentKind = "restock"
	IntentRepeat           IntentKind = "repeat"
)

// Intent is a decided notification for one product+size. AlertNumber is
// 1-based within the current restock cycle so messages can carry an
// "Alert 2/3" note.
type Intent struct {
	Kind        IntentKind
	Fact        ObservedFact
	AlertNumber int
	MaxAlerts   int
}

// Reconcile classifies every observed fact against the store, mutates the
// store accordingly and returns the notification intents in snapshot
// order. Items present in the store but absent from the snapshot are left
// untouched: a missing observation is a scrape gap, not an out-of-stock
// signal. Duplicate facts for the same product+size within one snapshot
// are ignored after the first.
func Reconcile(store *state.Store, facts []ObservedFact, pol Policy, now time.Time) []Intent {
	maxAlerts := pol.maxPerItem()
	seen := make(map[string]bool, len(facts))

	var intents []Intent
	for _, fact := range facts {
		key := state.ItemKey(fact.ProductID, fact.SizeLabel)
		if seen[key] {
			continue
		}
		seen[key] = true

		item, existed := store.Items[key]
		if item == nil {
			item = &state.ItemState{FirstSeenAt: now, CycleStartedAt: now}
		}

		prior := item.InStock
		item.ProductURL = fact.ProductURL
		item.ProductName = fact.ProductName
		item.LastCheckedAt = now
		item.InStock = boolPtr(fact.InStock)
		store.Items[key] = item

		switch {
		case !existed || prior == nil:
			// Baseline observation.
			if fact.InStock {
				item.CycleStartedAt = now
				if pol.NotifyOnFirstRun {
					intents = append(intents, emit(item, fact, IntentFirstSeenInStock, maxAlerts, now))
				}
			}

		case !*prior && fact.InStock:
			// A new restock cycle begins.
			item.CycleStartedAt = now
			item.NotificationsSentInCycle = 0
			intents = append(intents, emit(item, fact, IntentRestock, maxAlerts, now))

		case *prior && fact.InStock:
			if shouldRepeat(item, maxAlerts, pol.RepeatInterval, now) {
				intents = append(intents, emit(item, fact, IntentRepeat, maxAlerts, now))
			}

		case *prior && !fact.InStock:
			// Cycle over; the counter starts fresh on the next restock.
			item.NotificationsSentInCycle = 0
		}
	}

	return intents
}

// shouldRepeat gates repeat alerts for an item that stayed in stock. The
// cycle must already have produced at least one alert: an item that was in
// stock from its very first observation with first-run alerts disabled
// never turns into a stream of repeats.
func shouldRepeat(item *state.ItemState, maxAlerts int, interval time.Duration, now time.Time) bool {
	if item.NotificationsSentInCycle < 1 || item.NotificationsSentInCycle >= maxAlerts {
		return false
	}
	if interval <= 0 || item.LastNotifiedAt == nil {
		return true
	}
	return now.Sub(*item.LastNotifiedAt) >= interval
}

// emit records the notification on the item state in the same update that
// produced it, so a later delivery failure can't cause a double count.
func emit(item *state.ItemState, fact ObservedFact, kind IntentKind, maxAlerts int, now time.Time) Intent {
	item.NotificationsSentInCycle++
	t := now
	item.LastNotifiedAt = &t
	return Intent{
		Kind:        kind,
		Fact:        fact,
		AlertNumber: item.NotificationsSentInCycle,
		MaxAlerts:   maxAlerts,
	}
}

func boolPtr(b bool) *bool {
	return &b
}
