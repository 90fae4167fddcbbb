// Package state owns the durable stock-watch state: the last known
// availability of every watched product+size and the notification history
// used for repeat caps and error-alert throttling. The on-disk format is a
// single human-diffable JSON document, loaded once per run and written
// once via an atomic replace.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const SchemaVersion = 1

// keySeparator joins the product ID and size label into one map key.
// Product IDs are slugs or numeric IDs and never contain '|'.
const keySeparator = "|"

// ItemKey builds the store key for a product+size pair.
func ItemKey(productID, sizeLabel string) string {
	return productID + keySeparator + sizeLabel
}

// ItemState is the persisted record for one product+size.
type ItemState struct {
	ProductURL  string `json:"product_url,omitempty"`
	ProductName string `json:"product_name,omitempty"`

	// InStock is nil only before the first observation (e.g. a record
	// migrated from an older schema). It is the sole source of truth for
	// transition detection and only ever changes on a new observation.
	InStock *bool `json:"in_stock,omitempty"`

	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastCheckedAt  time.Time `json:"last_checked_at"`
	CycleStartedAt time.Time `json:"cycle_started_at"`

	// NotificationsSentInCycle resets to 0 when the item goes back out of
	// stock; a new restock cycle starts counting from scratch.
	NotificationsSentInCycle int        `json:"notifications_sent_in_cycle"`
	LastNotifiedAt           *time.Time `json:"last_notified_at,omitempty"`

	// extra carries fields written by newer schema versions so a round
	// trip through an older binary doesn't drop them.
	extra map[string]json.RawMessage
}

// ErrorAlertState throttles run-error notifications across runs.
type ErrorAlertState struct {
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`
	LastSignature  string     `json:"last_signature,omitempty"`
}

// Store is the full persisted document.
type Store struct {
	Version    int                   `json:"version"`
	UpdatedAt  time.Time             `json:"updated_at"`
	Items      map[string]*ItemState `json:"items"`
	ErrorAlert ErrorAlertState       `json:"error_alert"`

	extra map[string]json.RawMessage
}

// New returns an empty, versioned store.
func New() *Store {
	return &Store{
		Version: SchemaVersion,
		Items:   make(map[string]*ItemState),
	}
}

// Load reads the store from path. A missing file yields a fresh empty
// store with a nil error; an unreadable or corrupt file also yields a
// fresh store, with the cause returned so the caller can log a warning.
// Load never fails hard: losing the baseline only costs one run's worth
// of transition detection.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return New(), fmt.Errorf("read state file %s: %w", path, err)
	}

	s := New()
	if err := json.Unmarshal(data, s); err != nil {
		return New(), fmt.Errorf("parse state file %s: %w", path, err)
	}
	if s.Items == nil {
		s.Items = make(map[string]*ItemState)
	}
	if s.Version == 0 {
		s.Version = SchemaVersion
	}
	return s, nil
}

// Save writes the store atomically: temp file in the same directory,
// flush, rename. A crash mid-write leaves the previous state intact.
func Save(s *Store, path string) error {
	s.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state file %s: %w", path, err)
	}
	return nil
}

// itemKnownFields and storeKnownFields list the JSON keys owned by this
// schema version; everything else is preserved opaquely.
var itemKnownFields = []string{
	"product_url", "product_name", "in_stock",
	"first_seen_at", "last_checked_at", "cycle_started_at",
	"notifications_sent_in_cycle", "last_notified_at",
}

var storeKnownFields = []string{"version", "updated_at", "items", "error_alert"}

type itemStateAlias ItemState

func (i *ItemState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(data, (*itemStateAlias)(i)); err != nil {
		return err
	}
	for _, k := range itemKnownFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		i.extra = raw
	}
	return nil
}

func (i ItemState) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(itemStateAlias(i), i.extra)
}

type storeAlias struct {
	Version    int                   `json:"version"`
	UpdatedAt  time.Time             `json:"updated_at"`
	Items      map[string]*ItemState `json:"items"`
	ErrorAlert ErrorAlertState       `json:"error_alert"`
}

func (s *Store) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var a storeAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	s.Version = a.Version
	s.UpdatedAt = a.UpdatedAt
	s.Items = a.Items
	s.ErrorAlert = a.ErrorAlert
	for _, k := range storeKnownFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		s.extra = raw
	}
	return nil
}

func (s Store) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(storeAlias{
		Version:    s.Version,
		UpdatedAt:  s.UpdatedAt,
		Items:      s.Items,
		ErrorAlert: s.ErrorAlert,
	}, s.extra)
}

// marshalWithExtra merges the struct's own fields with preserved unknown
// fields. Known fields win on collision.
func marshalWithExtra(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}
	merged := make(map[string]json.RawMessage, len(extra)+8)
	for k, raw := range extra {
		merged[k] = raw
	}
	var own map[string]json.RawMessage
	if err := json.Unmarshal(base, &own); err != nil {
		return nil, err
	}
	for k, raw := range own {
		merged[k] = raw
	}
	return json.Marshal(merged)
}
