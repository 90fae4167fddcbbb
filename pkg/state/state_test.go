package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if s.Version != SchemaVersion || len(s.Items) != 0 {
		t.Fatalf("expected fresh store, got %+v", s)
	}
}

func TestLoadCorruptFileFallsBackToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err == nil {
		t.Fatal("expected a parse error to be reported")
	}
	if s == nil || len(s.Items) != 0 {
		t.Fatalf("expected usable empty store despite error, got %+v", s)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inStock := true

	s := New()
	s.Items[ItemKey("p1", "8")] = &ItemState{
		ProductURL:               "https://outlet.example.com/shop/p1",
		ProductName:              "Aerios GTX",
		InStock:                  &inStock,
		FirstSeenAt:              now,
		LastCheckedAt:            now,
		CycleStartedAt:           now,
		NotificationsSentInCycle: 2,
		LastNotifiedAt:           &now,
	}
	sig := "abc123"
	s.ErrorAlert = ErrorAlertState{LastNotifiedAt: &now, LastSignature: sig}

	if err := Save(s, path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	item := got.Items[ItemKey("p1", "8")]
	if item == nil {
		t.Fatal("item missing after round trip")
	}
	if item.InStock == nil || !*item.InStock {
		t.Error("in_stock lost")
	}
	if item.NotificationsSentInCycle != 2 {
		t.Errorf("notify counter = %d, want 2", item.NotificationsSentInCycle)
	}
	if item.LastNotifiedAt == nil || !item.LastNotifiedAt.Equal(now) {
		t.Errorf("last_notified_at = %v, want %v", item.LastNotifiedAt, now)
	}
	if got.ErrorAlert.LastSignature != sig {
		t.Errorf("error alert signature = %q, want %q", got.ErrorAlert.LastSignature, sig)
	}
}

func TestSaveIsAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := Save(New(), path); err != nil {
		t.Fatal(err)
	}
	if err := Save(New(), path); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestUnknownFieldsRoundTrip(t *testing.T) {
	doc := `{
		"version": 1,
		"items": {
			"p1|8": {
				"in_stock": false,
				"first_seen_at": "2026-03-01T12:00:00Z",
				"last_checked_at": "2026-03-01T12:00:00Z",
				"cycle_started_at": "2026-03-01T12:00:00Z",
				"notifications_sent_in_cycle": 0,
				"future_field": {"nested": true}
			}
		},
		"error_alert": {},
		"operator_note": "do not delete"
	}`

	var s Store
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(&s)
	if err != nil {
		t.Fatal(err)
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(out, &generic); err != nil {
		t.Fatal(err)
	}
	if _, ok := generic["operator_note"]; !ok {
		t.Error("top-level unknown field dropped")
	}

	var items map[string]map[string]json.RawMessage
	if err := json.Unmarshal(generic["items"], &items); err != nil {
		t.Fatal(err)
	}
	if _, ok := items["p1|8"]["future_field"]; !ok {
		t.Error("item-level unknown field dropped")
	}
}

func TestItemKey(t *testing.T) {
	if ItemKey("p1", "8.5") != "p1|8.5" {
		t.Fatalf("unexpected key: %q", ItemKey("p1", "8.5"))
	}
}
