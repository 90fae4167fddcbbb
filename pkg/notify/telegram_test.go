package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTelegramEnabled(t *testing.T) {
	if (&Telegram{}).Enabled() {
		t.Error("empty notifier should be disabled")
	}
	if !(&Telegram{Token: "t", ChatIDs: []string{"1"}}).Enabled() {
		t.Error("configured notifier should be enabled")
	}
}

func TestTelegramSendPerChat(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		got = append(got, r.FormValue("chat_id"))
		if r.FormValue("chat_id") == "bad" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := &Telegram{Token: "tok", ChatIDs: []string{"111", "bad"}, APIBase: srv.URL}
	results := tg.Send(context.Background(), "hello")

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].OK || results[0].Recipient != "111" {
		t.Errorf("first result wrong: %+v", results[0])
	}
	if results[1].OK || results[1].Kind != FailureAuth {
		t.Errorf("403 should classify as auth failure: %+v", results[1])
	}
	if len(got) != 2 {
		t.Errorf("expected one request per chat, got %v", got)
	}
}

func TestTelegramFailureClassification(t *testing.T) {
	cases := map[int]FailureKind{
		http.StatusUnauthorized:    FailureAuth,
		http.StatusForbidden:       FailureAuth,
		http.StatusTooManyRequests: FailureRateLimited,
		http.StatusBadRequest:      FailureRejected,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		tg := &Telegram{Token: "tok", ChatIDs: []string{"1"}, APIBase: srv.URL}
		res := tg.Send(context.Background(), "x")
		srv.Close()
		if res[0].OK || res[0].Kind != want {
			t.Errorf("status %d: got %+v, want kind %s", status, res[0], want)
		}
	}
}

func TestTelegramChunksLongMessages(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		bodies = append(bodies, r.FormValue("text"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	long := strings.Repeat("item line\n\n", 800) // well past 4096 bytes
	tg := &Telegram{Token: "tok", ChatIDs: []string{"1"}, APIBase: srv.URL}
	res := tg.Send(context.Background(), long)

	if !res[0].OK {
		t.Fatalf("send failed: %+v", res[0])
	}
	if len(bodies) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(bodies))
	}
	for i, b := range bodies {
		if len(b) > telegramMaxMessageLen {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(b))
		}
	}
}

func TestChunkText(t *testing.T) {
	if got := chunkText("", 10); len(got) != 1 || got[0] != "" {
		t.Errorf("empty text: %v", got)
	}
	if got := chunkText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text: %v", got)
	}

	// Splits on the paragraph boundary, not mid-line.
	text := "aaaa\n\nbbbb\n\ncccc"
	got := chunkText(text, 11)
	if len(got) != 2 || got[0] != "aaaa" || got[1] != "bbbb\n\ncccc" {
		t.Errorf("paragraph split: %q", got)
	}

	// No boundary at all: hard split.
	got = chunkText(strings.Repeat("x", 25), 10)
	if len(got) != 3 {
		t.Errorf("hard split: %q", got)
	}
}
