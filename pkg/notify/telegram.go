package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/outletwatch/outletwatch/internal/utils"
)

const (
	telegramAPIBase       = "https://api.telegram.org"
	telegramMaxMessageLen = 4096
)

// Telegram sends messages through the Telegram Bot API, one sendMessage
// call per recipient chat per chunk.
type Telegram struct {
	Token   string
	ChatIDs []string

	// APIBase overrides the API endpoint, for tests.
	APIBase string
	// Client defaults to a plain client with a 10s timeout. Deliberately
	// not a retrying client: a duplicate alert is worse than a missed one.
	Client *http.Client
}

// NewTelegram builds a notifier from explicit credentials, falling back to
// the TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_IDS / TELEGRAM_CHAT_ID
// environment variables.
func NewTelegram(token string, chatIDs []string) *Telegram {
	if token == "" {
		token = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	}
	if len(chatIDs) == 0 {
		env := os.Getenv("TELEGRAM_CHAT_IDS")
		if env == "" {
			env = os.Getenv("TELEGRAM_CHAT_ID")
		}
		chatIDs = utils.SplitCSV(env)
	}
	return &Telegram{Token: token, ChatIDs: chatIDs}
}

func (t *Telegram) Enabled() bool {
	return t.Token != "" && len(t.ChatIDs) > 0
}

// Send posts the text to every configured chat. Long texts are split into
// chunks below Telegram's 4096-char limit; the per-chat result reflects
// the first failed chunk.
func (t *Telegram) Send(ctx context.Context, text string) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(t.ChatIDs))
	chunks := chunkText(text, telegramMaxMessageLen)

	for _, chatID := range t.ChatIDs {
		res := DeliveryResult{Recipient: chatID, OK: true}
		for _, chunk := range chunks {
			if kind, detail := t.sendOne(ctx, chatID, chunk); kind != FailureNone {
				res = DeliveryResult{Recipient: chatID, OK: false, Kind: kind, Detail: detail}
				break
			}
		}
		results = append(results, res)
	}
	return results
}

func (t *Telegram) sendOne(ctx context.Context, chatID, text string) (FailureKind, string) {
	base := t.APIBase
	if base == "" {
		base = telegramAPIBase
	}
	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	form := url.Values{
		"chat_id":                  {chatID},
		"text":                     {text},
		"disable_web_page_preview": {"true"},
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", base, t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return FailureNetwork, err.Error()
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return FailureNetwork, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return FailureNone, ""
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
	detail := fmt.Sprintf("status=%d body=%s", resp.StatusCode, string(body))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return FailureAuth, detail
	case http.StatusTooManyRequests:
		return FailureRateLimited, detail
	default:
		return FailureRejected, detail
	}
}

// chunkText splits text into pieces of at most maxLen bytes,
// preferring paragraph then line boundaries so items stay intact.
func chunkText(text string, maxLen int) []string {
	if text == "" {
		return []string{""}
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for remaining != "" {
		if len(remaining) <= maxLen {
			chunks = append(chunks, remaining)
			break
		}

		splitAt := strings.LastIndex(remaining[:maxLen], "\n\n")
		if splitAt < 0 {
			splitAt = strings.LastIndex(remaining[:maxLen], "\n")
		}
		if splitAt < 0 {
			splitAt = maxLen
		}

		chunks = append(chunks, strings.TrimRight(remaining[:splitAt], "\n "))
		remaining = strings.TrimLeft(remaining[splitAt:], "\n ")
	}
	return chunks
}
