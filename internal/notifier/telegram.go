package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"hawkview/internal/models"
)

// Telegram forwards error notifications to a chat. It is optional; an
// unconfigured forwarder drops everything.
type Telegram struct {
	HTTP    *http.Client
	BaseURL string

	mu     sync.RWMutex
	token  string
	chatID string
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		BaseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
	}
}

func (t *Telegram) Enabled() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token != "" && t.chatID != ""
}

func (t *Telegram) Update(token, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
	t.chatID = chatID
}

func (t *Telegram) Forward(ctx context.Context, n models.Notification) error {
	msg := fmt.Sprintf("[%s] %s: %s", n.Level, n.Source, n.Message)
	if n.Cause != "" {
		msg += " (" + n.Cause + ")"
	}
	return t.Send(ctx, msg)
}

func (t *Telegram) Send(ctx context.Context, msg string) error {
	if !t.Enabled() {
		return fmt.Errorf("telegram not configured")
	}
	t.mu.RLock()
	token, chatID := t.token, t.chatID
	t.mu.RUnlock()

	payload := map[string]any{"chat_id": chatID, "text": msg, "disable_web_page_preview": true}
	b, _ := json.Marshal(payload)
	u := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := t.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}
