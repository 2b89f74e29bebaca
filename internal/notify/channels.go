package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// Telegram posts to the Bot API sendMessage method.
type Telegram struct{ apiBase string }

func NewTelegram(apiBase string) *Telegram {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	return &Telegram{apiBase: strings.TrimRight(apiBase, "/")}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Configured(targets schemas.NotificationTargets) bool { return targets.HasTelegram() }

func (t *Telegram) Send(ctx context.Context, client *http.Client, targets schemas.NotificationTargets, message string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, targets.TelegramBotToken)
	return postJSON(ctx, client, endpoint, map[string]string{
		"chat_id": targets.TelegramChatID,
		"text":    message,
	})
}

// PushPlus posts to the pushplus push service, keyed by the pusher id.
type PushPlus struct{ endpoint string }

func NewPushPlus(endpoint string) *PushPlus {
	if endpoint == "" {
		endpoint = "http://www.pushplus.plus/send"
	}
	return &PushPlus{endpoint: endpoint}
}

func (p *PushPlus) Name() string { return "pushplus" }

func (p *PushPlus) Configured(targets schemas.NotificationTargets) bool { return targets.PusherID != "" }

func (p *PushPlus) Send(ctx context.Context, client *http.Client, targets schemas.NotificationTargets, message string) error {
	return postJSON(ctx, client, p.endpoint, map[string]string{
		"token":   targets.PusherID,
		"content": message,
	})
}

// Webhook posts {"username", "content"} to an arbitrary URL.
type Webhook struct{}

func NewWebhook() *Webhook { return &Webhook{} }

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Configured(targets schemas.NotificationTargets) bool { return targets.WebhookURL != "" }

func (w *Webhook) Send(ctx context.Context, client *http.Client, targets schemas.NotificationTargets, message string) error {
	return postJSON(ctx, client, targets.WebhookURL, map[string]string{
		"username": targets.Account,
		"content":  message,
	})
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
