// internal/notify/notify.go
package notify

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/config"
	"github.com/xkilldash9x/recovery-warden/internal/network"
)

// Channel is one delivery transport.
type Channel interface {
	Name() string
	// Configured reports whether targets carries this channel's descriptor.
	Configured(targets schemas.NotificationTargets) bool
	Send(ctx context.Context, client *http.Client, targets schemas.NotificationTargets, message string) error
}

// Notifier fans a message out to every configured channel concurrently.
// Delivery is best effort: a failing channel is logged and never holds up or
// cancels the others.
type Notifier struct {
	channels []Channel
	timeout  time.Duration
	logger   *zap.Logger
}

var _ schemas.Notifier = (*Notifier)(nil)

// Option customizes a Notifier.
type Option func(*Notifier)

// WithChannels replaces the default channel set.
func WithChannels(channels ...Channel) Option {
	return func(n *Notifier) { n.channels = channels }
}

// NewNotifier builds a notifier with the Telegram, PushPlus and webhook channels.
func NewNotifier(cfg config.NotifyConfig, logger *zap.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		channels: []Channel{
			NewTelegram(cfg.TelegramAPI),
			NewPushPlus(cfg.PushPlusAPI),
			NewWebhook(),
		},
		timeout: cfg.Timeout,
		logger:  logger.Named("notify"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Format renders the text every channel receives.
func Format(account, message string) string {
	return "【" + account + "】" + message
}

// Notify delivers message to every channel configured in targets and waits
// for all attempts to finish. No configured channel is a silent no-op.
func (n *Notifier) Notify(ctx context.Context, targets schemas.NotificationTargets, message string) {
	var active []Channel
	for _, ch := range n.channels {
		if ch.Configured(targets) {
			active = append(active, ch)
		}
	}
	if len(active) == 0 {
		return
	}

	client := n.client(targets.Proxy)
	text := Format(targets.Account, message)

	// A plain Group: one channel's error must not cancel its siblings.
	var g errgroup.Group
	for _, ch := range active {
		g.Go(func() error {
			if err := ch.Send(ctx, client, targets, text); err != nil {
				n.logger.Error("Notification delivery failed.", zap.String("channel", ch.Name()), zap.Error(err))
				return nil
			}
			n.logger.Debug("Notification delivered.", zap.String("channel", ch.Name()))
			return nil
		})
	}
	_ = g.Wait()
}

func (n *Notifier) client(proxy string) *http.Client {
	client, err := network.NewHTTPClient(network.ClientConfig{Proxy: proxy, RequestTimeout: n.timeout, Logger: n.logger})
	if err == nil {
		return client
	}
	n.logger.Warn("Notification proxy rejected, delivering directly.", zap.Error(err))
	client, _ = network.NewHTTPClient(network.ClientConfig{RequestTimeout: n.timeout, Logger: n.logger})
	return client
}
