package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/makt28/tgwatch/internal/config"
)

// Delivery statuses reported per channel.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Result is the delivery outcome for one channel.
type Result struct {
	Channel string
	Status  string
	Err     error
}

// Dispatcher fans an event out to every configured channel.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
}

// NewDispatcher creates a dispatcher over the given channels. Each send gets
// its own timeout.
func NewDispatcher(timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{notifiers: notifiers, timeout: timeout}
}

// FromConfig builds the Mattermost and Telegram channels.
func FromConfig(cfg config.NotifyConfig, client *http.Client) *Dispatcher {
	return NewDispatcher(cfg.Timeout,
		&MattermostNotifier{
			WebhookURL: cfg.Mattermost.WebhookURL,
			Username:   cfg.Mattermost.Username,
			IconURL:    cfg.Mattermost.IconURL,
			Client:     client,
		},
		&TelegramNotifier{
			BaseURL:  cfg.Telegram.BaseURL,
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			Client:   client,
		},
	)
}

// Dispatch sends the event to every channel independently. It never fails as
// a whole: per-channel outcomes are returned for the caller to inspect.
func (d *Dispatcher) Dispatch(ctx context.Context, event AlertEvent) []Result {
	text := FormatMessage(event)
	results := make([]Result, 0, len(d.notifiers))

	for _, n := range d.notifiers {
		if err := n.Validate(); err != nil {
			slog.Debug("notifier not configured, skipping", "type", n.Type(), "reason", err)
			results = append(results, Result{Channel: n.Type(), Status: StatusSkipped})
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := n.Send(sendCtx, text)
		cancel()

		if err != nil {
			slog.Error("notification send failed",
				"type", n.Type(),
				"event_type", event.Type,
				"error", err,
			)
			results = append(results, Result{Channel: n.Type(), Status: StatusFailed, Err: err})
			continue
		}

		slog.Info("notification sent", "type", n.Type(), "event_type", event.Type)
		results = append(results, Result{Channel: n.Type(), Status: StatusSent})
	}

	return results
}

// redactURL drops the request URL from transport errors. Webhook URLs and
// bot API paths are credentials.
func redactURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

func clientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 10 * time.Second}
}
