package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Event types.
const (
	EventDown = "down"
	EventUp   = "up"
)

// Line is one probe verdict rendered into a notification.
type Line struct {
	Source  string
	Problem bool
	Detail  string
}

// AlertEvent represents a confirmed state transition to be sent via notifiers.
type AlertEvent struct {
	Type      string // "down" or "up"
	Service   string
	Timestamp time.Time
	Lines     []Line
}

// Notifier is the interface that all notification channel implementations must satisfy.
type Notifier interface {
	// Type returns the channel identifier (e.g., "telegram", "mattermost").
	Type() string

	// Send delivers a formatted message. It should return an error if delivery fails.
	Send(ctx context.Context, text string) error

	// Validate reports missing credentials. Channels that fail it are skipped.
	Validate() error
}

// FormatMessage renders the event as markdown-ish text understood by both channels.
func FormatMessage(event AlertEvent) string {
	var b strings.Builder

	at := event.Timestamp.UTC().Format(time.RFC3339)
	if event.Type == EventDown {
		fmt.Fprintf(&b, "**⚠️ %s outage detected**\n", event.Service)
		fmt.Fprintf(&b, "Detected at: %s", at)
	} else {
		fmt.Fprintf(&b, "**✅ %s recovered**\n", event.Service)
		fmt.Fprintf(&b, "Recovered at: %s", at)
	}

	for _, l := range event.Lines {
		verdict := "ok"
		if l.Problem {
			verdict = "PROBLEM"
		}
		fmt.Fprintf(&b, "\n• %s: %s", l.Source, verdict)
		if l.Detail != "" {
			fmt.Fprintf(&b, " (%s)", l.Detail)
		}
	}

	return b.String()
}
