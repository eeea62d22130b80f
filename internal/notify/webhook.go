package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// MattermostNotifier posts to a Mattermost-compatible incoming webhook.
type MattermostNotifier struct {
	WebhookURL string
	Username   string
	IconURL    string
	Client     *http.Client
}

func (m *MattermostNotifier) Type() string { return "mattermost" }

func (m *MattermostNotifier) Validate() error {
	if m.WebhookURL == "" {
		return errors.New("mattermost: webhook_url is required")
	}
	return nil
}

func (m *MattermostNotifier) Send(ctx context.Context, text string) error {
	payload := map[string]string{
		"username": m.Username,
		"icon_url": m.IconURL,
		"text":     text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mattermost: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.New("mattermost: create request: invalid webhook url")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := clientOrDefault(m.Client).Do(req)
	if err != nil {
		return fmt.Errorf("mattermost: send request: %w", redactURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mattermost: unexpected status %d", resp.StatusCode)
	}
	return nil
}
