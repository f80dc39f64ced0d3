// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/paper-triage/pkg/types"
)

// slackTextLimit keeps Slack payloads under the incoming-webhook size cap.
const slackTextLimit = 39000

// ErrNoWebhook is returned when delivery is requested without a target URL.
var ErrNoWebhook = errors.New("no webhook URL configured")

// Notifier delivers a finished run.
type Notifier interface {
	Notify(ctx context.Context, rec types.RunRecord) error
}

// Webhook posts the digest to a Slack incoming webhook or to any other URL
// as a JSON document carrying the full run.
type Webhook struct {
	URL    string
	Client *http.Client
}

// NewWebhook creates a webhook notifier from configuration.
func NewWebhook(cfg types.NotifyConfig) (*Webhook, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, ErrNoWebhook
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Webhook{URL: strings.TrimSpace(cfg.WebhookURL), Client: &http.Client{Timeout: timeout}}, nil
}

// IsSlack reports whether url is a Slack incoming webhook.
func IsSlack(url string) bool {
	return strings.Contains(url, "hooks.slack.com/services/")
}

type slackPayload struct {
	Text string `json:"text"`
}

// GenericPayload is the JSON body sent to non-Slack webhooks.
type GenericPayload struct {
	Date   string          `json:"date"`
	Digest string          `json:"digest"`
	Run    types.RunRecord `json:"run"`
}

// Notify sends the run's digest. A non-2xx response is an error carrying
// the start of the response body.
func (w *Webhook) Notify(ctx context.Context, rec types.RunRecord) error {
	var payload any
	if IsSlack(w.URL) {
		payload = slackPayload{Text: truncateRunes(rec.Digest, slackTextLimit)}
	} else {
		payload = GenericPayload{Date: rec.RunDate, Digest: rec.Digest, Run: rec}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 180))
		if s := strings.TrimSpace(string(msg)); s != "" {
			return fmt.Errorf("webhook returned HTTP %d: %s", resp.StatusCode, s)
		}
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
