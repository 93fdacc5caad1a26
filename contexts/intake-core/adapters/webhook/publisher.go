// Package webhook delivers finalized submissions to a webhook/callback
// destination over HTTP, HMAC-signing the body with FORMBRIDGE_WEBHOOK_SECRET.
// Errors are returned rather than retried here; retry scheduling belongs to
// the Delivery Engine worker.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/internal/shared/events"
)

// Publisher posts a signed WebhookPayload to a destination's configured URL.
type Publisher struct {
	HTTPClient *http.Client
	Secret     string
}

func New(secret string) *Publisher {
	return &Publisher{HTTPClient: &http.Client{Timeout: 10 * time.Second}, Secret: secret}
}

func (p *Publisher) Deliver(ctx context.Context, dest entities.Destination, submissionID string, fields map[string]any) error {
	if dest.URL == "" {
		return fmt.Errorf("webhook destination has no URL configured")
	}

	body, err := json.Marshal(events.WebhookPayload{
		EventType:     "submission.finalized",
		SubmissionID:  submissionID,
		OccurredAtUTC: time.Now().UTC(),
		Fields:        fields,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Secret != "" {
		req.Header.Set("X-Formbridge-Signature", sign(p.Secret, body))
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook destination returned status %d", resp.StatusCode)
	}
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
