package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Notifier posts a best-effort "review requested" ping to an external
// reviewer-facing system. Its failure must never fail the Submit operation
// that triggered it — callers invoke it through notifyReviewerSafely, which
// logs and discards any error this returns.
type Notifier struct {
	HTTPClient *http.Client
	URL        string
}

func NewNotifier(url string) *Notifier {
	return &Notifier{HTTPClient: &http.Client{Timeout: 5 * time.Second}, URL: url}
}

type reviewRequestedPayload struct {
	SubmissionID string `json:"submission_id"`
	IntakeID     string `json:"intake_id"`
}

// NotifyReviewRequested makes one attempt plus one bounded retry, per the
// same backoff library the Delivery Engine uses for outbound delivery.
func (n *Notifier) NotifyReviewRequested(ctx context.Context, submissionID, intakeID string) error {
	if n.URL == "" {
		return nil
	}

	body, err := json.Marshal(reviewRequestedPayload{SubmissionID: submissionID, IntakeID: intakeID})
	if err != nil {
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 1)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("reviewer notification endpoint returned status %d", resp.StatusCode)
		}
		return nil
	}, policy)
}
