// Package queue delivers finalized submissions to a queue-kind destination
// by POSTing the versioned envelope to a queue ingestion endpoint, with the
// destination topic carried in a header. See DESIGN.md for why no broker
// client library is wired here.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"formbridge/contexts/intake-core/ports"
)

type Publisher struct {
	HTTPClient  *http.Client
	EndpointURL string
}

func New(endpointURL string) *Publisher {
	return &Publisher{HTTPClient: &http.Client{Timeout: 10 * time.Second}, EndpointURL: endpointURL}
}

func (p *Publisher) Publish(ctx context.Context, topic string, env ports.QueueEnvelope) error {
	if p.EndpointURL == "" {
		return fmt.Errorf("queue publisher has no endpoint configured")
	}

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Formbridge-Topic", topic)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("queue endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
