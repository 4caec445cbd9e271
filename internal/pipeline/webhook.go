package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookPayload is the batch-finished notification body.
type WebhookPayload struct {
	BatchID             string  `json:"batchId"`
	Status              string  `json:"status"`
	TotalOrders         int     `json:"totalOrders"`
	SuccessfulShipments int     `json:"successfulShipments"`
	FailedShipments     int     `json:"failedShipments"`
	CombinedPDFURL      *string `json:"combinedPdfUrl"`
	ExternalBatchIDs    []int   `json:"externalBatchIds"`
}

// Notifier delivers the batch-finished webhook. One POST per batch, no retry
// loop; the caller records the outcome on the batch record.
type Notifier struct {
	url        string
	httpClient *http.Client
}

// NewNotifier builds a notifier for the given endpoint. An empty URL yields
// a disabled notifier.
func NewNotifier(url string) *Notifier {
	return &Notifier{
		url: url,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Notify sends the payload. Any non-2xx response is an error.
func (n *Notifier) Notify(ctx context.Context, payload *WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivering webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
