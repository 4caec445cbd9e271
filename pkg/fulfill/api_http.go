package fulfill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const defaultRetryDelay = 2 * time.Second

// HTTPAPIClient is the production implementation of APIClient using HTTP.
// All requests go through a client-side rate limiter enforcing a minimum
// inter-request interval, and 429 responses are retried once after the
// server-supplied Retry-After delay.
type HTTPAPIClient struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MinInterval time.Duration // Minimum delay between any two requests
	UserAgent   string
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	minInterval := cfg.MinInterval
	if minInterval == 0 {
		minInterval = 150 * time.Millisecond
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "EveryPlants-Batchmaker/3.0"
	}

	return &HTTPAPIClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// GetPicklist fetches a single picklist by id.
func (c *HTTPAPIClient) GetPicklist(ctx context.Context, picklistID int) (*Picklist, error) {
	var picklist Picklist
	path := fmt.Sprintf("/picklists/%d", picklistID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &picklist); err != nil {
		return nil, err
	}
	return &picklist, nil
}

// CreatePicklistBatch groups picklists into one platform batch.
func (c *HTTPAPIClient) CreatePicklistBatch(ctx context.Context, picklistIDs []int) (*PicklistBatch, error) {
	body := map[string]any{"picklists": picklistIDs}
	var batch PicklistBatch
	if err := c.doJSON(ctx, http.MethodPost, "/picklists/batches", body, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetShippingMethods lists shipping methods available for a picklist.
func (c *HTTPAPIClient) GetShippingMethods(ctx context.Context, picklistID int) ([]ShippingMethod, error) {
	var methods []ShippingMethod
	path := fmt.Sprintf("/picklists/%d/shippingmethods", picklistID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// CreateShipment creates a single-parcel shipment for a picklist.
// ?return=shipment makes the platform return the shipment object directly.
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, picklistID int, req *ShipmentRequest) (*Shipment, error) {
	var shipment Shipment
	path := fmt.Sprintf("/picklists/%d/shipments?return=shipment", picklistID)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &shipment); err != nil {
		return nil, err
	}
	return &shipment, nil
}

// CreateMulticolloShipment creates one shipment with multiple parcels.
func (c *HTTPAPIClient) CreateMulticolloShipment(ctx context.Context, picklistID int, req *MulticolloRequest) (*Shipment, error) {
	var shipment Shipment
	path := fmt.Sprintf("/picklists/%d/shipments/multicollo?return=shipment", picklistID)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &shipment); err != nil {
		return nil, err
	}
	return &shipment, nil
}

// GetLabel downloads the label document bytes for a shipment.
func (c *HTTPAPIClient) GetLabel(ctx context.Context, shipmentID int, labelURL string) ([]byte, error) {
	var resp *http.Response
	var err error

	if labelURL != "" {
		resp, err = c.doAbsolute(ctx, http.MethodGet, labelURL)
	} else {
		resp, err = c.do(ctx, http.MethodGet, fmt.Sprintf("/shipments/%d/label", shipmentID), nil)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError("get-label", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Operation: "get-label", Message: "reading label body", Cause: err}
	}
	if len(data) == 0 {
		return nil, newAPIError("get-label", "empty label document", resp.StatusCode)
	}
	return data, nil
}

// PickProduct marks an amount of one product on a picklist as picked.
func (c *HTTPAPIClient) PickProduct(ctx context.Context, picklistID, productID, amount int) error {
	body := map[string]any{"idproduct": productID, "amount": amount}
	path := fmt.Sprintf("/picklists/%d/pick", picklistID)
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// ClosePicklist closes a picklist on the platform.
func (c *HTTPAPIClient) ClosePicklist(ctx context.Context, picklistID int) error {
	path := fmt.Sprintf("/picklists/%d/close", picklistID)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// GetTags lists all tags defined on the platform.
func (c *HTTPAPIClient) GetTags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := c.doJSON(ctx, http.MethodGet, "/tags", nil, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// AddPicklistTag attaches a tag to a picklist.
func (c *HTTPAPIClient) AddPicklistTag(ctx context.Context, picklistID, tagID int) error {
	body := map[string]any{"idtag": tagID}
	path := fmt.Sprintf("/picklists/%d/tags", picklistID)
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// doJSON performs a request against the API and decodes the JSON response
// into out when out is non-nil.
func (c *HTTPAPIClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseError(method+" "+path, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Operation: method + " " + path, Message: "decoding response", Cause: err}
	}
	return nil
}

// do performs one rate-limited request against a path relative to baseURL.
// A 429 response is retried once after the Retry-After delay.
func (c *HTTPAPIClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, &APIError{Operation: method + " " + path, Message: "encoding request", Cause: err}
		}
	}

	retried := false
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, &APIError{Operation: method + " " + path, Message: "building request", Cause: err}
		}
		req.SetBasicAuth(c.apiKey, "")
		req.Header.Set("User-Agent", c.userAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &APIError{Operation: method + " " + path, Message: "request failed", Cause: err}
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		delay := retryAfterDelay(resp)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if retried {
			return nil, &APIError{
				Operation:  method + " " + path,
				Message:    "still throttled after retry",
				StatusCode: http.StatusTooManyRequests,
				RetryAfter: delay,
				Cause:      ErrThrottled,
			}
		}
		retried = true

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// doAbsolute fetches an absolute URL (label documents are served from
// carrier-hosted URLs outside the API base).
func (c *HTTPAPIClient) doAbsolute(ctx context.Context, method, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, &APIError{Operation: "get-label", Message: "building request", Cause: err}
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Operation: "get-label", Message: "request failed", Cause: err}
	}
	return resp, nil
}

func (c *HTTPAPIClient) parseError(operation string, resp *http.Response) error {
	text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	apiErr := newAPIError(operation, string(bytes.TrimSpace(text)), resp.StatusCode)
	if resp.StatusCode == http.StatusNotFound {
		apiErr.Cause = ErrNotFound
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func retryAfterDelay(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryDelay
}
