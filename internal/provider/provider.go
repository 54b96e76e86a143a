// Package provider talks to the external payment provider. The engine
// asks it to initiate charges; outcomes always arrive asynchronously via
// webhook (see webhook.go) and are never polled.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrProviderUnavailable is returned when the provider cannot be reached
// or answers outside the 2xx range. Recovery relies on the provider's own
// webhook retry semantics once a charge has been accepted; before that the
// caller surfaces the failure to the buyer.
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// ChargeRequest asks the provider to initiate a charge for an order.
type ChargeRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// ChargeResponse is the provider's synchronous acknowledgement. The
// definitive outcome is delivered later by webhook.
type ChargeResponse struct {
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
}

// Client initiates charges against the payment provider.
type Client interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResponse, error)
}

// HTTPClient implements Client over the provider's REST API with basic
// key authentication.
type HTTPClient struct {
	baseURL string
	apiKey  string
	name    string
	hc      *http.Client
}

// NewHTTPClient constructs an HTTPClient. name is the provider slug
// recorded on orders and webhook events.
func NewHTTPClient(name, baseURL, apiKey string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, apiKey: apiKey, name: name, hc: hc}
}

// Name returns the provider slug.
func (c *HTTPClient) Name() string { return c.name }

// Charge implements Client.
func (c *HTTPClient) Charge(ctx context.Context, req ChargeRequest) (ChargeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ChargeResponse{}, err
	}
	url := fmt.Sprintf("%s/v1/charges", c.baseURL)
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return ChargeResponse{}, err
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Accept", "application/json")
	hr.Header.Set("Authorization", "Bearer "+c.apiKey)

	hresp, err := c.hc.Do(hr)
	if err != nil {
		return ChargeResponse{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer hresp.Body.Close()

	respBody, err := io.ReadAll(hresp.Body)
	if err != nil {
		return ChargeResponse{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		return ChargeResponse{}, fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, hresp.StatusCode, respBody)
	}

	var resp ChargeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return ChargeResponse{}, fmt.Errorf("%w: malformed charge response", ErrProviderUnavailable)
	}
	return resp, nil
}
