// Package checkout talks to the external payment provider's checkout
// session API. The ledger only needs three facts per session: whether
// it was paid, for how much, and the payment-intent id that keys the
// finalized credit.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/servineo/billing/pkg/wallet"
)

const (
	sessionPathFormat = "/v1/checkout/sessions/%s"
	statusPaid        = "paid"
	defaultTimeout    = 10 * time.Second
)

// Client implements wallet.CheckoutProvider over the provider's HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New wires a Client. A nil httpClient gets a sane default timeout.
func New(baseURL string, apiKey string, httpClient *http.Client) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("checkout: base url is required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("checkout: invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: trimmed, apiKey: apiKey, httpClient: httpClient}, nil
}

type sessionPayload struct {
	ID            string `json:"id"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	PaymentIntent string `json:"payment_intent"`
}

// GetCheckoutSession fetches the session's payment state by session id.
func (client *Client) GetCheckoutSession(ctx context.Context, sessionID string) (wallet.CheckoutSession, error) {
	endpoint := client.baseURL + fmt.Sprintf(sessionPathFormat, url.PathEscape(sessionID))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return wallet.CheckoutSession{}, fmt.Errorf("checkout: build request: %w", err)
	}
	if client.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+client.apiKey)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return wallet.CheckoutSession{}, fmt.Errorf("checkout: session %s: %w", sessionID, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode == http.StatusNotFound {
		return wallet.CheckoutSession{}, fmt.Errorf("checkout: session %s not found", sessionID)
	}
	if response.StatusCode != http.StatusOK {
		return wallet.CheckoutSession{}, fmt.Errorf("checkout: session %s: unexpected status %d", sessionID, response.StatusCode)
	}

	var payload sessionPayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return wallet.CheckoutSession{}, fmt.Errorf("checkout: decode session %s: %w", sessionID, err)
	}
	return wallet.CheckoutSession{
		SessionID:       payload.ID,
		Paid:            payload.PaymentStatus == statusPaid,
		AmountCents:     wallet.AmountCents(payload.AmountTotal),
		PaymentIntentID: payload.PaymentIntent,
	}, nil
}
