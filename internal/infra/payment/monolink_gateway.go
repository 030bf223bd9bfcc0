package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"edu-subscription-platform/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.PaymentGateway = (*MonolinkGateway)(nil)

// MonolinkGateway implements the gateway port against the Monolink merchant
// HTTP API. The client performs no internal retries; callers decide whether a
// failed call is worth retrying.
type MonolinkGateway struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewMonolinkGateway(token, baseURL string) (*MonolinkGateway, error) {
	if token == "" {
		return nil, fmt.Errorf("monolink: merchant token is required")
	}
	if baseURL == "" {
		baseURL = "https://api.monolink.io/merchant"
	}
	return &MonolinkGateway{
		token:   token,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *MonolinkGateway) Name() string { return "monolink" }

type invoiceCreateRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"ccy"`
	Description string `json:"description,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

type invoiceCreateResponse struct {
	InvoiceID string `json:"invoiceId"`
	PageURL   string `json:"pageUrl"`
	ErrCode   string `json:"errCode,omitempty"`
	ErrText   string `json:"errText,omitempty"`
}

func (g *MonolinkGateway) CreateInvoice(ctx context.Context, amount int64, currency, description, redirectURL string) (adapter.Invoice, error) {
	reqBody := invoiceCreateRequest{
		Amount:      amount,
		Currency:    currency,
		Description: description,
		RedirectURL: redirectURL,
	}
	var resp invoiceCreateResponse
	if err := g.post(ctx, "/invoice/create", reqBody, &resp); err != nil {
		return adapter.Invoice{}, err
	}
	if resp.ErrCode != "" {
		return adapter.Invoice{}, fmt.Errorf("monolink: invoice create rejected: %s (%s)", resp.ErrText, resp.ErrCode)
	}
	if resp.InvoiceID == "" || resp.PageURL == "" {
		return adapter.Invoice{}, fmt.Errorf("monolink: invoice create returned incomplete payload")
	}
	return adapter.Invoice{InvoiceID: resp.InvoiceID, PageURL: resp.PageURL}, nil
}

type refundRequest struct {
	InvoiceID string `json:"invoiceId"`
	Amount    int64  `json:"amount"`
}

type refundResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	ErrCode       string `json:"errCode,omitempty"`
	ErrText       string `json:"errText,omitempty"`
}

func (g *MonolinkGateway) Refund(ctx context.Context, invoiceID string, amount int64) (adapter.RefundResult, error) {
	var resp refundResponse
	if err := g.post(ctx, "/invoice/refund", refundRequest{InvoiceID: invoiceID, Amount: amount}, &resp); err != nil {
		return adapter.RefundResult{}, err
	}
	if resp.ErrCode != "" {
		return adapter.RefundResult{}, fmt.Errorf("monolink: refund rejected: %s (%s)", resp.ErrText, resp.ErrCode)
	}
	return adapter.RefundResult{
		OK:            resp.Status == "done" || resp.Status == "processing",
		TransactionID: resp.TransactionID,
	}, nil
}

func (g *MonolinkGateway) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("monolink: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("monolink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Token", g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("monolink: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("monolink: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("monolink: %s returned %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("monolink: unmarshal response: %w, body: %s", err, string(body))
	}
	return nil
}
