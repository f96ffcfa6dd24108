package psp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/payment/gateway"
)

// =====================================================
// PSP CLIENT IMPLEMENTATION
// =====================================================

// Config for the hosted payment processor
type Config struct {
	APIURL         string
	SecretKey      string
	WebhookSecret  string
	SignatureSkew  time.Duration
	RequestTimeout time.Duration
}

type Client struct {
	config     Config
	httpClient *http.Client
	verifier   *gateway.Verifier
}

// NewClient creates a new processor client
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		verifier: gateway.NewVerifier(config.WebhookSecret, config.SignatureSkew),
	}
}

type createIntentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type createIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent calls POST /v1/payment_intents.
// The Idempotency-Key makes replays return the original intent.
func (c *Client) CreateIntent(ctx context.Context, orderID uuid.UUID, amountMinor int64, currency string) (*gateway.Intent, error) {
	var out createIntentResponse
	err := c.post(ctx, "/v1/payment_intents", gateway.IdempotencyKey(orderID), createIntentRequest{
		Amount:   amountMinor,
		Currency: strings.ToLower(currency),
		Metadata: map[string]string{"order_id": orderID.String()},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" || out.ClientSecret == "" {
		return nil, fmt.Errorf("payment processor returned an incomplete intent")
	}

	return &gateway.Intent{
		IntentID:     out.ID,
		ClientSecret: out.ClientSecret,
	}, nil
}

type createRefundRequest struct {
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason,omitempty"`
}

type createRefundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Refund calls POST /v1/refunds for the full captured amount
func (c *Client) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	var out createRefundResponse
	err := c.post(ctx, "/v1/refunds", gateway.RefundIdempotencyKey(req.PaymentID), createRefundRequest{
		PaymentIntent: req.IntentID,
		Amount:        req.AmountMinor,
		Reason:        req.Reason,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("payment processor returned a refund without id")
	}
	return &gateway.Refund{RefundID: out.ID, Status: out.Status}, nil
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, in, out interface{}) error {
	// Step 1: Build request body
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	url := strings.TrimRight(c.config.APIURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.SecretKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	// Step 2: Call processor
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call payment processor: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read processor response: %w", err)
	}

	// Step 3: Parse response
	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.Unmarshal(raw, &e)
		return fmt.Errorf("payment processor returned %d: %s %s", resp.StatusCode, e.Error.Code, e.Error.Message)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode processor response: %w", err)
	}
	return nil
}

func (c *Client) VerifyWebhookSignature(payload []byte, header string) bool {
	return c.verifier.Verify(payload, header)
}
