package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"food-ordering-backend/internal/domains/payment/gateway"
)

// =====================================================
// SANDBOX GATEWAY FOR DEVELOPMENT AND TESTS
// =====================================================

// Gateway issues deterministic intents without network calls.
// Webhooks are still verified with the real signature scheme so
// local tooling can post signed events.
type Gateway struct {
	mu         sync.Mutex
	verifier   *gateway.Verifier
	shouldFail bool
	delay      time.Duration
	calls      int
	refunds    map[uuid.UUID]string
}

func NewGateway(webhookSecret string) *Gateway {
	return &Gateway{
		verifier: gateway.NewVerifier(webhookSecret, gateway.DefaultTolerance),
		refunds:  map[uuid.UUID]string{},
	}
}

func (g *Gateway) CreateIntent(ctx context.Context, orderID uuid.UUID, amountMinor int64, currency string) (*gateway.Intent, error) {
	g.mu.Lock()
	g.calls++
	fail, delay := g.shouldFail, g.delay
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, fmt.Errorf("sandbox intent creation failed")
	}

	// same order, same intent
	sum := sha256.Sum256([]byte(gateway.IdempotencyKey(orderID)))
	id := "pi_sandbox_" + hex.EncodeToString(sum[:12])

	return &gateway.Intent{
		IntentID:     id,
		ClientSecret: id + "_secret",
	}, nil
}

// Refund hands back the same refund id for repeated requests on one payment
func (g *Gateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.shouldFail {
		return nil, fmt.Errorf("sandbox refund failed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, ok := g.refunds[req.PaymentID]
	if !ok {
		sum := sha256.Sum256([]byte(gateway.RefundIdempotencyKey(req.PaymentID)))
		id = "re_sandbox_" + hex.EncodeToString(sum[:12])
		g.refunds[req.PaymentID] = id
	}
	return &gateway.Refund{RefundID: id, Status: "succeeded"}, nil
}

func (g *Gateway) VerifyWebhookSignature(payload []byte, header string) bool {
	return g.verifier.Verify(payload, header)
}

// SetFail makes CreateIntent and Refund fail
func (g *Gateway) SetFail(shouldFail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shouldFail = shouldFail
}

// SetDelay slows CreateIntent down to exercise timeouts
func (g *Gateway) SetDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = d
}

// Calls returns how many intents and refunds were requested
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
