package job

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"food-ordering-backend/internal/domains/checkout/service"
	"food-ordering-backend/internal/shared"
	"food-ordering-backend/internal/shared/utils"
)

const defaultRecoverLimit = 100

// RecoverAttemptsHandler compensates checkouts that died mid-flight
type RecoverAttemptsHandler struct {
	checkout service.CheckoutService
}

func NewRecoverAttemptsHandler(checkout service.CheckoutService) *RecoverAttemptsHandler {
	return &RecoverAttemptsHandler{checkout: checkout}
}

func (h *RecoverAttemptsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload := shared.SweepPayload{Limit: defaultRecoverLimit}
	if len(t.Payload()) > 0 {
		if err := utils.UnmarshalTask(t, &payload); err != nil {
			return err
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultRecoverLimit
	}

	if _, err := h.checkout.RecoverStuck(ctx, payload.Limit); err != nil {
		return fmt.Errorf("recover checkout attempts: %w", err)
	}
	return nil
}
