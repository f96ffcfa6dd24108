package main

import (
	"time"

	"github.com/hibiken/asynq"

	checkoutJob "food-ordering-backend/internal/domains/checkout/job"
	notificationJob "food-ordering-backend/internal/domains/notification/job"
	orderJob "food-ordering-backend/internal/domains/order/job"
	paymentJob "food-ordering-backend/internal/domains/payment/job"
	"food-ordering-backend/internal/shared"
	"food-ordering-backend/pkg/container"
)

// gateway events younger than this are still owned by the webhook request
const gatewayEventRetryAge = time.Minute

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	// Payment handlers
	processGatewayEvent *paymentJob.ProcessGatewayEventHandler
	retryGatewayEvents  *paymentJob.RetryGatewayEventsHandler

	// Order handlers
	paymentDeadline    *orderJob.PaymentDeadlineHandler
	expireUnpaidOrders *orderJob.ExpireUnpaidOrdersHandler

	// Maintenance handlers
	recoverAttempts      *checkoutJob.RecoverAttemptsHandler
	cleanupNotifications *notificationJob.CleanupOldNotificationsHandler
}

// initializeHandlers creates all job handlers with their dependencies
func initializeHandlers(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		processGatewayEvent: paymentJob.NewProcessGatewayEventHandler(c.PaymentService),
		retryGatewayEvents:  paymentJob.NewRetryGatewayEventsHandler(c.PaymentService, gatewayEventRetryAge),

		paymentDeadline:    orderJob.NewPaymentDeadlineHandler(c.OrderService),
		expireUnpaidOrders: orderJob.NewExpireUnpaidOrdersHandler(c.OrderService),

		recoverAttempts:      checkoutJob.NewRecoverAttemptsHandler(c.CheckoutService),
		cleanupNotifications: notificationJob.NewCleanupOldNotificationsHandler(c.NotificationService, 0),
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	// Payment tasks
	mux.HandleFunc(shared.TypeProcessGatewayEvent, h.processGatewayEvent.ProcessTask)
	mux.HandleFunc(shared.TypeRetryGatewayEvents, h.retryGatewayEvents.ProcessTask)

	// Order tasks
	mux.HandleFunc(shared.TypePaymentDeadline, h.paymentDeadline.ProcessTask)
	mux.HandleFunc(shared.TypeExpireUnpaidOrders, h.expireUnpaidOrders.ProcessTask)

	// Maintenance tasks
	mux.HandleFunc(shared.TypeRecoverCheckoutAttempts, h.recoverAttempts.ProcessTask)
	mux.HandleFunc(shared.TypeCleanupNotifications, h.cleanupNotifications.ProcessTask)
}
