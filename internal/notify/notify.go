// Package notify holds the outbound side-effect ports of order execution:
// the warehouse fulfillment notification and the customer confirmation.
// Ports are synchronous and report failure as an error; the pipeline records
// the failure as a status and never rolls an order back because of it.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// Port call statuses recorded in the execution summary.
const (
	StatusDelivered = "delivered"
	StatusSent      = "sent"
	StatusFailed    = "failed"
)

// OrderCreatedEvent is the fulfillment payload sent downstream when an order
// commits.
type OrderCreatedEvent struct {
	Event      string                `json:"event"`
	OrderID    uuid.UUID             `json:"order_id"`
	CustomerID uuid.UUID             `json:"customer_id"`
	Medicines  []model.RequestedItem `json:"medicines"`
	Timestamp  time.Time             `json:"timestamp"`
	Priority   string                `json:"priority"`
}

// NewOrderCreatedEvent builds the standard payload for one committed order.
func NewOrderCreatedEvent(orderID, customerID uuid.UUID, medicines []model.RequestedItem) OrderCreatedEvent {
	return OrderCreatedEvent{
		Event:      "order.created",
		OrderID:    orderID,
		CustomerID: customerID,
		Medicines:  medicines,
		Timestamp:  time.Now().UTC(),
		Priority:   "standard",
	}
}

// FulfillmentNotifier delivers an order to the downstream warehouse system.
type FulfillmentNotifier interface {
	NotifyOrderCreated(ctx context.Context, event OrderCreatedEvent) error
}

// ConfirmationSender notifies the customer that their order was placed.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, customer model.Customer, orderID uuid.UUID, medicines []model.RequestedItem) error
}
