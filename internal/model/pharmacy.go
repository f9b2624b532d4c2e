// Package model defines the domain types shared by the pipeline, storage,
// and HTTP layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a registered customer of the intake channel.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Medicine is a catalog entry. StockQuantity is mutated only by the order
// execution engine, under a row lock, and never goes negative.
type Medicine struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	StockQuantity        int       `json:"stock_quantity"`
	PrescriptionRequired bool      `json:"prescription_required"`
	CreatedAt            time.Time `json:"created_at"`
}

// Prescription authorizes a customer to order an Rx medicine.
// Valid iff ValidUntil >= now. Read-only to the pipeline.
type Prescription struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	MedicineID uuid.UUID `json:"medicine_id"`
	ValidUntil time.Time `json:"valid_until"`
	CreatedAt  time.Time `json:"created_at"`
}

// RequestedItem is one item parsed out of the free-text message.
// Produced once by the extractor; immutable afterward.
type RequestedItem struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage,omitempty"`
	Quantity int    `json:"quantity"`
}

// OrderItem is one line of an executed order.
type OrderItem struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	MedicineID uuid.UUID `json:"medicine_id"`
	Quantity   int       `json:"quantity"`
	Dosage     string    `json:"dosage,omitempty"`
	Position   int       `json:"position"`
}

// Order aggregates the items of one executed request. Created exactly once,
// atomically with the stock decrements for all its items.
type Order struct {
	ID         uuid.UUID   `json:"id"`
	CustomerID uuid.UUID   `json:"customer_id"`
	Items      []OrderItem `json:"items"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OrderHistoryRecord is the flattened per-item history row. Created exactly
// once per successfully executed order item; immutable afterward.
type OrderHistoryRecord struct {
	ID           uuid.UUID `json:"id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	MedicineName string    `json:"medicine_name"`
	Quantity     int       `json:"quantity"`
	CreatedAt    time.Time `json:"created_at"`
}

// RefillAlert is an advisory produced by the refill analyzer. It never
// blocks execution.
type RefillAlert struct {
	MedicineName       string    `json:"medicine_name"`
	LastOrderDate      time.Time `json:"last_order_date"`
	DaysSinceLastOrder int       `json:"days_since_last_order"`
	Message            string    `json:"message"`
}
