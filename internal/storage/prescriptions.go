package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// HasActivePrescription reports whether the customer holds a prescription for
// the medicine that is still valid at the time of the query.
func (db *DB) HasActivePrescription(ctx context.Context, customerID, medicineID uuid.UUID) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM prescriptions
			WHERE customer_id = $1 AND medicine_id = $2 AND valid_until >= now()
		)`, customerID, medicineID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: check prescription: %w", err)
	}
	return exists, nil
}

// CreatePrescription inserts a prescription row. The ID is generated if zero.
func (db *DB) CreatePrescription(ctx context.Context, p model.Prescription) (model.Prescription, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO prescriptions (id, customer_id, medicine_id, valid_until)
		 VALUES ($1, $2, $3, $4) RETURNING created_at`,
		p.ID, p.CustomerID, p.MedicineID, p.ValidUntil,
	).Scan(&p.CreatedAt)
	if err != nil {
		return model.Prescription{}, fmt.Errorf("storage: create prescription: %w", err)
	}
	return p, nil
}
