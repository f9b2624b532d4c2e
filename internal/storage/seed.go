package storage

import (
	"context"
	"fmt"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// SeedDev populates an empty catalog with development fixtures: one
// over-the-counter medicine, one prescription medicine, and a test customer.
// It is a no-op when the catalog already has rows.
func (db *DB) SeedDev(ctx context.Context) error {
	var count int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM medicines`).Scan(&count); err != nil {
		return fmt.Errorf("storage: count medicines: %w", err)
	}
	if count > 0 {
		db.logger.Debug("catalog already seeded, skipping")
		return nil
	}

	if _, err := db.CreateMedicine(ctx, model.Medicine{
		Name:          "Paracetamol 500mg",
		StockQuantity: 100,
	}); err != nil {
		return err
	}
	if _, err := db.CreateMedicine(ctx, model.Medicine{
		Name:                 "Amoxicillin 500mg",
		StockQuantity:        50,
		PrescriptionRequired: true,
	}); err != nil {
		return err
	}
	customer, err := db.CreateCustomer(ctx, model.Customer{
		Name:  "Test Customer",
		Email: "test@example.com",
	})
	if err != nil {
		return err
	}

	db.logger.Info("seeded development fixtures", "customer_id", customer.ID)
	return nil
}
