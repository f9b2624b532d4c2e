package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// ListMedicines returns the full catalog ordered by ID so that name matching
// is deterministic across runs.
func (db *DB) ListMedicines(ctx context.Context) ([]model.Medicine, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, stock_quantity, prescription_required, created_at
		 FROM medicines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list medicines: %w", err)
	}
	defer rows.Close()

	var medicines []model.Medicine
	for rows.Next() {
		var m model.Medicine
		if err := rows.Scan(&m.ID, &m.Name, &m.StockQuantity, &m.PrescriptionRequired, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan medicine: %w", err)
		}
		medicines = append(medicines, m)
	}
	return medicines, rows.Err()
}

// GetMedicine fetches a medicine by ID. Returns ErrNotFound if no row exists.
func (db *DB) GetMedicine(ctx context.Context, id uuid.UUID) (model.Medicine, error) {
	var m model.Medicine
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, stock_quantity, prescription_required, created_at
		 FROM medicines WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.StockQuantity, &m.PrescriptionRequired, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Medicine{}, ErrNotFound
	}
	if err != nil {
		return model.Medicine{}, fmt.Errorf("storage: get medicine: %w", err)
	}
	return m, nil
}

// CreateMedicine inserts a catalog row. The ID is generated if zero.
func (db *DB) CreateMedicine(ctx context.Context, m model.Medicine) (model.Medicine, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO medicines (id, name, stock_quantity, prescription_required)
		 VALUES ($1, $2, $3, $4) RETURNING created_at`,
		m.ID, m.Name, m.StockQuantity, m.PrescriptionRequired,
	).Scan(&m.CreatedAt)
	if err != nil {
		return model.Medicine{}, fmt.Errorf("storage: create medicine: %w", err)
	}
	return m, nil
}
