package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// RecentHistory returns the customer's most recent order history records,
// newest first, capped at limit.
func (db *DB) RecentHistory(ctx context.Context, customerID uuid.UUID, limit int) ([]model.OrderHistoryRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, customer_id, medicine_name, quantity, created_at
		 FROM order_history
		 WHERE customer_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: recent history: %w", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

// FullHistory returns the customer's entire order history, newest first.
func (db *DB) FullHistory(ctx context.Context, customerID uuid.UUID) ([]model.OrderHistoryRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, customer_id, medicine_name, quantity, created_at
		 FROM order_history
		 WHERE customer_id = $1
		 ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("storage: full history: %w", err)
	}
	defer rows.Close()
	return scanHistory(rows)
}

func scanHistory(rows pgx.Rows) ([]model.OrderHistoryRecord, error) {
	var records []model.OrderHistoryRecord
	for rows.Next() {
		var r model.OrderHistoryRecord
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.MedicineName, &r.Quantity, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan history record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
