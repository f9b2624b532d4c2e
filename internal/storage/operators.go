package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Operator is an admin account allowed to read the audit surface.
type Operator struct {
	ID         uuid.UUID
	OperatorID string
	APIKeyHash string
}

// GetOperator fetches an operator by its external identifier.
// Returns ErrNotFound if no row exists.
func (db *DB) GetOperator(ctx context.Context, operatorID string) (Operator, error) {
	var op Operator
	err := db.pool.QueryRow(ctx,
		`SELECT id, operator_id, api_key_hash FROM operators WHERE operator_id = $1`,
		operatorID,
	).Scan(&op.ID, &op.OperatorID, &op.APIKeyHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return Operator{}, ErrNotFound
	}
	if err != nil {
		return Operator{}, fmt.Errorf("storage: get operator: %w", err)
	}
	return op, nil
}

// UpsertOperator creates or replaces an operator credential.
func (db *DB) UpsertOperator(ctx context.Context, operatorID, apiKeyHash string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO operators (id, operator_id, api_key_hash) VALUES ($1, $2, $3)
		 ON CONFLICT (operator_id) DO UPDATE SET api_key_hash = EXCLUDED.api_key_hash`,
		uuid.New(), operatorID, apiKeyHash)
	if err != nil {
		return fmt.Errorf("storage: upsert operator: %w", err)
	}
	return nil
}
