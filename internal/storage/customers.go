package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// GetCustomer fetches a customer by ID. Returns ErrNotFound if no row exists.
func (db *DB) GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error) {
	var c model.Customer
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, email, phone, created_at FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Customer{}, ErrNotFound
	}
	if err != nil {
		return model.Customer{}, fmt.Errorf("storage: get customer: %w", err)
	}
	return c, nil
}

// ListCustomers returns all customers ordered by creation time.
func (db *DB) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, email, phone, created_at FROM customers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list customers: %w", err)
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// CreateCustomer inserts a customer row. The ID is generated if zero.
func (db *DB) CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO customers (id, name, email, phone) VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		c.ID, c.Name, c.Email, c.Phone,
	).Scan(&c.CreatedAt)
	if err != nil {
		return model.Customer{}, fmt.Errorf("storage: create customer: %w", err)
	}
	return c, nil
}
