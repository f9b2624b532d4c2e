package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// ExecuteOrder creates an order atomically: it locks the medicine rows in
// ascending ID order, re-verifies stock under the lock, decrements inventory,
// and inserts the order, its items, and one history record per item. If any
// of these steps fails the whole transaction rolls back and no state changes.
//
// beforeCommit, if non-nil, runs inside the transaction scope after all
// inserts succeed. It is used to fire external ports while the order is still
// uncommitted in this session; its outcome never rolls the order back, so the
// caller records port failures as statuses rather than returning errors here.
//
// A shortfall found under the lock returns an InsufficientStockError wrapped
// by this function; the catalog read that fed the safety evaluation may be
// stale by the time the lock is taken.
func (db *DB) ExecuteOrder(ctx context.Context, customerID uuid.UUID, items []model.ResolvedItem, beforeCommit func(model.Order)) (model.Order, error) {
	if len(items) == 0 {
		return model.Order{}, fmt.Errorf("storage: execute order: no items")
	}

	// Lock rows in ascending medicine ID order so concurrent executions
	// acquire locks in the same sequence and cannot deadlock each other.
	locked := make([]model.ResolvedItem, len(items))
	copy(locked, items)
	sort.Slice(locked, func(i, j int) bool {
		return bytes.Compare(locked[i].Medicine.ID[:], locked[j].Medicine.ID[:]) < 0
	})

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Order{}, fmt.Errorf("storage: begin order tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, ri := range locked {
		var stock int
		err := tx.QueryRow(ctx,
			`SELECT stock_quantity FROM medicines WHERE id = $1 FOR UPDATE`,
			ri.Medicine.ID,
		).Scan(&stock)
		if err != nil {
			return model.Order{}, fmt.Errorf("storage: lock medicine %s: %w", ri.Medicine.Name, err)
		}
		if stock < ri.Item.Quantity {
			return model.Order{}, fmt.Errorf("storage: execute order: %w", &InsufficientStockError{
				MedicineName: ri.Medicine.Name,
				Available:    stock,
				Requested:    ri.Item.Quantity,
			})
		}
		if _, err := tx.Exec(ctx,
			`UPDATE medicines SET stock_quantity = stock_quantity - $1 WHERE id = $2`,
			ri.Item.Quantity, ri.Medicine.ID,
		); err != nil {
			return model.Order{}, fmt.Errorf("storage: decrement stock for %s: %w", ri.Medicine.Name, err)
		}
	}

	order := model.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, customer_id) VALUES ($1, $2) RETURNING created_at`,
		order.ID, order.CustomerID,
	).Scan(&order.CreatedAt)
	if err != nil {
		return model.Order{}, fmt.Errorf("storage: insert order: %w", err)
	}

	// Items keep their original request positions regardless of lock order.
	for pos, ri := range items {
		item := model.OrderItem{
			ID:         uuid.New(),
			OrderID:    order.ID,
			MedicineID: ri.Medicine.ID,
			Quantity:   ri.Item.Quantity,
			Dosage:     ri.Item.Dosage,
			Position:   pos,
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, medicine_id, quantity, dosage, position)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.OrderID, item.MedicineID, item.Quantity, item.Dosage, item.Position,
		); err != nil {
			return model.Order{}, fmt.Errorf("storage: insert order item %s: %w", ri.Medicine.Name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_history (id, customer_id, medicine_name, quantity)
			 VALUES ($1, $2, $3, $4)`,
			uuid.New(), customerID, ri.Medicine.Name, ri.Item.Quantity,
		); err != nil {
			return model.Order{}, fmt.Errorf("storage: insert history for %s: %w", ri.Medicine.Name, err)
		}
		order.Items = append(order.Items, item)
	}

	if beforeCommit != nil {
		beforeCommit(order)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Order{}, fmt.Errorf("storage: commit order tx: %w", err)
	}
	return order, nil
}

// GetOrder fetches an order with its items. Returns ErrNotFound if no row exists.
func (db *DB) GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error) {
	var o model.Order
	err := db.pool.QueryRow(ctx,
		`SELECT id, customer_id, created_at FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.CustomerID, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("storage: get order: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, order_id, medicine_id, quantity, dosage, position
		 FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return model.Order{}, fmt.Errorf("storage: get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MedicineID, &it.Quantity, &it.Dosage, &it.Position); err != nil {
			return model.Order{}, fmt.Errorf("storage: scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// ListOrders returns orders newest first, capped at limit, with their items.
func (db *DB) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, customer_id, created_at FROM orders
		 ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		full, err := db.GetOrder(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = full.Items
	}
	return orders, nil
}
