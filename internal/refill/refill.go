// Package refill analyzes a customer's full order history and produces
// advisory refill alerts. Alerts never influence the request decision.
package refill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// alertThresholdDays is the minimum age of a medicine's most recent order
// before a refill alert fires.
const alertThresholdDays = 1

// HistoryReader provides the full order history for one customer.
type HistoryReader interface {
	FullHistory(ctx context.Context, customerID uuid.UUID) ([]model.OrderHistoryRecord, error)
}

// Analyzer generates refill alerts from order history.
type Analyzer struct {
	store  HistoryReader
	logger *slog.Logger
	now    func() time.Time
}

// NewAnalyzer creates an Analyzer using the real clock.
func NewAnalyzer(store HistoryReader, logger *slog.Logger) *Analyzer {
	return &Analyzer{store: store, logger: logger, now: time.Now}
}

// Analyze inspects the customer's entire order history and emits one alert
// per medicine whose most recent order is old enough. History is read newest
// first, so the first record seen per medicine name is its latest order.
func (a *Analyzer) Analyze(ctx context.Context, customerID uuid.UUID) ([]model.RefillAlert, []string, error) {
	history, err := a.store.FullHistory(ctx, customerID)
	if err != nil {
		return nil, nil, fmt.Errorf("refill: load history: %w", err)
	}

	latest := make(map[string]model.OrderHistoryRecord)
	var order []string
	for _, rec := range history {
		if _, seen := latest[rec.MedicineName]; !seen {
			latest[rec.MedicineName] = rec
			order = append(order, rec.MedicineName)
		}
	}

	var alerts []model.RefillAlert
	for _, name := range order {
		rec := latest[name]
		daysSince := int(a.now().Sub(rec.CreatedAt).Hours() / 24)
		if daysSince < alertThresholdDays {
			continue
		}
		alerts = append(alerts, model.RefillAlert{
			MedicineName:       name,
			LastOrderDate:      rec.CreatedAt,
			DaysSinceLastOrder: daysSince,
			Message:            fmt.Sprintf("Likely running low on %s", name),
		})
	}

	reasoning := []string{fmt.Sprintf("analyzed order history, generated %d alerts", len(alerts))}
	a.logger.Debug("refill analysis complete", "customer_id", customerID, "alerts", len(alerts))
	return alerts, reasoning, nil
}
