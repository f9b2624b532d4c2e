package safety

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// DefaultMaxQtyPerOrder caps how many units of one medicine a single order
// may request.
const DefaultMaxQtyPerOrder = 30

// Store is the read surface the engine needs. The stock read here is
// advisory; the execution engine re-verifies under a row lock.
type Store interface {
	ListMedicines(ctx context.Context) ([]model.Medicine, error)
	HasActivePrescription(ctx context.Context, customerID, medicineID uuid.UUID) (bool, error)
}

// Engine evaluates extracted items against catalog, stock, dosage, quantity,
// and prescription policy.
type Engine struct {
	store          Store
	maxQtyPerOrder int
	logger         *slog.Logger
}

// NewEngine creates an Engine. maxQtyPerOrder <= 0 selects the default cap.
func NewEngine(store Store, maxQtyPerOrder int, logger *slog.Logger) *Engine {
	if maxQtyPerOrder <= 0 {
		maxQtyPerOrder = DefaultMaxQtyPerOrder
	}
	return &Engine{store: store, maxQtyPerOrder: maxQtyPerOrder, logger: logger}
}

// Evaluate runs every policy rule against every item and aggregates one
// decision for the whole request. Business outcomes (blocked, clarification)
// are returned as data; only infrastructure failures return an error.
//
// The returned reasoning lines cover all items in item order and feed the
// stage trace record.
func (e *Engine) Evaluate(ctx context.Context, customerID uuid.UUID, items []model.RequestedItem) (model.SafetyResult, []string, error) {
	var (
		violations     []string
		clarifications []string
		reasoning      []string
		resolved       []model.ResolvedItem
		errorType      model.ErrorType
	)

	if len(items) == 0 {
		reasoning = append(reasoning, "no medicines found in extraction")
		return model.SafetyResult{
			Approved:               false,
			Decision:               model.DecisionBlocked,
			Reason:                 "Request blocked by safety rules",
			Violations:             []string{"No medicines requested"},
			ClarificationQuestions: []string{},
			ErrorType:              model.ErrorTypeValidation,
		}, reasoning, nil
	}

	catalog, err := e.store.ListMedicines(ctx)
	if err != nil {
		return model.SafetyResult{}, nil, fmt.Errorf("safety: load catalog: %w", err)
	}

	for _, item := range items {
		// Per-item violation types, used to settle the overall errorType:
		// the first item with violations decides, and VALIDATION wins over
		// SAFETY when one item produces both.
		var itemTypes []model.ErrorType

		medicine, ok := resolve(item.Name, catalog)
		if !ok {
			violations = append(violations, fmt.Sprintf("Medicine not found: %s", item.Name))
			reasoning = append(reasoning, fmt.Sprintf("medicine %q not found in catalog", item.Name))
			if errorType == model.ErrorTypeNone {
				errorType = model.ErrorTypeValidation
			}
			continue
		}
		reasoning = append(reasoning, fmt.Sprintf("found medicine %q (OTC=%t)", medicine.Name, !medicine.PrescriptionRequired))
		resolved = append(resolved, model.ResolvedItem{Item: item, Medicine: medicine})

		if item.Quantity > e.maxQtyPerOrder {
			violations = append(violations, fmt.Sprintf("Quantity %d exceeds allowed limit (%d)", item.Quantity, e.maxQtyPerOrder))
			reasoning = append(reasoning, fmt.Sprintf("quantity %d exceeds max limit of %d", item.Quantity, e.maxQtyPerOrder))
			itemTypes = append(itemTypes, model.ErrorTypeSafety)
		}

		if medicine.StockQuantity < item.Quantity {
			violations = append(violations, fmt.Sprintf("Insufficient stock for %s (available: %d, requested: %d)",
				medicine.Name, medicine.StockQuantity, item.Quantity))
			reasoning = append(reasoning, fmt.Sprintf("stock insufficient: %d available, %d requested",
				medicine.StockQuantity, item.Quantity))
			itemTypes = append(itemTypes, model.ErrorTypeValidation)
		} else {
			reasoning = append(reasoning, fmt.Sprintf("stock available: %d units", medicine.StockQuantity))
		}

		dosageValue := DosageValue(item.Dosage)
		if dosageValue > 0 {
			if limit, known := CeilingFor(Normalize(medicine.Name)); known {
				if dosageValue > limit {
					violations = append(violations, fmt.Sprintf("Dosage %dmg exceeds safe daily limit (%dmg)", dosageValue, limit))
					reasoning = append(reasoning, fmt.Sprintf("dosage %dmg exceeds safe daily limit of %dmg", dosageValue, limit))
					itemTypes = append(itemTypes, model.ErrorTypeSafety)
				} else {
					reasoning = append(reasoning, fmt.Sprintf("dosage %dmg within safe limit (%dmg/day)", dosageValue, limit))
				}
			}
		} else {
			// Missing dosage asks a question instead of blocking.
			clarifications = append(clarifications, fmt.Sprintf("How many mg per dose of %s? (e.g., 500mg)", medicine.Name))
			reasoning = append(reasoning, fmt.Sprintf("dosage not specified for %s", medicine.Name))
		}

		if medicine.PrescriptionRequired {
			hasRx, err := e.store.HasActivePrescription(ctx, customerID, medicine.ID)
			if err != nil {
				return model.SafetyResult{}, nil, fmt.Errorf("safety: check prescription: %w", err)
			}
			if !hasRx {
				violations = append(violations, fmt.Sprintf("Valid prescription required for %s", medicine.Name))
				reasoning = append(reasoning, fmt.Sprintf("no valid prescription found for Rx medicine %q", medicine.Name))
				itemTypes = append(itemTypes, model.ErrorTypeSafety)
			} else {
				reasoning = append(reasoning, fmt.Sprintf("valid prescription found for Rx medicine %q", medicine.Name))
			}
		} else {
			reasoning = append(reasoning, fmt.Sprintf("%q is OTC, no prescription required", medicine.Name))
		}

		if errorType == model.ErrorTypeNone && len(itemTypes) > 0 {
			errorType = model.ErrorTypeSafety
			for _, t := range itemTypes {
				if t == model.ErrorTypeValidation {
					errorType = model.ErrorTypeValidation
					break
				}
			}
		}
	}

	result := model.SafetyResult{
		Violations:             violations,
		ClarificationQuestions: clarifications,
		Resolved:               resolved,
	}
	if result.Violations == nil {
		result.Violations = []string{}
	}
	if result.ClarificationQuestions == nil {
		result.ClarificationQuestions = []string{}
	}

	switch {
	case len(violations) > 0:
		result.Approved = false
		result.Decision = model.DecisionBlocked
		result.Reason = "Request blocked by safety rules"
		result.ErrorType = errorType
	case len(clarifications) > 0:
		result.Approved = false
		result.Decision = model.DecisionClarificationRequired
		result.Reason = "Clarification needed"
		result.ErrorType = model.ErrorTypeNone
	default:
		result.Approved = true
		result.Decision = model.DecisionApproved
		result.Reason = "All safety checks passed"
		result.ErrorType = model.ErrorTypeNone
	}

	e.logger.Debug("safety evaluation complete",
		"decision", result.Decision,
		"violations", len(violations),
		"clarifications", len(clarifications))
	return result, reasoning, nil
}

// resolve matches a requested name against the catalog: exact normalized
// match first, then the first entry whose normalized name contains, or is
// contained in, the normalized request.
func resolve(requested string, catalog []model.Medicine) (model.Medicine, bool) {
	norm := Normalize(requested)
	for _, m := range catalog {
		if norm == Normalize(m.Name) {
			return m, true
		}
	}
	for _, m := range catalog {
		dbNorm := Normalize(m.Name)
		if norm == "" || dbNorm == "" {
			continue
		}
		if strings.Contains(norm, dbNorm) || strings.Contains(dbNorm, norm) {
			return m, true
		}
	}
	return model.Medicine{}, false
}
