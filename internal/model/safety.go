package model

import "github.com/google/uuid"

// Decision is the terminal outcome of a safety evaluation.
type Decision string

const (
	DecisionApproved              Decision = "approved"
	DecisionClarificationRequired Decision = "clarification_required"
	DecisionBlocked               Decision = "blocked"
)

// ErrorType classifies why a request was blocked.
//
// VALIDATION: malformed or unresolvable input (unknown medicine,
// insufficient stock, empty item list). SAFETY: policy violation (dosage
// ceiling, quantity cap, missing prescription). SYSTEM: unclassified
// internal failure. A clarification outcome carries no error type.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeSafety     ErrorType = "SAFETY"
	ErrorTypeSystem     ErrorType = "SYSTEM"
	ErrorTypeNone       ErrorType = ""
)

// SafetyResult is the aggregated outcome of evaluating every requested item.
// A single run reports one decision for the whole request, never per item.
type SafetyResult struct {
	Approved               bool      `json:"approved"`
	Decision               Decision  `json:"decision"`
	Reason                 string    `json:"reason"`
	Violations             []string  `json:"violations"`
	ClarificationQuestions []string  `json:"clarification_questions"`
	ErrorType              ErrorType `json:"error_type,omitempty"`

	// Resolved carries the catalog rows matched during evaluation, keyed by
	// position in the extracted item list. The execution engine re-verifies
	// stock under lock; this is advisory input only.
	Resolved []ResolvedItem `json:"-"`
}

// ResolvedItem pairs a requested item with the catalog medicine it matched.
type ResolvedItem struct {
	Item     RequestedItem
	Medicine Medicine
}

// ExecutionResult summarizes the order execution stage.
type ExecutionResult struct {
	OrderID            uuid.UUID `json:"order_id"`
	Actions            []string  `json:"actions"`
	NotificationStatus string    `json:"notification_status"`
	ConfirmationStatus string    `json:"confirmation_status"`
}

// Execution action tags, in the order the engine performs them.
const (
	ActionOrderCreated     = "order_created"
	ActionInventoryUpdated = "inventory_updated"
	ActionWebhookTriggered = "webhook_triggered"
	ActionConfirmationSent = "confirmation_sent"
)
