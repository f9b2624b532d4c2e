package model

import "github.com/google/uuid"

// RequestContext is the shared aggregate for one pipeline run. Each stage
// owns exactly one field group and appends to Trace; once a field is set by
// its owning stage, later stages read but never replace it.
type RequestContext struct {
	RequestID  uuid.UUID `json:"request_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Message    string    `json:"message"`

	// Written by the context provider. Most-recent-first.
	History []OrderHistoryRecord `json:"history,omitempty"`

	// Written by the extractor.
	ExtractedItems []RequestedItem `json:"extracted_items,omitempty"`

	// Written by the safety engine.
	Safety *SafetyResult `json:"safety,omitempty"`

	// Written by the order executor; nil when the request was not approved.
	Execution *ExecutionResult `json:"execution,omitempty"`

	// Written by the refill analyzer.
	RefillAlerts []RefillAlert `json:"refill_alerts,omitempty"`

	// Append-only; one record per stage, in stage order.
	Trace []TraceRecord `json:"trace"`
}
