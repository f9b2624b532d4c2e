package model

import (
	"time"

	"github.com/google/uuid"
)

// Stage agent names, in pipeline order. Every run appends exactly one trace
// record per stage, in this order.
const (
	AgentContextProvider = "context_provider"
	AgentExtractor       = "extractor"
	AgentSafetyEngine    = "safety_engine"
	AgentOrderExecutor   = "order_executor"
	AgentRefillAnalyzer  = "refill_analyzer"
)

// Trace decisions recorded by stages whose decision is fixed.
const (
	TraceContextProvided = "context_provided"
	TraceExtracted       = "extracted"
	TraceExecuted        = "executed"
	TraceAlertsGenerated = "alerts_generated"
)

// TraceRecord is one immutable audit entry describing a single stage's
// input, reasoning, and decision for one pipeline run. Write-once.
type TraceRecord struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`
	StageSeq  int       `json:"stage_seq"`
	AgentName string    `json:"agent_name"`
	Input     any       `json:"input"`
	Reasoning []string  `json:"reasoning,omitempty"`
	Decision  string    `json:"decision"`
	Output    any       `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}

// TraceFilter selects trace records on the admin query surface.
type TraceFilter struct {
	AgentName string
	From      *time.Time
	To        *time.Time
	Limit     int
}
