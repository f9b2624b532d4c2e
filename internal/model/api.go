package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxMessageLen caps the intake message so a single oversized request
// cannot fill the trace table with caller-controlled garbage.
const MaxMessageLen = 4 * 1024

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// ChatRequest is the request body for POST /v1/chat, the customer intake
// endpoint.
type ChatRequest struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Message    string    `json:"message"`
}

// Validate checks intake input before the pipeline runs.
func (r ChatRequest) Validate() error {
	if r.CustomerID == uuid.Nil {
		return fmt.Errorf("customer_id is required")
	}
	if r.Message == "" {
		return fmt.Errorf("message is required")
	}
	if len(r.Message) > MaxMessageLen {
		return fmt.Errorf("message exceeds maximum length of %d bytes", MaxMessageLen)
	}
	return nil
}

// ChatResponse is the intake result surfaced to the customer channel.
type ChatResponse struct {
	Approved               bool          `json:"approved"`
	Decision               Decision      `json:"decision"`
	Reply                  string        `json:"reply"`
	OrderID                *uuid.UUID    `json:"order_id,omitempty"`
	Violations             []string      `json:"violations,omitempty"`
	ClarificationQuestions []string      `json:"clarification_questions,omitempty"`
	ErrorType              ErrorType     `json:"error_type,omitempty"`
	RefillAlerts           []RefillAlert `json:"refill_alerts,omitempty"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	OperatorID string `json:"operator_id"`
	APIKey     string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   int64  `json:"uptime_seconds"`
}
