package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yakkyoku-ai/yakkyoku/internal/auth"
	"github.com/yakkyoku-ai/yakkyoku/internal/model"
	"github.com/yakkyoku-ai/yakkyoku/internal/pipeline"
	"github.com/yakkyoku-ai/yakkyoku/internal/storage"
)

// Customer-facing reply lines for the intake channel.
const (
	replyOrderPlaced = "Order placed successfully"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db           *storage.DB
	jwtMgr       *auth.JWTManager
	runner       *pipeline.Runner
	logger       *slog.Logger
	version      string
	maxBodyBytes int64
	startTime    time.Time
}

// HandleChat runs the full intake pipeline for one customer message and
// returns the outcome. The response is 200 regardless of the safety
// decision; a blocked request is a successful evaluation, not an HTTP error.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req model.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	rc, err := h.runner.Run(r.Context(), req.CustomerID, req.Message)
	if err != nil {
		if errors.Is(err, pipeline.ErrCustomerNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "customer not found")
			return
		}
		h.logger.Error("pipeline run failed", "error", err, "customer_id", req.CustomerID)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "request processing failed")
		return
	}

	writeJSON(w, r, http.StatusOK, chatResponseFrom(rc))
}

// chatResponseFrom flattens a completed pipeline run into the intake reply.
func chatResponseFrom(rc *model.RequestContext) model.ChatResponse {
	resp := model.ChatResponse{
		RefillAlerts: rc.RefillAlerts,
	}
	if rc.Safety != nil {
		resp.Approved = rc.Safety.Approved
		resp.Decision = rc.Safety.Decision
		resp.Reply = rc.Safety.Reason
		resp.Violations = rc.Safety.Violations
		resp.ClarificationQuestions = rc.Safety.ClarificationQuestions
		resp.ErrorType = rc.Safety.ErrorType
	}
	if rc.Execution != nil {
		resp.Reply = replyOrderPlaced
		id := rc.Execution.OrderID
		resp.OrderID = &id
	}
	return resp
}

// HandleAuthToken exchanges an operator ID and API key for a JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.OperatorID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "operator_id and api_key are required")
		return
	}

	op, err := h.db.GetOperator(r.Context(), req.OperatorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn the same argon2 work as a real verification so an
			// unknown operator ID is not distinguishable by timing.
			auth.DummyVerify()
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("operator lookup failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "authentication failed")
		return
	}

	ok, err := auth.VerifyAPIKey(req.APIKey, op.APIKeyHash)
	if err != nil || !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(op.OperatorID)
	if err != nil {
		h.logger.Error("token issuance failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "authentication failed")
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleHealth reports service liveness and database reachability.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := model.HealthResponse{
		Status:   "ok",
		Version:  h.version,
		Postgres: "ok",
		Uptime:   int64(time.Since(h.startTime).Seconds()),
	}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Postgres = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, r, status, resp)
}
