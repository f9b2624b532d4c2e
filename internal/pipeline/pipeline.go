// Package pipeline orchestrates the five request-processing stages: context
// enrichment, extraction, safety evaluation, order execution, and refill
// analysis. Stages run strictly sequentially over one shared RequestContext;
// concurrency only exists across simultaneous requests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yakkyoku-ai/yakkyoku/internal/extract"
	"github.com/yakkyoku-ai/yakkyoku/internal/model"
	"github.com/yakkyoku-ai/yakkyoku/internal/notify"
	"github.com/yakkyoku-ai/yakkyoku/internal/refill"
	"github.com/yakkyoku-ai/yakkyoku/internal/safety"
	"github.com/yakkyoku-ai/yakkyoku/internal/storage"
)

// Fixed stage sequence numbers. The executor keeps its slot even when it is
// skipped, so trace records sort into stage order per request.
const (
	seqContextProvider = 0
	seqExtractor       = 1
	seqSafetyEngine    = 2
	seqOrderExecutor   = 3
	seqRefillAnalyzer  = 4
)

// historyContextLimit is how many recent orders the context provider loads.
const historyContextLimit = 5

// Retry policy for the execution transaction. Row locks are taken in
// deterministic order so deadlocks are not expected, but serialization
// conflicts under load get a few fresh attempts before failing the run.
const (
	executeMaxRetries = 3
	executeRetryDelay = 25 * time.Millisecond
)

// ErrCustomerNotFound reports an intake request for an unknown customer.
var ErrCustomerNotFound = errors.New("pipeline: customer not found")

var tracer = otel.Tracer("yakkyoku/pipeline")

// Store is the persistence surface the runner needs.
type Store interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error)
	RecentHistory(ctx context.Context, customerID uuid.UUID, limit int) ([]model.OrderHistoryRecord, error)
	ExecuteOrder(ctx context.Context, customerID uuid.UUID, items []model.ResolvedItem, beforeCommit func(model.Order)) (model.Order, error)
	AppendTrace(ctx context.Context, rec model.TraceRecord) (model.TraceRecord, error)
}

// Runner wires the stages together.
type Runner struct {
	store     Store
	extractor extract.Extractor
	engine    *safety.Engine
	analyzer  *refill.Analyzer
	notifier  notify.FulfillmentNotifier
	confirmer notify.ConfirmationSender
	logger    *slog.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(store Store, extractor extract.Extractor, engine *safety.Engine, analyzer *refill.Analyzer, notifier notify.FulfillmentNotifier, confirmer notify.ConfirmationSender, logger *slog.Logger) *Runner {
	return &Runner{
		store:     store,
		extractor: extractor,
		engine:    engine,
		analyzer:  analyzer,
		notifier:  notifier,
		confirmer: confirmer,
		logger:    logger,
	}
}

// Run processes one customer message through all stages and returns the
// completed context. Business outcomes (blocked, clarification) are normal
// results; an error return means infrastructure failure and the request did
// not complete.
func (r *Runner) Run(ctx context.Context, customerID uuid.UUID, message string) (*model.RequestContext, error) {
	customer, err := r.store.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("pipeline: load customer: %w", err)
	}

	rc := &model.RequestContext{
		RequestID:  uuid.New(),
		CustomerID: customerID,
		Message:    message,
	}
	logger := r.logger.With("request_id", rc.RequestID, "customer_id", customerID)

	ctx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("yakkyoku.request_id", rc.RequestID.String())))
	defer span.End()

	if err := r.provideContext(ctx, rc); err != nil {
		return nil, err
	}
	if err := r.extractItems(ctx, rc); err != nil {
		return nil, err
	}
	if err := r.evaluateSafety(ctx, rc); err != nil {
		return nil, err
	}
	if rc.Safety.Approved {
		if err := r.executeOrder(ctx, rc, customer, logger); err != nil {
			return nil, err
		}
	}
	if err := r.analyzeRefills(ctx, rc); err != nil {
		return nil, err
	}

	logger.Info("pipeline run complete",
		"decision", rc.Safety.Decision,
		"items", len(rc.ExtractedItems),
		"alerts", len(rc.RefillAlerts))
	return rc, nil
}

// appendTrace persists a stage record and mirrors it into the context.
func (r *Runner) appendTrace(ctx context.Context, rc *model.RequestContext, seq int, agent string, input any, reasoning []string, decision string, output any) error {
	rec, err := r.store.AppendTrace(ctx, model.TraceRecord{
		RequestID: rc.RequestID,
		StageSeq:  seq,
		AgentName: agent,
		Input:     input,
		Reasoning: reasoning,
		Decision:  decision,
		Output:    output,
	})
	if err != nil {
		return fmt.Errorf("pipeline: record %s trace: %w", agent, err)
	}
	rc.Trace = append(rc.Trace, rec)
	return nil
}

func (r *Runner) provideContext(ctx context.Context, rc *model.RequestContext) error {
	ctx, span := tracer.Start(ctx, "pipeline."+model.AgentContextProvider)
	defer span.End()

	history, err := r.store.RecentHistory(ctx, rc.CustomerID, historyContextLimit)
	if err != nil {
		return fmt.Errorf("pipeline: load history: %w", err)
	}
	rc.History = history

	reasoning := []string{fmt.Sprintf("fetched %d previous orders", len(history))}
	return r.appendTrace(ctx, rc, seqContextProvider, model.AgentContextProvider,
		map[string]any{"customer_id": rc.CustomerID},
		reasoning, model.TraceContextProvided, history)
}

func (r *Runner) extractItems(ctx context.Context, rc *model.RequestContext) error {
	ctx, span := tracer.Start(ctx, "pipeline."+model.AgentExtractor)
	defer span.End()

	items, reasoning, err := r.extractor.Extract(ctx, rc.Message)
	if err != nil {
		return fmt.Errorf("pipeline: extract items: %w", err)
	}
	rc.ExtractedItems = items

	return r.appendTrace(ctx, rc, seqExtractor, model.AgentExtractor,
		map[string]any{"message": rc.Message},
		reasoning, model.TraceExtracted, items)
}

func (r *Runner) evaluateSafety(ctx context.Context, rc *model.RequestContext) error {
	ctx, span := tracer.Start(ctx, "pipeline."+model.AgentSafetyEngine)
	defer span.End()

	result, reasoning, err := r.engine.Evaluate(ctx, rc.CustomerID, rc.ExtractedItems)
	if err != nil {
		return fmt.Errorf("pipeline: evaluate safety: %w", err)
	}
	rc.Safety = &result

	return r.appendTrace(ctx, rc, seqSafetyEngine, model.AgentSafetyEngine,
		rc.ExtractedItems, reasoning, string(result.Decision), result)
}

// executeOrder runs the transactional execution stage. Ports fire inside the
// transaction scope after the inserts; their failures become statuses, never
// rollbacks. Losing the stock race downgrades the run to a blocked
// VALIDATION outcome because another request legitimately won.
func (r *Runner) executeOrder(ctx context.Context, rc *model.RequestContext, customer model.Customer, logger *slog.Logger) error {
	ctx, span := tracer.Start(ctx, "pipeline."+model.AgentOrderExecutor)
	defer span.End()

	exec := model.ExecutionResult{}

	var order model.Order
	err := storage.WithRetry(ctx, executeMaxRetries, executeRetryDelay, func() error {
		var txErr error
		order, txErr = r.store.ExecuteOrder(ctx, rc.CustomerID, rc.Safety.Resolved, func(order model.Order) {
			event := notify.NewOrderCreatedEvent(order.ID, rc.CustomerID, rc.ExtractedItems)
			if nerr := r.notifier.NotifyOrderCreated(ctx, event); nerr != nil {
				logger.Warn("fulfillment notification failed", "order_id", order.ID, "error", nerr)
				exec.NotificationStatus = notify.StatusFailed
			} else {
				exec.NotificationStatus = notify.StatusDelivered
			}

			if cerr := r.confirmer.SendConfirmation(ctx, customer, order.ID, rc.ExtractedItems); cerr != nil {
				logger.Warn("confirmation failed", "order_id", order.ID, "error", cerr)
				exec.ConfirmationStatus = notify.StatusFailed
			} else {
				exec.ConfirmationStatus = notify.StatusSent
			}
		})
		return txErr
	})
	if err != nil {
		if ise, ok := storage.AsInsufficientStock(err); ok {
			return r.reportRaceLoss(ctx, rc, ise)
		}
		return fmt.Errorf("pipeline: execute order: %w", err)
	}

	exec.OrderID = order.ID
	exec.Actions = []string{
		model.ActionOrderCreated,
		model.ActionInventoryUpdated,
		model.ActionWebhookTriggered,
		model.ActionConfirmationSent,
	}
	rc.Execution = &exec

	return r.appendTrace(ctx, rc, seqOrderExecutor, model.AgentOrderExecutor,
		rc.Safety.Resolved, nil, model.TraceExecuted, exec)
}

// reportRaceLoss finalizes the run as blocked after the locked re-check found
// less stock than the advisory safety read did.
func (r *Runner) reportRaceLoss(ctx context.Context, rc *model.RequestContext, ise *storage.InsufficientStockError) error {
	violation := fmt.Sprintf("Insufficient stock for %s (available: %d, requested: %d)",
		ise.MedicineName, ise.Available, ise.Requested)

	rc.Safety.Approved = false
	rc.Safety.Decision = model.DecisionBlocked
	rc.Safety.Reason = "Request blocked by safety rules"
	rc.Safety.ErrorType = model.ErrorTypeValidation
	rc.Safety.Violations = append(rc.Safety.Violations, violation)

	reasoning := []string{fmt.Sprintf("stock re-check under lock failed: %d available, %d requested",
		ise.Available, ise.Requested)}
	return r.appendTrace(ctx, rc, seqOrderExecutor, model.AgentOrderExecutor,
		rc.Safety.Resolved, reasoning, string(model.DecisionBlocked),
		map[string]any{"violation": violation})
}

func (r *Runner) analyzeRefills(ctx context.Context, rc *model.RequestContext) error {
	ctx, span := tracer.Start(ctx, "pipeline."+model.AgentRefillAnalyzer)
	defer span.End()

	alerts, reasoning, err := r.analyzer.Analyze(ctx, rc.CustomerID)
	if err != nil {
		return fmt.Errorf("pipeline: analyze refills: %w", err)
	}
	rc.RefillAlerts = alerts

	return r.appendTrace(ctx, rc, seqRefillAnalyzer, model.AgentRefillAnalyzer,
		map[string]any{"customer_id": rc.CustomerID},
		reasoning, model.TraceAlertsGenerated, alerts)
}
