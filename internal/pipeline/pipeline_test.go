package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/yakkyoku-ai/yakkyoku/internal/extract"
	"github.com/yakkyoku-ai/yakkyoku/internal/model"
	"github.com/yakkyoku-ai/yakkyoku/internal/notify"
	"github.com/yakkyoku-ai/yakkyoku/internal/pipeline"
	"github.com/yakkyoku-ai/yakkyoku/internal/refill"
	"github.com/yakkyoku-ai/yakkyoku/internal/safety"
	"github.com/yakkyoku-ai/yakkyoku/internal/storage"
	"github.com/yakkyoku-ai/yakkyoku/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func newRunner(t *testing.T, notifier notify.FulfillmentNotifier) *pipeline.Runner {
	t.Helper()
	logger := testutil.TestLogger()
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return pipeline.NewRunner(
		testDB,
		extract.NewRulesExtractor(),
		safety.NewEngine(testDB, 30, logger),
		refill.NewAnalyzer(testDB, logger),
		notifier,
		notify.NewLogSender(logger),
		logger,
	)
}

func newCustomer(t *testing.T) model.Customer {
	t.Helper()
	c, err := testDB.CreateCustomer(context.Background(), model.Customer{Name: "Pipeline Tester"})
	require.NoError(t, err)
	return c
}

func newMedicine(t *testing.T, name string, stock int, rx bool) model.Medicine {
	t.Helper()
	m, err := testDB.CreateMedicine(context.Background(), model.Medicine{
		Name:                 name,
		StockQuantity:        stock,
		PrescriptionRequired: rx,
	})
	require.NoError(t, err)
	return m
}

func agentNames(trace []model.TraceRecord) []string {
	names := make([]string, len(trace))
	for i, rec := range trace {
		names[i] = rec.AgentName
	}
	return names
}

func TestRunScenarioApproved(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m := newMedicine(t, "Paracetamola 500mg", 100, false)

	r := newRunner(t, nil)
	rc, err := r.Run(ctx, c.ID, "I need 2 paracetamola 500mg")
	require.NoError(t, err)

	require.NotNil(t, rc.Safety)
	assert.True(t, rc.Safety.Approved)
	assert.Equal(t, model.DecisionApproved, rc.Safety.Decision)

	require.NotNil(t, rc.Execution)
	assert.NotEqual(t, uuid.Nil, rc.Execution.OrderID)

	order, err := testDB.GetOrder(ctx, rc.Execution.OrderID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, order.CustomerID)
	assert.Equal(t, []string{
		model.ActionOrderCreated,
		model.ActionInventoryUpdated,
		model.ActionWebhookTriggered,
		model.ActionConfirmationSent,
	}, rc.Execution.Actions)
	assert.Equal(t, notify.StatusDelivered, rc.Execution.NotificationStatus)
	assert.Equal(t, notify.StatusSent, rc.Execution.ConfirmationStatus)

	got, err := testDB.GetMedicine(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 98, got.StockQuantity)

	history, err := testDB.FullHistory(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Paracetamola 500mg", history[0].MedicineName)

	// All five stages traced, in order, and persisted.
	assert.Equal(t, []string{
		model.AgentContextProvider,
		model.AgentExtractor,
		model.AgentSafetyEngine,
		model.AgentOrderExecutor,
		model.AgentRefillAnalyzer,
	}, agentNames(rc.Trace))

	persisted, err := testDB.TracesByRequest(ctx, rc.RequestID)
	require.NoError(t, err)
	assert.Len(t, persisted, 5)
}

func TestRunScenarioDosageCeiling(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m := newMedicine(t, "Paracetamolb 500mg", 100, false)

	r := newRunner(t, nil)
	rc, err := r.Run(ctx, c.ID, "I need 1 paracetamolb 5000mg")
	require.NoError(t, err)

	assert.Equal(t, model.DecisionBlocked, rc.Safety.Decision)
	assert.Equal(t, model.ErrorTypeSafety, rc.Safety.ErrorType)
	assert.Contains(t, rc.Safety.Violations, "Dosage 5000mg exceeds safe daily limit (4000mg)")
	assert.Nil(t, rc.Execution)

	got, err := testDB.GetMedicine(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.StockQuantity)

	// Executor skipped: four stage records only.
	assert.Equal(t, []string{
		model.AgentContextProvider,
		model.AgentExtractor,
		model.AgentSafetyEngine,
		model.AgentRefillAnalyzer,
	}, agentNames(rc.Trace))
}

func TestRunScenarioMissingDosage(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	newMedicine(t, "Ibuprofenc 200mg", 80, false)

	r := newRunner(t, nil)
	rc, err := r.Run(ctx, c.ID, "please order ibuprofenc")
	require.NoError(t, err)

	assert.Equal(t, model.DecisionClarificationRequired, rc.Safety.Decision)
	assert.False(t, rc.Safety.Approved)
	assert.Equal(t, model.ErrorTypeNone, rc.Safety.ErrorType)
	require.Len(t, rc.Safety.ClarificationQuestions, 1)
	assert.Contains(t, rc.Safety.ClarificationQuestions[0], "Ibuprofenc 200mg")
	assert.Nil(t, rc.Execution)
}

func TestRunScenarioMissingPrescription(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	newMedicine(t, "Amoxicillind 500mg", 50, true)

	r := newRunner(t, nil)
	rc, err := r.Run(ctx, c.ID, "I need 1 amoxicillind 500mg")
	require.NoError(t, err)

	assert.Equal(t, model.DecisionBlocked, rc.Safety.Decision)
	assert.Equal(t, model.ErrorTypeSafety, rc.Safety.ErrorType)
	assert.Contains(t, rc.Safety.Violations, "Valid prescription required for Amoxicillind 500mg")
}

func TestRunScenarioQuantityCap(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	newMedicine(t, "Aspirine 100mg", 5000, false)

	r := newRunner(t, nil)
	rc, err := r.Run(ctx, c.ID, "I need 999 aspirine 100mg")
	require.NoError(t, err)

	assert.Equal(t, model.DecisionBlocked, rc.Safety.Decision)
	assert.Contains(t, rc.Safety.Violations, "Quantity 999 exceeds allowed limit (30)")
}

func TestRunCustomerNotFound(t *testing.T) {
	r := newRunner(t, nil)
	_, err := r.Run(context.Background(), uuid.New(), "paracetamol 500mg")
	assert.ErrorIs(t, err, pipeline.ErrCustomerNotFound)
}

func TestRunRefillAlertsOnBlockedRequest(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m := newMedicine(t, "Naproxenf 250mg", 100, false)

	// Seed history with an old order directly.
	_, err := testDB.ExecuteOrder(ctx, c.ID, []model.ResolvedItem{
		{Item: model.RequestedItem{Name: "naproxenf", Dosage: "250mg", Quantity: 1}, Medicine: m},
	}, nil)
	require.NoError(t, err)
	_, err = testDB.Pool().Exec(ctx,
		`UPDATE order_history SET created_at = now() - interval '3 days' WHERE customer_id = $1`, c.ID)
	require.NoError(t, err)

	// A blocked request still gets alerts from history.
	r := newRunner(t, nil)
	rc, err := r.Run(ctx, c.ID, "I need 1 unknowndrugf")
	require.NoError(t, err)

	assert.Equal(t, model.DecisionBlocked, rc.Safety.Decision)
	require.Len(t, rc.RefillAlerts, 1)
	assert.Equal(t, "Naproxenf 250mg", rc.RefillAlerts[0].MedicineName)
	assert.Equal(t, "Likely running low on Naproxenf 250mg", rc.RefillAlerts[0].Message)
	assert.GreaterOrEqual(t, rc.RefillAlerts[0].DaysSinceLastOrder, 3)
}

// failingNotifier simulates a down warehouse endpoint.
type failingNotifier struct{}

func (failingNotifier) NotifyOrderCreated(context.Context, notify.OrderCreatedEvent) error {
	return errors.New("warehouse unreachable")
}

func TestRunPortFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m := newMedicine(t, "Cetirizineg 10mg", 60, false)

	r := newRunner(t, failingNotifier{})
	rc, err := r.Run(ctx, c.ID, "I need 2 cetirizineg 10mg")
	require.NoError(t, err)

	require.NotNil(t, rc.Execution)
	assert.Equal(t, notify.StatusFailed, rc.Execution.NotificationStatus)
	assert.Equal(t, notify.StatusSent, rc.Execution.ConfirmationStatus)

	// The order still committed.
	got, err := testDB.GetMedicine(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 58, got.StockQuantity)
}

func TestRunRaceLossReportsBlocked(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m := newMedicine(t, "Loratadineh 10mg", 3, false)

	// Stock 3 supports only one order of 2. Race two runs; the loser fails
	// either the advisory check or the locked re-check, and either way must
	// surface as a blocked VALIDATION outcome.
	r := newRunner(t, nil)
	results := make([]*model.RequestContext, 2)
	var g errgroup.Group
	for i := range 2 {
		g.Go(func() error {
			rc, err := r.Run(ctx, c.ID, "I need 2 loratadineh 10mg")
			results[i] = rc
			return err
		})
	}
	require.NoError(t, g.Wait())

	approved := 0
	for _, rc := range results {
		if rc.Safety.Approved {
			approved++
		} else {
			assert.Equal(t, model.DecisionBlocked, rc.Safety.Decision)
			assert.Equal(t, model.ErrorTypeValidation, rc.Safety.ErrorType)
		}
	}
	assert.Equal(t, 1, approved)

	got, err := testDB.GetMedicine(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.StockQuantity)
}

func TestHistoryContextLimit(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m := newMedicine(t, "Paracetamoli 500mg", 1000, false)

	for range 7 {
		_, err := testDB.ExecuteOrder(ctx, c.ID, []model.ResolvedItem{
			{Item: model.RequestedItem{Name: "paracetamoli", Dosage: "500mg", Quantity: 1}, Medicine: m},
		}, nil)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	r := newRunner(t, nil)
	rc, err := r.Run(ctx, c.ID, "I need 1 paracetamoli 500mg")
	require.NoError(t, err)
	assert.Len(t, rc.History, 5)
}
