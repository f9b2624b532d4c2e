package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
	"github.com/yakkyoku-ai/yakkyoku/internal/storage"
	"github.com/yakkyoku-ai/yakkyoku/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
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

func newCustomer(t *testing.T) model.Customer {
	t.Helper()
	c, err := testDB.CreateCustomer(context.Background(), model.Customer{
		Name:  "Test Customer",
		Email: "test@example.com",
	})
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

func TestGetCustomerNotFound(t *testing.T) {
	_, err := testDB.GetCustomer(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateAndGetCustomer(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)

	got, err := testDB.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, "Test Customer", got.Name)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestListMedicinesOrderedByID(t *testing.T) {
	ctx := context.Background()
	newMedicine(t, "Loratadine 10mg", 40, false)
	newMedicine(t, "Cetirizine 10mg", 40, false)

	medicines, err := testDB.ListMedicines(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(medicines), 2)
	for i := 1; i < len(medicines); i++ {
		assert.Less(t, medicines[i-1].ID.String(), medicines[i].ID.String())
	}
}

func TestHasActivePrescription(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m := newMedicine(t, "Amoxicillin 250mg", 50, true)

	ok, err := testDB.HasActivePrescription(ctx, c.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = testDB.CreatePrescription(ctx, model.Prescription{
		CustomerID: c.ID,
		MedicineID: m.ID,
		ValidUntil: time.Now().Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)

	ok, err = testDB.HasActivePrescription(ctx, c.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasActivePrescriptionExpired(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m := newMedicine(t, "Ciprofloxacin 250mg", 50, true)

	_, err := testDB.CreatePrescription(ctx, model.Prescription{
		CustomerID: c.ID,
		MedicineID: m.ID,
		ValidUntil: time.Now().Add(-24 * time.Hour),
	})
	require.NoError(t, err)

	ok, err := testDB.HasActivePrescription(ctx, c.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecuteOrder(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m1 := newMedicine(t, "Paracetamol 500mg A", 100, false)
	m2 := newMedicine(t, "Ibuprofen 200mg A", 80, false)

	var hookOrder model.Order
	order, err := testDB.ExecuteOrder(ctx, c.ID, []model.ResolvedItem{
		{Item: model.RequestedItem{Name: "paracetamol", Dosage: "500mg", Quantity: 2}, Medicine: m1},
		{Item: model.RequestedItem{Name: "ibuprofen", Dosage: "200mg", Quantity: 3}, Medicine: m2},
	}, func(o model.Order) { hookOrder = o })
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, order.ID, hookOrder.ID)

	// Items keep their request positions.
	assert.Equal(t, 0, order.Items[0].Position)
	assert.Equal(t, m1.ID, order.Items[0].MedicineID)
	assert.Equal(t, 1, order.Items[1].Position)
	assert.Equal(t, m2.ID, order.Items[1].MedicineID)

	got1, err := testDB.GetMedicine(ctx, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, 98, got1.StockQuantity)
	got2, err := testDB.GetMedicine(ctx, m2.ID)
	require.NoError(t, err)
	assert.Equal(t, 77, got2.StockQuantity)

	history, err := testDB.FullHistory(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	fetched, err := testDB.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, fetched.CustomerID)
	require.Len(t, fetched.Items, 2)
	assert.Equal(t, "500mg", fetched.Items[0].Dosage)
}

func TestExecuteOrderInsufficientStock(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m := newMedicine(t, "Aspirin 100mg A", 5, false)

	_, err := testDB.ExecuteOrder(ctx, c.ID, []model.ResolvedItem{
		{Item: model.RequestedItem{Name: "aspirin", Quantity: 10}, Medicine: m},
	}, nil)
	require.Error(t, err)

	ise, ok := storage.AsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, "Aspirin 100mg A", ise.MedicineName)
	assert.Equal(t, 5, ise.Available)
	assert.Equal(t, 10, ise.Requested)

	// Nothing committed: stock unchanged, no order or history rows.
	got, err := testDB.GetMedicine(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.StockQuantity)

	history, err := testDB.FullHistory(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestExecuteOrderPartialShortfallRollsBack(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m1 := newMedicine(t, "Paracetamol 500mg B", 100, false)
	m2 := newMedicine(t, "Ibuprofen 200mg B", 1, false)

	_, err := testDB.ExecuteOrder(ctx, c.ID, []model.ResolvedItem{
		{Item: model.RequestedItem{Name: "paracetamol", Quantity: 2}, Medicine: m1},
		{Item: model.RequestedItem{Name: "ibuprofen", Quantity: 5}, Medicine: m2},
	}, nil)
	require.Error(t, err)

	// The first item's decrement must not survive the rollback.
	got, err := testDB.GetMedicine(ctx, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.StockQuantity)
}

func TestExecuteOrderConcurrentStockRace(t *testing.T) {
	ctx := context.Background()
	m := newMedicine(t, "Naproxen 250mg A", 10, false)

	const workers = 4
	customers := make([]model.Customer, workers)
	for i := range customers {
		customers[i] = newCustomer(t)
	}

	// Four concurrent orders of 7 units against a stock of 10. Exactly one
	// can succeed; the rest must see the shortfall under the row lock.
	var g errgroup.Group
	results := make([]error, workers)
	for i := range workers {
		g.Go(func() error {
			_, err := testDB.ExecuteOrder(ctx, customers[i].ID, []model.ResolvedItem{
				{Item: model.RequestedItem{Name: "naproxen", Quantity: 7}, Medicine: m},
			}, nil)
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		_, ok := storage.AsInsufficientStock(err)
		assert.True(t, ok, "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	got, err := testDB.GetMedicine(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.StockQuantity)
}

func TestAppendAndQueryTraces(t *testing.T) {
	ctx := context.Background()
	requestID := uuid.New()

	stages := []struct {
		seq      int
		agent    string
		decision string
	}{
		{0, model.AgentContextProvider, model.TraceContextProvided},
		{1, model.AgentExtractor, model.TraceExtracted},
		{2, model.AgentSafetyEngine, string(model.DecisionApproved)},
	}
	for _, s := range stages {
		_, err := testDB.AppendTrace(ctx, model.TraceRecord{
			RequestID: requestID,
			StageSeq:  s.seq,
			AgentName: s.agent,
			Input:     map[string]any{"message": "need paracetamol"},
			Reasoning: []string{"step recorded"},
			Decision:  s.decision,
			Output:    map[string]any{"ok": true},
		})
		require.NoError(t, err)
	}

	records, err := testDB.TracesByRequest(ctx, requestID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, model.AgentContextProvider, records[0].AgentName)
	assert.Equal(t, model.AgentSafetyEngine, records[2].AgentName)

	filtered, err := testDB.ListTraces(ctx, model.TraceFilter{AgentName: model.AgentExtractor, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, filtered)
	for _, rec := range filtered {
		assert.Equal(t, model.AgentExtractor, rec.AgentName)
	}
}

func TestAppendTraceDuplicateStageRejected(t *testing.T) {
	ctx := context.Background()
	requestID := uuid.New()

	rec := model.TraceRecord{
		RequestID: requestID,
		StageSeq:  0,
		AgentName: model.AgentContextProvider,
		Input:     map[string]any{},
		Decision:  model.TraceContextProvided,
		Output:    map[string]any{},
	}
	_, err := testDB.AppendTrace(ctx, rec)
	require.NoError(t, err)

	_, err = testDB.AppendTrace(ctx, rec)
	require.Error(t, err)
}

func TestGetTraceNotFound(t *testing.T) {
	_, err := testDB.GetTrace(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecentHistoryLimit(t *testing.T) {
	ctx := context.Background()
	c := newCustomer(t)
	m := newMedicine(t, "Paracetamol 500mg C", 1000, false)

	for range 7 {
		_, err := testDB.ExecuteOrder(ctx, c.ID, []model.ResolvedItem{
			{Item: model.RequestedItem{Name: "paracetamol", Quantity: 1}, Medicine: m},
		}, nil)
		require.NoError(t, err)
	}

	recent, err := testDB.RecentHistory(ctx, c.ID, 5)
	require.NoError(t, err)
	assert.Len(t, recent, 5)

	full, err := testDB.FullHistory(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, full, 7)
}

func TestSeedDevIdempotent(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, testDB.SeedDev(ctx))
	before, err := testDB.ListMedicines(ctx)
	require.NoError(t, err)

	require.NoError(t, testDB.SeedDev(ctx))
	after, err := testDB.ListMedicines(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestOperatorRoundTrip(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, testDB.UpsertOperator(ctx, "ops-1", "hash-v1"))
	op, err := testDB.GetOperator(ctx, "ops-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-v1", op.APIKeyHash)

	require.NoError(t, testDB.UpsertOperator(ctx, "ops-1", "hash-v2"))
	op, err = testDB.GetOperator(ctx, "ops-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-v2", op.APIKeyHash)

	_, err = testDB.GetOperator(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
