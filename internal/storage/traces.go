package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

const defaultTraceLimit = 100

// AppendTrace persists one trace record. The (request_id, stage_seq) pair is
// unique, so a stage can never be recorded twice for the same run.
func (db *DB) AppendTrace(ctx context.Context, rec model.TraceRecord) (model.TraceRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Reasoning == nil {
		rec.Reasoning = []string{}
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO decision_traces (id, request_id, stage_seq, agent_name, input, reasoning, decision, output)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		rec.ID, rec.RequestID, rec.StageSeq, rec.AgentName, rec.Input, rec.Reasoning, rec.Decision, rec.Output,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return model.TraceRecord{}, fmt.Errorf("storage: append trace: %w", err)
	}
	return rec, nil
}

// GetTrace fetches one trace record by ID. Returns ErrNotFound if no row exists.
func (db *DB) GetTrace(ctx context.Context, id uuid.UUID) (model.TraceRecord, error) {
	rec, err := scanTraceRow(db.pool.QueryRow(ctx,
		`SELECT id, request_id, stage_seq, agent_name, input, reasoning, decision, output, created_at
		 FROM decision_traces WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TraceRecord{}, ErrNotFound
	}
	if err != nil {
		return model.TraceRecord{}, fmt.Errorf("storage: get trace: %w", err)
	}
	return rec, nil
}

// TracesByRequest returns every trace record of one pipeline run in stage order.
func (db *DB) TracesByRequest(ctx context.Context, requestID uuid.UUID) ([]model.TraceRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, request_id, stage_seq, agent_name, input, reasoning, decision, output, created_at
		 FROM decision_traces WHERE request_id = $1 ORDER BY stage_seq`, requestID)
	if err != nil {
		return nil, fmt.Errorf("storage: traces by request: %w", err)
	}
	defer rows.Close()
	return scanTraces(rows)
}

// ListTraces returns trace records matching the filter, newest first.
func (db *DB) ListTraces(ctx context.Context, filter model.TraceFilter) ([]model.TraceRecord, error) {
	var (
		conds []string
		args  []any
	)
	if filter.AgentName != "" {
		args = append(args, filter.AgentName)
		conds = append(conds, fmt.Sprintf("agent_name = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT id, request_id, stage_seq, agent_name, input, reasoning, decision, output, created_at
		 FROM decision_traces`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultTraceLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, stage_seq DESC LIMIT $%d", len(args))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list traces: %w", err)
	}
	defer rows.Close()
	return scanTraces(rows)
}

func scanTraces(rows pgx.Rows) ([]model.TraceRecord, error) {
	var records []model.TraceRecord
	for rows.Next() {
		rec, err := scanTraceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan trace: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanTraceRow(row pgx.Row) (model.TraceRecord, error) {
	var rec model.TraceRecord
	err := row.Scan(&rec.ID, &rec.RequestID, &rec.StageSeq, &rec.AgentName,
		&rec.Input, &rec.Reasoning, &rec.Decision, &rec.Output, &rec.CreatedAt)
	return rec, err
}
