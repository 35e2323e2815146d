package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/g0da-s/vettd/pkg/agents"
	"github.com/g0da-s/vettd/pkg/pipeline"
)

// RunStore is the PostgreSQL implementation of pipeline.Repository.
type RunStore struct {
	db *PostgresDB
}

func NewRunStore(db *PostgresDB) *RunStore {
	return &RunStore{db: db}
}

var agentColumns = map[pipeline.AgentField]string{
	pipeline.FieldPain:       "pain_research",
	pipeline.FieldCompetitor: "competitor_research",
	pipeline.FieldMarket:     "market_intelligence",
	pipeline.FieldGraveyard:  "graveyard_research",
}

func (s *RunStore) Create(ctx context.Context, run *pipeline.ValidationRun) error {
	query := `
		INSERT INTO validation_runs (id, idea, status, current_stage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.Pool.Exec(ctx, query, run.ID, run.Idea, run.Status, run.CurrentStage, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create validation run: %w", err)
	}
	return nil
}

const runColumns = `id, idea, status, current_stage,
	pain_research, competitor_research, market_intelligence, graveyard_research, synthesis,
	error, created_at, updated_at`

func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*pipeline.ValidationRun, error) {
	row := s.db.Pool.QueryRow(ctx, "SELECT "+runColumns+" FROM validation_runs WHERE id = $1", id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get validation run: %w", err)
	}
	return run, nil
}

func (s *RunStore) List(ctx context.Context, page, perPage int) ([]pipeline.ValidationRun, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	if err := s.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM validation_runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count validation runs: %w", err)
	}

	query := "SELECT " + runColumns + ` FROM validation_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := s.db.Pool.Query(ctx, query, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list validation runs: %w", err)
	}
	defer rows.Close()

	runs := []pipeline.ValidationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan validation run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read validation runs: %w", err)
	}
	return runs, total, nil
}

func (s *RunStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx, "DELETE FROM validation_runs WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete validation run: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *RunStore) SetStatus(ctx context.Context, id uuid.UUID, status pipeline.Status, errMsg string) error {
	query := `
		UPDATE validation_runs
		SET status = $2, error = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
	`
	tag, err := s.db.Pool.Exec(ctx, query, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

func (s *RunStore) SetStage(ctx context.Context, id uuid.UUID, stage int) error {
	// GREATEST keeps the stage monotonic under concurrent agent starts.
	query := `
		UPDATE validation_runs
		SET current_stage = GREATEST(current_stage, $2), updated_at = NOW()
		WHERE id = $1
	`
	tag, err := s.db.Pool.Exec(ctx, query, id, stage)
	if err != nil {
		return fmt.Errorf("failed to update run stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

func (s *RunStore) SetAgentResult(ctx context.Context, id uuid.UUID, field pipeline.AgentField, result json.RawMessage) error {
	column, ok := agentColumns[field]
	if !ok {
		return fmt.Errorf("unknown agent field: %s", field)
	}
	query := fmt.Sprintf(`
		UPDATE validation_runs
		SET %s = $2, updated_at = NOW()
		WHERE id = $1
	`, column)
	tag, err := s.db.Pool.Exec(ctx, query, id, result)
	if err != nil {
		return fmt.Errorf("failed to store %s result: %w", field, err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

func (s *RunStore) SetSynthesis(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	query := `
		UPDATE validation_runs
		SET synthesis = $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := s.db.Pool.Exec(ctx, query, id, result)
	if err != nil {
		return fmt.Errorf("failed to store synthesis result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

func (s *RunStore) FailInterrupted(ctx context.Context) (int, error) {
	query := `
		UPDATE validation_runs
		SET status = 'failed', error = 'validation interrupted by restart', updated_at = NOW()
		WHERE status IN ('pending', 'running')
	`
	tag, err := s.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep interrupted runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRun(row pgx.Row) (*pipeline.ValidationRun, error) {
	var (
		run        pipeline.ValidationRun
		pain       []byte
		competitor []byte
		market     []byte
		graveyard  []byte
		synthesis  []byte
		errMsg     sql.NullString
	)
	err := row.Scan(&run.ID, &run.Idea, &run.Status, &run.CurrentStage,
		&pain, &competitor, &market, &graveyard, &synthesis,
		&errMsg, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	run.Error = errMsg.String

	if err := decodeColumn(pain, &run.Pain); err != nil {
		return nil, fmt.Errorf("failed to decode pain_research: %w", err)
	}
	if err := decodeColumn(competitor, &run.Competitor); err != nil {
		return nil, fmt.Errorf("failed to decode competitor_research: %w", err)
	}
	if err := decodeColumn(market, &run.Market); err != nil {
		return nil, fmt.Errorf("failed to decode market_intelligence: %w", err)
	}
	if err := decodeColumn(graveyard, &run.Graveyard); err != nil {
		return nil, fmt.Errorf("failed to decode graveyard_research: %w", err)
	}
	var synth *agents.SynthesisResult
	if err := decodeColumn(synthesis, &synth); err != nil {
		return nil, fmt.Errorf("failed to decode synthesis: %w", err)
	}
	run.Synthesis = synth
	return &run, nil
}

func decodeColumn[T any](raw []byte, dst **T) error {
	if len(raw) == 0 {
		return nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*dst = &out
	return nil
}
