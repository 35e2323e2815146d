// Package pipeline owns the validation run aggregate and the fan-out /
// fan-in orchestration of the research agents.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/g0da-s/vettd/pkg/agents"
)

// Status is the run lifecycle state. It transitions strictly forward:
// pending -> running -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AgentField names the run column a research agent's output lands in.
type AgentField string

const (
	FieldPain       AgentField = "pain_research"
	FieldCompetitor AgentField = "competitor_research"
	FieldMarket     AgentField = "market_intelligence"
	FieldGraveyard  AgentField = "graveyard_research"
)

// Stage indexes, in the order events are replayed.
const (
	StagePain = iota + 1
	StageCompetitor
	StageMarket
	StageGraveyard
	StageSynthesis
)

var ErrNotFound = errors.New("validation run not found")

// ValidationRun is the aggregate root. Only the orchestrator write path
// mutates it; readers see consistent snapshots between writes.
type ValidationRun struct {
	ID           uuid.UUID                  `json:"id"`
	Idea         string                     `json:"idea"`
	Status       Status                     `json:"status"`
	CurrentStage int                        `json:"current_stage"`
	Pain         *agents.PainResearch       `json:"pain_research,omitempty"`
	Competitor   *agents.CompetitorResearch `json:"competitor_research,omitempty"`
	Market       *agents.MarketIntelligence `json:"market_intelligence,omitempty"`
	Graveyard    *agents.GraveyardResearch  `json:"graveyard_research,omitempty"`
	Synthesis    *agents.SynthesisResult    `json:"synthesis,omitempty"`
	Error        string                     `json:"error,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// Repository is the passive store for runs. All mutation methods are
// scoped to the fields they own, so concurrently completing agents
// never overwrite each other's results.
type Repository interface {
	Create(ctx context.Context, run *ValidationRun) error
	Get(ctx context.Context, id uuid.UUID) (*ValidationRun, error)
	List(ctx context.Context, page, perPage int) ([]ValidationRun, int, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	SetStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error
	SetStage(ctx context.Context, id uuid.UUID, stage int) error
	SetAgentResult(ctx context.Context, id uuid.UUID, field AgentField, result json.RawMessage) error
	SetSynthesis(ctx context.Context, id uuid.UUID, result json.RawMessage) error

	// FailInterrupted sweeps runs left pending/running by a previous
	// process and marks them failed.
	FailInterrupted(ctx context.Context) (int, error)
}

// MemoryRepository is the in-process Repository used by the CLI and in
// tests.
type MemoryRepository struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*ValidationRun
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{runs: make(map[uuid.UUID]*ValidationRun)}
}

func (r *MemoryRepository) Create(ctx context.Context, run *ValidationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *run
	r.runs[run.ID] = &stored
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*ValidationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *run
	return &snapshot, nil
}

func (r *MemoryRepository) List(ctx context.Context, page, perPage int) ([]ValidationRun, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]ValidationRun, 0, len(r.runs))
	for _, run := range r.runs {
		all = append(all, *run)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	start := (page - 1) * perPage
	if start >= total {
		return []ValidationRun{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return false, nil
	}
	delete(r.runs, id)
	return true, nil
}

func (r *MemoryRepository) SetStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	run.Error = errMsg
	run.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) SetStage(ctx context.Context, id uuid.UUID, stage int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return ErrNotFound
	}
	if stage > run.CurrentStage {
		run.CurrentStage = stage
	}
	run.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) SetAgentResult(ctx context.Context, id uuid.UUID, field AgentField, result json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return ErrNotFound
	}
	if err := decodeAgentResult(run, field, result); err != nil {
		return err
	}
	run.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) SetSynthesis(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return ErrNotFound
	}
	var synthesis agents.SynthesisResult
	if err := json.Unmarshal(result, &synthesis); err != nil {
		return err
	}
	run.Synthesis = &synthesis
	run.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) FailInterrupted(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, run := range r.runs {
		if run.Status == StatusPending || run.Status == StatusRunning {
			run.Status = StatusFailed
			run.Error = "validation interrupted by restart"
			run.UpdatedAt = time.Now()
			count++
		}
	}
	return count, nil
}

func decodeAgentResult(run *ValidationRun, field AgentField, result json.RawMessage) error {
	switch field {
	case FieldPain:
		var out agents.PainResearch
		if err := json.Unmarshal(result, &out); err != nil {
			return err
		}
		run.Pain = &out
	case FieldCompetitor:
		var out agents.CompetitorResearch
		if err := json.Unmarshal(result, &out); err != nil {
			return err
		}
		run.Competitor = &out
	case FieldMarket:
		var out agents.MarketIntelligence
		if err := json.Unmarshal(result, &out); err != nil {
			return err
		}
		run.Market = &out
	case FieldGraveyard:
		var out agents.GraveyardResearch
		if err := json.Unmarshal(result, &out); err != nil {
			return err
		}
		run.Graveyard = &out
	default:
		return errors.New("unknown agent field: " + string(field))
	}
	return nil
}
