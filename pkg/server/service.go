// Package server exposes the validation pipeline over HTTP.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/g0da-s/vettd/pkg/database"
	"github.com/g0da-s/vettd/pkg/pipeline"
)

type Service struct {
	Repo   pipeline.Repository
	Orch   *pipeline.Orchestrator
	Broker *pipeline.Broker
	Logs   *database.LogStore
	Logger *slog.Logger
}

func NewService(repo pipeline.Repository, orch *pipeline.Orchestrator, broker *pipeline.Broker, logs *database.LogStore, logger *slog.Logger) *Service {
	return &Service{Repo: repo, Orch: orch, Broker: broker, Logs: logs, Logger: logger}
}

// StartValidation creates the run record and launches the pipeline in
// the background.
func (s *Service) StartValidation(ctx context.Context, idea string) (*pipeline.ValidationRun, error) {
	now := time.Now()
	run := &pipeline.ValidationRun{
		ID:        uuid.New(),
		Idea:      idea,
		Status:    pipeline.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, run); err != nil {
		return nil, err
	}

	s.Orch.Start(run)
	s.Logger.Info("validation started", "run_id", run.ID)
	return run, nil
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*pipeline.ValidationRun, error) {
	return s.Repo.Get(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, page, perPage int) ([]pipeline.ValidationRun, int, error) {
	return s.Repo.List(ctx, page, perPage)
}

// DeleteRun cancels the pipeline if it is still running, then removes
// the run and its logs.
func (s *Service) DeleteRun(ctx context.Context, id uuid.UUID) (bool, error) {
	cancelled := s.Orch.Cancel(id)
	if cancelled {
		s.Logger.Info("cancelled running validation for deletion", "run_id", id)
	}
	deleted, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	if cancelled {
		// The pipeline goroutine is still winding down and will mark the
		// stream finished when it exits; forgetting the run before that
		// would leave the finished marker behind forever. Wait for the
		// stream to close, then drop the marker.
		events, unsubscribe := s.Broker.Subscribe(id)
		go func() {
			for range events {
			}
			unsubscribe()
			s.Broker.Forget(id)
		}()
	} else {
		s.Broker.Forget(id)
	}
	return true, nil
}

func (s *Service) GetRunLogs(ctx context.Context, id uuid.UUID, limit int) ([]database.LogEntry, error) {
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.Logs == nil {
		return []database.LogEntry{}, nil
	}
	return s.Logs.ListByRun(ctx, id, limit)
}
