package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/g0da-s/vettd/pkg/agents"
)

// Per-agent capabilities, so the orchestrator can be exercised with
// fakes and wired with the real agents alike.
type (
	PainResearcher interface {
		Research(ctx context.Context, idea string) (*agents.PainResearch, error)
	}
	CompetitorResearcher interface {
		Research(ctx context.Context, idea string) (*agents.CompetitorResearch, error)
	}
	MarketResearcher interface {
		Research(ctx context.Context, idea string) (*agents.MarketIntelligence, error)
	}
	GraveyardResearcher interface {
		Research(ctx context.Context, idea string) (*agents.GraveyardResearch, error)
	}
	Synthesizer interface {
		Synthesize(ctx context.Context, idea string, in agents.SynthesisInput) (*agents.SynthesisResult, error)
	}
)

// Sanitized messages stored on failed runs and published to streams.
// Raw agent errors carry prompt fragments and provider details, so they
// go to the log only.
const (
	msgResearchFailed  = "could not gather enough research data for this idea"
	msgSynthesisFailed = "could not produce a verdict from the gathered research"
	msgCancelled       = "validation cancelled"
)

// Orchestrator runs the validation pipeline: four research agents fanned
// out concurrently, then synthesis over whatever survived. Pain and
// competitor research are mandatory; market and graveyard are best
// effort.
type Orchestrator struct {
	Repo         Repository
	Broker       *Broker
	Logger       *slog.Logger
	AgentTimeout time.Duration

	Pain       PainResearcher
	Competitor CompetitorResearcher
	Market     MarketResearcher
	Graveyard  GraveyardResearcher
	Synthesis  Synthesizer

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewOrchestrator(repo Repository, broker *Broker, logger *slog.Logger, agentTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		Repo:         repo,
		Broker:       broker,
		Logger:       logger,
		AgentTimeout: agentTimeout,
		cancels:      make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start launches the pipeline for the run in the background and returns
// immediately. The run must already exist in the repository.
func (o *Orchestrator) Start(run *ValidationRun) {
	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.cancels[run.ID] = cancel
	o.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.cancels, run.ID)
			o.mu.Unlock()
		}()
		o.Run(ctx, run)
	}()
}

// Cancel aborts a running pipeline. It reports whether a pipeline was
// found for the id.
func (o *Orchestrator) Cancel(runID uuid.UUID) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[runID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Run executes the pipeline synchronously. The CLI calls this directly;
// the server goes through Start.
func (o *Orchestrator) Run(ctx context.Context, run *ValidationRun) {
	defer o.Broker.Finish(run.ID)

	log := o.Logger.With("run_id", run.ID)
	if err := o.Repo.SetStatus(ctx, run.ID, StatusRunning, ""); err != nil {
		log.Error("failed to mark run running", "error", err)
		return
	}

	var (
		pain       *agents.PainResearch
		competitor *agents.CompetitorResearch
		market     *agents.MarketIntelligence
		graveyard  *agents.GraveyardResearch

		painErr, competitorErr error
	)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		pain, painErr = runAgent(ctx, o, run, StagePain, "pain", FieldPain, o.Pain.Research)
	}()
	go func() {
		defer wg.Done()
		competitor, competitorErr = runAgent(ctx, o, run, StageCompetitor, "competitor", FieldCompetitor, o.Competitor.Research)
	}()
	go func() {
		defer wg.Done()
		market, _ = runAgent(ctx, o, run, StageMarket, "market", FieldMarket, o.Market.Research)
	}()
	go func() {
		defer wg.Done()
		graveyard, _ = runAgent(ctx, o, run, StageGraveyard, "graveyard", FieldGraveyard, o.Graveyard.Research)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		o.fail(run.ID, msgCancelled)
		return
	}
	if painErr != nil || competitorErr != nil {
		log.Error("mandatory research failed", "pain_error", painErr, "competitor_error", competitorErr)
		o.fail(run.ID, msgResearchFailed)
		return
	}

	o.Broker.Publish(run.ID, Event{Kind: EventAgentStarted, Agent: "synthesis", Stage: StageSynthesis})
	if err := o.Repo.SetStage(ctx, run.ID, StageSynthesis); err != nil {
		log.Warn("failed to advance stage", "stage", StageSynthesis, "error", err)
	}

	synthCtx, cancel := context.WithTimeout(ctx, o.AgentTimeout)
	defer cancel()
	verdict, err := o.Synthesis.Synthesize(synthCtx, run.Idea, agents.SynthesisInput{
		Pain:       pain,
		Competitor: competitor,
		Market:     market,
		Graveyard:  graveyard,
	})
	if err != nil {
		if ctx.Err() != nil {
			o.fail(run.ID, msgCancelled)
			return
		}
		log.Error("synthesis failed", "error", err)
		o.fail(run.ID, msgSynthesisFailed)
		return
	}

	raw, err := json.Marshal(verdict)
	if err != nil {
		log.Error("failed to encode synthesis result", "error", err)
		o.fail(run.ID, msgSynthesisFailed)
		return
	}
	if err := o.Repo.SetSynthesis(ctx, run.ID, raw); err != nil {
		log.Error("failed to store synthesis result", "error", err)
		o.fail(run.ID, msgSynthesisFailed)
		return
	}
	if err := o.Repo.SetStatus(ctx, run.ID, StatusCompleted, ""); err != nil {
		log.Error("failed to mark run completed", "error", err)
		return
	}
	o.Broker.Publish(run.ID, Event{Kind: EventAgentCompleted, Agent: "synthesis", Stage: StageSynthesis})
	o.Broker.Publish(run.ID, Event{Kind: EventPipelineCompleted})
	log.Info("validation completed", "verdict", verdict.Verdict, "confidence", verdict.Confidence)
}

// runAgent wraps one research agent: stage bookkeeping, timeout, result
// persistence, and progress events. A failed agent returns its error to
// the caller, which decides whether the failure is fatal.
func runAgent[T any](ctx context.Context, o *Orchestrator, run *ValidationRun, stage int, name string, field AgentField, research func(context.Context, string) (*T, error)) (*T, error) {
	log := o.Logger.With("run_id", run.ID, "agent", name)

	o.Broker.Publish(run.ID, Event{Kind: EventAgentStarted, Agent: name, Stage: stage})
	if err := o.Repo.SetStage(ctx, run.ID, stage); err != nil {
		log.Warn("failed to advance stage", "stage", stage, "error", err)
	}

	agentCtx, cancel := context.WithTimeout(ctx, o.AgentTimeout)
	defer cancel()

	started := time.Now()
	result, err := research(agentCtx, run.Idea)
	if err != nil {
		log.Error("agent failed", "error", err, "elapsed", time.Since(started).Round(time.Millisecond))
		return nil, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		log.Error("failed to encode agent result", "error", err)
		return nil, err
	}
	if err := o.Repo.SetAgentResult(ctx, run.ID, field, raw); err != nil {
		log.Error("failed to store agent result", "error", err)
		return nil, err
	}

	o.Broker.Publish(run.ID, Event{Kind: EventAgentCompleted, Agent: name, Stage: stage})
	log.Info("agent completed", "elapsed", time.Since(started).Round(time.Millisecond))
	return result, nil
}

// fail writes the sanitized message to the run and announces it. Uses a
// fresh context so cancellation of the run context cannot block the
// status write.
func (o *Orchestrator) fail(runID uuid.UUID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.Repo.SetStatus(ctx, runID, StatusFailed, message); err != nil && !errors.Is(err, ErrNotFound) {
		o.Logger.Error("failed to mark run failed", "run_id", runID, "error", err)
	}
	o.Broker.Publish(runID, Event{Kind: EventPipelineError, Message: message})
}
