package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g0da-s/vettd/pkg/agents"
	"github.com/g0da-s/vettd/pkg/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type (
	painFunc       func(ctx context.Context, idea string) (*agents.PainResearch, error)
	competitorFunc func(ctx context.Context, idea string) (*agents.CompetitorResearch, error)
	marketFunc     func(ctx context.Context, idea string) (*agents.MarketIntelligence, error)
	graveyardFunc  func(ctx context.Context, idea string) (*agents.GraveyardResearch, error)
	synthFunc      func(ctx context.Context, idea string, in agents.SynthesisInput) (*agents.SynthesisResult, error)
)

func (f painFunc) Research(ctx context.Context, idea string) (*agents.PainResearch, error) {
	return f(ctx, idea)
}
func (f competitorFunc) Research(ctx context.Context, idea string) (*agents.CompetitorResearch, error) {
	return f(ctx, idea)
}
func (f marketFunc) Research(ctx context.Context, idea string) (*agents.MarketIntelligence, error) {
	return f(ctx, idea)
}
func (f graveyardFunc) Research(ctx context.Context, idea string) (*agents.GraveyardResearch, error) {
	return f(ctx, idea)
}
func (f synthFunc) Synthesize(ctx context.Context, idea string, in agents.SynthesisInput) (*agents.SynthesisResult, error) {
	return f(ctx, idea, in)
}

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := pipeline.NewMemoryRepository()
	broker := pipeline.NewBroker(logger)
	orch := pipeline.NewOrchestrator(repo, broker, logger, time.Minute)
	orch.Pain = painFunc(func(ctx context.Context, idea string) (*agents.PainResearch, error) {
		return &agents.PainResearch{PrimaryTargetUser: "devs"}, nil
	})
	orch.Competitor = competitorFunc(func(ctx context.Context, idea string) (*agents.CompetitorResearch, error) {
		return &agents.CompetitorResearch{Saturation: "competitive"}, nil
	})
	orch.Market = marketFunc(func(ctx context.Context, idea string) (*agents.MarketIntelligence, error) {
		return &agents.MarketIntelligence{MarketSize: "$1B"}, nil
	})
	orch.Graveyard = graveyardFunc(func(ctx context.Context, idea string) (*agents.GraveyardResearch, error) {
		return &agents.GraveyardResearch{CautionLevel: "low"}, nil
	})
	orch.Synthesis = synthFunc(func(ctx context.Context, idea string, in agents.SynthesisInput) (*agents.SynthesisResult, error) {
		return &agents.SynthesisResult{Verdict: "BUILD", Confidence: 0.8}, nil
	})

	svc := NewService(repo, orch, broker, nil, logger)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r)
	return r, svc
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func awaitCompletion(t *testing.T, svc *Service, id uuid.UUID) *pipeline.ValidationRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := svc.GetRun(context.Background(), id)
		require.NoError(t, err)
		if run.Status == pipeline.StatusCompleted || run.Status == pipeline.StatusFailed {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return nil
}

func TestCreateValidationValidatesInput(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/validations", `{"idea":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/validations", `{"idea":"`+strings.Repeat("x", maxIdeaLength+1)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/validations", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateValidationRunsPipeline(t *testing.T) {
	r, svc := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/validations", `{"idea":"a deployment tool"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created pipeline.ValidationRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "a deployment tool", created.Idea)

	final := awaitCompletion(t, svc, created.ID)
	require.Equal(t, pipeline.StatusCompleted, final.Status)
	require.NotNil(t, final.Synthesis)
	assert.Equal(t, "BUILD", final.Synthesis.Verdict)

	w = doJSON(r, http.MethodGet, "/api/validations/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"verdict":"BUILD"`)
}

func TestGetValidationErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/validations/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/api/validations/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteValidation(t *testing.T) {
	r, svc := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/validations", `{"idea":"to be deleted"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created pipeline.ValidationRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	awaitCompletion(t, svc, created.ID)

	w = doJSON(r, http.MethodDelete, "/api/validations/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodGet, "/api/validations/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/validations/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListValidations(t *testing.T) {
	r, svc := newTestRouter(t)

	for _, idea := range []string{"first idea", "second idea"} {
		w := doJSON(r, http.MethodPost, "/api/validations", `{"idea":"`+idea+`"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		var created pipeline.ValidationRun
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		awaitCompletion(t, svc, created.ID)
	}

	w := doJSON(r, http.MethodGet, "/api/validations?page=1&per_page=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items   []pipeline.ValidationRun `json:"items"`
		Total   int                      `json:"total"`
		Page    int                      `json:"page"`
		PerPage int                      `json:"per_page"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Items, 1)
}

func TestStreamEventsReplaysFinishedRun(t *testing.T) {
	r, svc := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/validations", `{"idea":"an idea"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created pipeline.ValidationRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	awaitCompletion(t, svc, created.ID)

	w = doJSON(r, http.MethodGet, "/api/validations/"+created.ID.String()+"/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "data: ")
	assert.Contains(t, body, string(pipeline.EventAgentCompleted))
	assert.Contains(t, body, string(pipeline.EventPipelineCompleted))
}

func TestStreamEventsDeliversTerminalEventToLiveSubscriber(t *testing.T) {
	r, svc := newTestRouter(t)

	started := make(chan struct{})
	release := make(chan struct{})
	svc.Orch.Pain = painFunc(func(ctx context.Context, idea string) (*agents.PainResearch, error) {
		close(started)
		select {
		case <-release:
			return &agents.PainResearch{PrimaryTargetUser: "devs"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	w := doJSON(r, http.MethodPost, "/api/validations", `{"idea":"a live idea"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created pipeline.ValidationRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	<-started

	// Attach while the pipeline is mid-flight, then let it finish. The
	// stream must end with the terminal event regardless of how the
	// attach interleaves with the pipeline finishing.
	sw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/validations/"+created.ID.String()+"/events", nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(sw, req)
	}()

	time.Sleep(10 * time.Millisecond)
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate after the pipeline finished")
	}
	assert.Contains(t, sw.Body.String(), string(pipeline.EventPipelineCompleted))
}

func TestDeleteRunningValidationReleasesBroker(t *testing.T) {
	r, svc := newTestRouter(t)

	started := make(chan struct{})
	svc.Orch.Pain = painFunc(func(ctx context.Context, idea string) (*agents.PainResearch, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	w := doJSON(r, http.MethodPost, "/api/validations", `{"idea":"to be deleted mid-flight"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created pipeline.ValidationRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	<-started

	events, cancel := svc.Broker.Subscribe(created.ID)
	w = doJSON(r, http.MethodDelete, "/api/validations/"+created.ID.String(), "")
	require.Equal(t, http.StatusNoContent, w.Code)

	// The stream closing means the pipeline goroutine has finished.
	for range events {
	}
	cancel()

	// The broker must eventually treat the deleted run like an unknown
	// one again instead of keeping its finished marker forever.
	deadline := time.Now().Add(5 * time.Second)
	for {
		ch, stop := svc.Broker.Subscribe(created.ID)
		open := true
		select {
		case _, ok := <-ch:
			open = ok
		default:
		}
		stop()
		if open {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("broker still reports the deleted run as finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSnapshotEventsForRunningRun(t *testing.T) {
	run := &pipeline.ValidationRun{
		Status:       pipeline.StatusRunning,
		CurrentStage: pipeline.StageGraveyard,
		Pain:         &agents.PainResearch{},
	}
	events := snapshotEvents(run)

	var started, completed int
	for _, ev := range events {
		switch ev.Kind {
		case pipeline.EventAgentStarted:
			started++
		case pipeline.EventAgentCompleted:
			completed++
		}
	}
	assert.Equal(t, 4, started, "all four research agents have started")
	assert.Equal(t, 1, completed, "only pain has a stored result")
}

func TestSnapshotEventsForFailedRun(t *testing.T) {
	run := &pipeline.ValidationRun{
		Status:       pipeline.StatusFailed,
		CurrentStage: pipeline.StagePain,
		Error:        "could not gather enough research data for this idea",
	}
	events := snapshotEvents(run)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, pipeline.EventPipelineError, last.Kind)
	assert.Equal(t, run.Error, last.Message)
}
