package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/g0da-s/vettd/pkg/pipeline"
)

const maxIdeaLength = 2000

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	api := r.Group("/api")
	{
		api.POST("/validations", h.createValidation)
		api.GET("/validations", h.listValidations)
		api.GET("/validations/:id", h.getValidation)
		api.DELETE("/validations/:id", h.deleteValidation)
		api.GET("/validations/:id/events", h.streamEvents)
		api.GET("/validations/:id/logs", h.getValidationLogs)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createValidationRequest struct {
	Idea string `json:"idea"`
}

func (h *Handler) createValidation(c *gin.Context) {
	var req createValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.Idea = strings.TrimSpace(req.Idea)
	if req.Idea == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idea is required"})
		return
	}
	if len(req.Idea) > maxIdeaLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("idea exceeds %d characters", maxIdeaLength)})
		return
	}

	run, err := h.Service.StartValidation(c.Request.Context(), req.Idea)
	if err != nil {
		h.Service.Logger.Error("failed to start validation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start validation"})
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (h *Handler) listValidations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if perPage > 100 {
		perPage = 100
	}

	runs, total, err := h.Service.ListRuns(c.Request.Context(), page, perPage)
	if err != nil {
		h.Service.Logger.Error("failed to list validations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list validations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":    runs,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

func (h *Handler) getValidation(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	run, err := h.Service.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "validation not found"})
			return
		}
		h.Service.Logger.Error("failed to get validation", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get validation"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) deleteValidation(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	deleted, err := h.Service.DeleteRun(c.Request.Context(), id)
	if err != nil {
		h.Service.Logger.Error("failed to delete validation", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete validation"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "validation not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getValidationLogs(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	logs, err := h.Service.GetRunLogs(c.Request.Context(), id, limit)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "validation not found"})
			return
		}
		h.Service.Logger.Error("failed to get validation logs", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get validation logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// streamEvents serves the run's progress as server-sent events. Events
// already implied by the stored run state are replayed first, so late
// subscribers see a consistent stream, then live events follow until
// the pipeline finishes or the client disconnects.
func (h *Handler) streamEvents(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	// Subscribe before reading the snapshot. Anything published between
	// the two shows up both in the snapshot and on the channel, which is
	// harmless since events are state markers; the reverse order would
	// drop events published in the gap, including the terminal one.
	events, cancel := h.Service.Broker.Subscribe(id)
	defer cancel()

	run, err := h.Service.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "validation not found"})
			return
		}
		h.Service.Logger.Error("failed to get validation", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get validation"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	for _, ev := range snapshotEvents(run) {
		writeEvent(c, ev)
	}
	if run.Status == pipeline.StatusCompleted || run.Status == pipeline.StatusFailed {
		return
	}

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			writeEvent(c, ev)
		case <-c.Request.Context().Done():
			return
		}
	}
}

// snapshotEvents reconstructs the events a subscriber would have seen
// before it attached, from the persisted run state.
func snapshotEvents(run *pipeline.ValidationRun) []pipeline.Event {
	var events []pipeline.Event
	started := func(agent string, stage int) {
		if run.CurrentStage >= stage {
			events = append(events, pipeline.Event{Kind: pipeline.EventAgentStarted, Agent: agent, Stage: stage})
		}
	}
	completed := func(agent string, stage int, done bool) {
		if done {
			events = append(events, pipeline.Event{Kind: pipeline.EventAgentCompleted, Agent: agent, Stage: stage})
		}
	}

	started("pain", pipeline.StagePain)
	completed("pain", pipeline.StagePain, run.Pain != nil)
	started("competitor", pipeline.StageCompetitor)
	completed("competitor", pipeline.StageCompetitor, run.Competitor != nil)
	started("market", pipeline.StageMarket)
	completed("market", pipeline.StageMarket, run.Market != nil)
	started("graveyard", pipeline.StageGraveyard)
	completed("graveyard", pipeline.StageGraveyard, run.Graveyard != nil)
	started("synthesis", pipeline.StageSynthesis)
	completed("synthesis", pipeline.StageSynthesis, run.Synthesis != nil)

	switch run.Status {
	case pipeline.StatusCompleted:
		events = append(events, pipeline.Event{Kind: pipeline.EventPipelineCompleted})
	case pipeline.StatusFailed:
		events = append(events, pipeline.Event{Kind: pipeline.EventPipelineError, Message: run.Error})
	}
	return events
}

func writeEvent(c *gin.Context, ev pipeline.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
	c.Writer.Flush()
}

func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid validation id"})
		return uuid.Nil, false
	}
	return id, true
}
