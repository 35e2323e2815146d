package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/g0da-s/vettd/pkg/retry"
)

// SubmitToolName is the synthetic terminal tool appended to every
// offered tool set. Accepting a valid call to it ends the loop.
const SubmitToolName = "submit_result"

// ErrModelStalled is returned when the model produces no tool call even
// after being reinvoked with the terminal tool forced.
var ErrModelStalled = errors.New("model produced no tool call when forced to submit")

// Engine drives a chat model through bounded rounds of tool use until it
// submits a result that validates against the output schema.
type Engine struct {
	Model     llms.Model
	ModelName string
	Retry     retry.Policy
	Logger    *slog.Logger
}

// LoopConfig configures one tool-loop run.
type LoopConfig struct {
	Instructions string
	Task         string
	Tools        []Tool
	OutputSchema *Schema

	// MaxIterations bounds the number of model rounds; the final round
	// always forces the terminal tool.
	MaxIterations int

	// MinToolUses is the evidence gate: submissions before this many
	// successful tool executions are rejected, except on the forced
	// last round. RecommendedToolUses is cited to the model.
	MinToolUses         int
	RecommendedToolUses int
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// RunToolLoop executes the protocol and returns the validated submission.
// It always terminates within MaxIterations rounds (plus at most one
// forced reinvocation per stalled round and one fallback generation).
func (e *Engine) RunToolLoop(ctx context.Context, cfg LoopConfig) (json.RawMessage, error) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 8
	}
	if cfg.OutputSchema == nil {
		return nil, fmt.Errorf("tool loop requires an output schema")
	}

	instructions := cfg.Instructions
	if cfg.MinToolUses > 0 {
		recommended := cfg.RecommendedToolUses
		if recommended < cfg.MinToolUses {
			recommended = cfg.MinToolUses
		}
		instructions += fmt.Sprintf(
			"\n\nEvidence budget: perform at least %d successful searches before submitting; around %d is recommended for a well-researched answer.",
			cfg.MinToolUses, recommended)
	}

	transcript := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, instructions),
		llms.TextParts(llms.ChatMessageTypeHuman, cfg.Task),
	}

	submitDef := submitDefinition(cfg.OutputSchema)
	catalog := append(toolDefinitions(cfg.Tools), submitDef)
	submitOnly := []llms.Tool{submitDef}

	succeeded := 0
	for iteration := 0; iteration < cfg.MaxIterations; iteration++ {
		lastRound := iteration == cfg.MaxIterations-1

		var choice *llms.ContentChoice
		var err error
		if lastRound {
			choice, err = e.invoke(ctx, transcript, submitOnly, true)
		} else {
			choice, err = e.invoke(ctx, transcript, catalog, false)
		}
		if err != nil {
			return nil, err
		}

		if len(choice.ToolCalls) == 0 {
			// Stall: one forced follow-up with only the terminal tool.
			e.logger().Warn("Model returned no tool calls, forcing submission", "iteration", iteration)
			transcript = appendAssistant(transcript, choice)
			transcript = append(transcript, llms.TextParts(llms.ChatMessageTypeHuman,
				"You must call "+SubmitToolName+" now with your findings."))
			choice, err = e.invoke(ctx, transcript, submitOnly, true)
			if err != nil {
				return nil, err
			}
			if len(choice.ToolCalls) == 0 {
				return nil, ErrModelStalled
			}
		}

		transcript = appendAssistant(transcript, choice)
		r := partitionCalls(choice.ToolCalls)

		// Execute all search calls concurrently; results are appended in
		// call order so replays stay deterministic.
		type outcome struct {
			text string
			ok   bool
		}
		outcomes := make([]outcome, len(r.searches))
		var wg sync.WaitGroup
		for i, req := range r.searches {
			wg.Add(1)
			go func(i int, req toolRequest) {
				defer wg.Done()
				text, err := e.executeTool(ctx, cfg.Tools, req)
				if err != nil {
					outcomes[i] = outcome{text: "Tool error: " + err.Error()}
					return
				}
				outcomes[i] = outcome{text: text, ok: true}
			}(i, req)
		}
		wg.Wait()

		for i, req := range r.searches {
			if outcomes[i].ok {
				succeeded++
			} else {
				e.logger().Warn("Tool execution failed", "tool", req.name, "result", outcomes[i].text)
			}
			transcript = appendToolResult(transcript, req, outcomes[i].text)
		}
		for _, req := range r.rejected {
			transcript = appendToolResult(transcript, req,
				"Duplicate "+SubmitToolName+" call ignored; submit exactly once.")
		}

		if r.submit == nil {
			continue
		}

		if succeeded < cfg.MinToolUses && !lastRound {
			e.logger().Info("Submission rejected by evidence gate",
				"succeeded", succeeded, "min", cfg.MinToolUses, "iteration", iteration)
			transcript = appendToolResult(transcript, *r.submit, fmt.Sprintf(
				"Submission rejected: only %d successful searches so far. Gather more evidence first; at least %d searches are required and %d are recommended.",
				succeeded, cfg.MinToolUses, cfg.RecommendedToolUses))
			continue
		}

		if err := cfg.OutputSchema.Validate(r.submit.args); err != nil {
			e.logger().Warn("Submission failed validation", "iteration", iteration, "error", err)
			transcript = appendToolResult(transcript, *r.submit,
				"Invalid submission: "+err.Error()+". Call "+SubmitToolName+" again with corrected arguments.")
			continue
		}

		e.logger().Info("Submission accepted", "iteration", iteration, "tool_uses", succeeded)
		return r.submit.args, nil
	}

	// Round budget exhausted without an accepted submission: one final
	// structured generation over the transcript.
	e.logger().Warn("Tool loop exhausted, falling back to structured generation")
	return e.fallbackGenerate(ctx, cfg, transcript)
}

func (e *Engine) invoke(ctx context.Context, transcript []llms.MessageContent, tools []llms.Tool, forceSubmit bool) (*llms.ContentChoice, error) {
	opts := []llms.CallOption{llms.WithTools(tools)}
	if e.ModelName != "" {
		opts = append(opts, llms.WithModel(e.ModelName))
	}
	if forceSubmit {
		opts = append(opts, llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: SubmitToolName},
		}))
	}

	var resp *llms.ContentResponse
	err := e.Retry.Do(ctx, "model call", func() error {
		var callErr error
		resp, callErr = e.Model.GenerateContent(ctx, transcript, opts...)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return &llms.ContentChoice{}, nil
	}
	return resp.Choices[0], nil
}

func (e *Engine) executeTool(ctx context.Context, tools []Tool, req toolRequest) (string, error) {
	for _, t := range tools {
		if t.Name == req.name {
			return t.Execute(ctx, req.args)
		}
	}
	return "", fmt.Errorf("unknown tool %q", req.name)
}

func (e *Engine) fallbackGenerate(ctx context.Context, cfg LoopConfig, transcript []llms.MessageContent) (json.RawMessage, error) {
	gen := &Generator{Model: e.Model, ModelName: e.ModelName, Retry: e.Retry, Logger: e.Logger}
	user := "Conversation so far:\n\n" + renderTranscript(transcript) +
		"\n\nProduce the final result as a JSON object matching the response format."
	return gen.GenerateJSON(ctx, cfg.Instructions, user, cfg.OutputSchema)
}

func appendAssistant(transcript []llms.MessageContent, choice *llms.ContentChoice) []llms.MessageContent {
	parts := []llms.ContentPart{}
	if choice.Content != "" {
		parts = append(parts, llms.TextContent{Text: choice.Content})
	}
	for _, call := range choice.ToolCalls {
		parts = append(parts, call)
	}
	if len(parts) == 0 {
		return transcript
	}
	return append(transcript, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
}

func appendToolResult(transcript []llms.MessageContent, req toolRequest, content string) []llms.MessageContent {
	return append(transcript, llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{llms.ToolCallResponse{
			ToolCallID: req.id,
			Name:       req.name,
			Content:    content,
		}},
	})
}

func renderTranscript(transcript []llms.MessageContent) string {
	var sb strings.Builder
	for _, msg := range transcript {
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				fmt.Fprintf(&sb, "[%s] %s\n", msg.Role, p.Text)
			case llms.ToolCall:
				if p.FunctionCall != nil {
					fmt.Fprintf(&sb, "[%s] called %s(%s)\n", msg.Role, p.FunctionCall.Name, p.FunctionCall.Arguments)
				}
			case llms.ToolCallResponse:
				fmt.Fprintf(&sb, "[tool %s] %s\n", p.Name, p.Content)
			}
		}
	}
	return sb.String()
}
