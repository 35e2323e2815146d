package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/g0da-s/vettd/pkg/retry"
)

// scriptedModel answers each GenerateContent call from a script keyed by
// call number, and records the options and transcript it was given.
type scriptedModel struct {
	calls      int
	respond    func(call int, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error)
	transcript [][]llms.MessageContent
	options    []*llms.CallOptions
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := &llms.CallOptions{}
	for _, o := range options {
		o(opts)
	}
	m.calls++
	m.transcript = append(m.transcript, messages)
	m.options = append(m.options, opts)
	return m.respond(m.calls, messages, opts)
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{ID: id, Type: "function", FunctionCall: &llms.FunctionCall{Name: name, Arguments: args}}
}

func respond(calls ...llms.ToolCall) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{ToolCalls: calls}}}, nil
}

func respondText(content string) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}, nil
}

func answerSchema() *Schema {
	return Object(map[string]*Schema{"answer": String("The final answer")}, "answer")
}

func searchTool(executed *int) Tool {
	return Tool{
		Name:        "web_search",
		Description: "Search the web",
		Parameters:  Object(map[string]*Schema{"query": String("The search query")}, "query"),
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			if executed != nil {
				*executed++
			}
			return "results for " + string(args), nil
		},
	}
}

func testEngine(m *scriptedModel) *Engine {
	return &Engine{Model: m, Retry: retry.Policy{MaxAttempts: 1}}
}

// transcriptContains reports whether any message part in the given call's
// transcript contains the substring.
func transcriptContains(m *scriptedModel, call int, substr string) bool {
	for _, msg := range m.transcript[call-1] {
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				if strings.Contains(p.Text, substr) {
					return true
				}
			case llms.ToolCallResponse:
				if strings.Contains(p.Content, substr) {
					return true
				}
			}
		}
	}
	return false
}

func TestRunToolLoopSubmitsAfterEvidence(t *testing.T) {
	var executed int
	m := &scriptedModel{respond: func(call int, _ []llms.MessageContent, _ *llms.CallOptions) (*llms.ContentResponse, error) {
		switch call {
		case 1:
			return respond(
				toolCall("1", "web_search", `{"query":"a"}`),
				toolCall("2", "web_search", `{"query":"b"}`))
		default:
			return respond(toolCall("3", SubmitToolName, `{"answer":"done"}`))
		}
	}}

	raw, err := testEngine(m).RunToolLoop(context.Background(), LoopConfig{
		Instructions: "research",
		Task:         "idea",
		Tools:        []Tool{searchTool(&executed)},
		OutputSchema: answerSchema(),
		MaxIterations: 8,
		MinToolUses:   2,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"done"}`, string(raw))
	assert.Equal(t, 2, executed)
	assert.Equal(t, 2, m.calls)
}

func TestRunToolLoopRejectsEarlySubmission(t *testing.T) {
	m := &scriptedModel{respond: func(call int, _ []llms.MessageContent, _ *llms.CallOptions) (*llms.ContentResponse, error) {
		switch call {
		case 1:
			return respond(toolCall("1", SubmitToolName, `{"answer":"premature"}`))
		case 2:
			return respond(
				toolCall("2", "web_search", `{"query":"a"}`),
				toolCall("3", "web_search", `{"query":"b"}`))
		default:
			return respond(toolCall("4", SubmitToolName, `{"answer":"grounded"}`))
		}
	}}

	raw, err := testEngine(m).RunToolLoop(context.Background(), LoopConfig{
		Tools:         []Tool{searchTool(nil)},
		OutputSchema:  answerSchema(),
		MaxIterations: 8,
		MinToolUses:   2,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"grounded"}`, string(raw))
	assert.True(t, transcriptContains(m, 2, "Submission rejected"), "model should see the rejection feedback")
}

func TestRunToolLoopValidationFeedback(t *testing.T) {
	m := &scriptedModel{respond: func(call int, _ []llms.MessageContent, _ *llms.CallOptions) (*llms.ContentResponse, error) {
		switch call {
		case 1:
			return respond(toolCall("1", SubmitToolName, `{"answer":42}`))
		default:
			return respond(toolCall("2", SubmitToolName, `{"answer":"fixed"}`))
		}
	}}

	raw, err := testEngine(m).RunToolLoop(context.Background(), LoopConfig{
		Tools:         []Tool{searchTool(nil)},
		OutputSchema:  answerSchema(),
		MaxIterations: 8,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"fixed"}`, string(raw))
	assert.True(t, transcriptContains(m, 2, "Invalid submission"), "model should see the validation feedback")
}

func TestRunToolLoopForcesSubmitOnLastRound(t *testing.T) {
	m := &scriptedModel{respond: func(call int, _ []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
		switch call {
		case 1:
			return respond(toolCall("1", "web_search", `{"query":"a"}`))
		default:
			return respond(toolCall("2", SubmitToolName, `{"answer":"best effort"}`))
		}
	}}

	// Evidence gate cannot be satisfied within the budget; the last
	// round still accepts the submission.
	raw, err := testEngine(m).RunToolLoop(context.Background(), LoopConfig{
		Tools:         []Tool{searchTool(nil)},
		OutputSchema:  answerSchema(),
		MaxIterations: 2,
		MinToolUses:   3,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"best effort"}`, string(raw))

	require.Len(t, m.options, 2)
	assert.NotNil(t, m.options[1].ToolChoice, "last round must force the terminal tool")
	require.Len(t, m.options[1].Tools, 1)
	assert.Equal(t, SubmitToolName, m.options[1].Tools[0].Function.Name)
}

func TestRunToolLoopStallReinvokesForced(t *testing.T) {
	m := &scriptedModel{respond: func(call int, _ []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
		switch call {
		case 1:
			return respondText("thinking out loud instead of acting")
		default:
			return respond(toolCall("1", SubmitToolName, `{"answer":"recovered"}`))
		}
	}}

	raw, err := testEngine(m).RunToolLoop(context.Background(), LoopConfig{
		Tools:         []Tool{searchTool(nil)},
		OutputSchema:  answerSchema(),
		MaxIterations: 8,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"recovered"}`, string(raw))
	assert.Equal(t, 2, m.calls)
	assert.NotNil(t, m.options[1].ToolChoice, "stall recovery must force the terminal tool")
}

func TestRunToolLoopStalledTwiceFails(t *testing.T) {
	m := &scriptedModel{respond: func(call int, _ []llms.MessageContent, _ *llms.CallOptions) (*llms.ContentResponse, error) {
		return respondText("no tool calls, ever")
	}}

	_, err := testEngine(m).RunToolLoop(context.Background(), LoopConfig{
		Tools:         []Tool{searchTool(nil)},
		OutputSchema:  answerSchema(),
		MaxIterations: 8,
	})
	require.ErrorIs(t, err, ErrModelStalled)
}

func TestRunToolLoopFallsBackAfterExhaustion(t *testing.T) {
	m := &scriptedModel{respond: func(call int, _ []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
		if opts.JSONMode {
			return respondText(`{"answer":"from fallback"}`)
		}
		// Every loop round submits something that never validates.
		return respond(toolCall(fmt.Sprint(call), SubmitToolName, `{"answer":7}`))
	}}

	raw, err := testEngine(m).RunToolLoop(context.Background(), LoopConfig{
		Tools:         []Tool{searchTool(nil)},
		OutputSchema:  answerSchema(),
		MaxIterations: 2,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"from fallback"}`, string(raw))
}

func TestRunToolLoopCountsOnlySuccessfulToolUses(t *testing.T) {
	failing := Tool{
		Name:        "web_search",
		Description: "Search the web",
		Parameters:  Object(map[string]*Schema{"query": String("The search query")}, "query"),
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			return "", errors.New("upstream unavailable")
		},
	}
	m := &scriptedModel{respond: func(call int, _ []llms.MessageContent, _ *llms.CallOptions) (*llms.ContentResponse, error) {
		switch call {
		case 1:
			return respond(toolCall("1", "web_search", `{"query":"a"}`))
		case 2:
			// Failed searches do not count toward the gate.
			return respond(toolCall("2", SubmitToolName, `{"answer":"too thin"}`))
		case 3:
			return respond(toolCall("3", "web_search", `{"query":"b"}`))
		default:
			return respond(toolCall("4", SubmitToolName, `{"answer":"ok"}`))
		}
	}}

	// Every search fails, so the gate holds all the way to the forced
	// last round, which accepts the submission regardless.
	raw, err := testEngine(m).RunToolLoop(context.Background(), LoopConfig{
		Tools:         []Tool{failing},
		OutputSchema:  answerSchema(),
		MaxIterations: 8,
		MinToolUses:   1,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"ok"}`, string(raw))
	assert.True(t, transcriptContains(m, 3, "Submission rejected"))
}

func TestRunToolLoopTerminatesWhenModelOnlySearches(t *testing.T) {
	var executed int
	// The model requests another search on every round, even when the
	// terminal tool is forced; only the JSON-mode fallback answers.
	m := &scriptedModel{respond: func(call int, _ []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
		if opts.JSONMode {
			return respondText(`{"answer":"from fallback"}`)
		}
		return respond(toolCall(fmt.Sprint(call), "web_search", `{"query":"more"}`))
	}}

	raw, err := testEngine(m).RunToolLoop(context.Background(), LoopConfig{
		Tools:         []Tool{searchTool(&executed)},
		OutputSchema:  answerSchema(),
		MaxIterations: 3,
		MinToolUses:   1,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"from fallback"}`, string(raw))
	assert.Equal(t, 3, executed, "one search per round")
	assert.Equal(t, 4, m.calls, "three rounds plus one fallback generation")
}

func TestRunToolLoopTerminatesWhenModelOnlySearchesAndFallbackFails(t *testing.T) {
	m := &scriptedModel{respond: func(call int, _ []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
		if opts.JSONMode {
			return respondText("still not json")
		}
		return respond(toolCall(fmt.Sprint(call), "web_search", `{"query":"more"}`))
	}}

	_, err := testEngine(m).RunToolLoop(context.Background(), LoopConfig{
		Tools:         []Tool{searchTool(nil)},
		OutputSchema:  answerSchema(),
		MaxIterations: 3,
		MinToolUses:   1,
	})
	require.Error(t, err)
	assert.Equal(t, 6, m.calls, "three rounds plus the fallback's bounded attempts")
}

func TestPartitionCalls(t *testing.T) {
	r := partitionCalls([]llms.ToolCall{
		toolCall("1", "web_search", `{"query":"a"}`),
		toolCall("2", SubmitToolName, `{"answer":"first"}`),
		toolCall("3", SubmitToolName, `{"answer":"second"}`),
		toolCall("4", "forum_search", `{"query":"b"}`),
	})
	assert.Len(t, r.searches, 2)
	require.NotNil(t, r.submit)
	assert.JSONEq(t, `{"answer":"first"}`, string(r.submit.args))
	assert.Len(t, r.rejected, 1)
}
