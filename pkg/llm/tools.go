package llm

import (
	"context"
	"encoding/json"

	"github.com/tmc/langchaingo/llms"
)

// Tool is a non-terminal tool offered to the model during a tool loop.
// Execute returns text routed back to the model as the call's output.
type Tool struct {
	Name        string
	Description string
	Parameters  *Schema
	Execute     func(ctx context.Context, args json.RawMessage) (string, error)
}

// toolRequest is one call the model asked for in a round, already parsed
// out of the provider response.
type toolRequest struct {
	id   string
	name string
	args json.RawMessage
}

// round holds the model's requests partitioned into search calls and at
// most one terminal submit call. Extra submit calls are rejected
// individually rather than executed.
type round struct {
	searches []toolRequest
	submit   *toolRequest
	rejected []toolRequest
}

func partitionCalls(calls []llms.ToolCall) round {
	var r round
	for _, call := range calls {
		if call.FunctionCall == nil {
			continue
		}
		req := toolRequest{
			id:   call.ID,
			name: call.FunctionCall.Name,
			args: json.RawMessage(call.FunctionCall.Arguments),
		}
		if req.name == SubmitToolName {
			if r.submit == nil {
				r.submit = &req
			} else {
				r.rejected = append(r.rejected, req)
			}
			continue
		}
		r.searches = append(r.searches, req)
	}
	return r
}

func toolDefinitions(tools []Tool) []llms.Tool {
	defs := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters.Parameters(),
			},
		})
	}
	return defs
}

// submitDefinition derives the terminal tool's input schema mechanically
// from the loop's output schema.
func submitDefinition(output *Schema) llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        SubmitToolName,
			Description: "Submit your final structured findings. Call this exactly once, when you have gathered enough evidence.",
			Parameters:  output.Parameters(),
		},
	}
}
