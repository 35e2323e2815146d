package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Schema describes the structured output an agent expects from the model.
// It is the single source for the submit tool's input schema, the
// JSON-mode response-format prompt, the genai response schema, and
// post-hoc validation of submissions.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

func Object(properties map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: properties, Required: required}
}

func Array(desc string, items *Schema) *Schema {
	return &Schema{Type: "array", Description: desc, Items: items}
}

func String(desc string) *Schema {
	return &Schema{Type: "string", Description: desc}
}

func StringEnum(desc string, options ...string) *Schema {
	return &Schema{Type: "string", Description: desc, Enum: options}
}

func Number(desc string) *Schema {
	return &Schema{Type: "number", Description: desc}
}

func Integer(desc string) *Schema {
	return &Schema{Type: "integer", Description: desc}
}

func Boolean(desc string) *Schema {
	return &Schema{Type: "boolean", Description: desc}
}

// Parameters renders the schema as the map form expected by
// llms.FunctionDefinition.Parameters.
func (s *Schema) Parameters() map[string]any {
	out := map[string]any{"type": s.Type}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if s.Items != nil {
		out["items"] = s.Items.Parameters()
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = prop.Parameters()
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// PromptJSON renders the schema with the preamble used for JSON-mode
// generation.
func (s *Schema) PromptJSON() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return ""
	}
	return "Return the JSON object directly without any formatting or additional text. " +
		"Make sure to answer in valid json and include all required properties:\n" + string(data)
}

// Genai converts the schema for genai's ResponseSchema config.
func (s *Schema) Genai() *genai.Schema {
	out := &genai.Schema{Description: s.Description}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if len(s.Enum) > 0 {
		out.Enum = append(out.Enum, s.Enum...)
	}
	if s.Items != nil {
		out.Items = s.Items.Genai()
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = prop.Genai()
		}
	}
	if len(s.Required) > 0 {
		out.Required = append(out.Required, s.Required...)
	}
	return out
}

// Validate checks raw JSON against the schema: required fields must be
// present and JSON types must match. Enum membership is deliberately not
// enforced here; categorical fields are normalized after decoding so
// near-miss model text never fails a submission.
func (s *Schema) Validate(raw json.RawMessage) error {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	var problems []string
	s.check("", value, &problems)
	if len(problems) > 0 {
		return fmt.Errorf("schema validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (s *Schema) check(path string, value any, problems *[]string) {
	at := path
	if at == "" {
		at = "(root)"
	}
	switch s.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected object", at))
			return
		}
		for _, name := range s.Required {
			if _, present := obj[name]; !present {
				*problems = append(*problems, fmt.Sprintf("%s: missing required field %q", at, name))
			}
		}
		for name, prop := range s.Properties {
			fieldValue, present := obj[name]
			if !present || fieldValue == nil {
				continue
			}
			prop.check(joinPath(path, name), fieldValue, problems)
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected array", at))
			return
		}
		if s.Items != nil {
			for i, item := range items {
				s.Items.check(fmt.Sprintf("%s[%d]", path, i), item, problems)
			}
		}
	case "string":
		if _, ok := value.(string); !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected string", at))
		}
	case "number", "integer":
		if _, ok := value.(float64); !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected number", at))
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected boolean", at))
		}
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
