package agentloop

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ToolFunc is the implementation signature for a tool. It receives the
// validated input mapping and returns plain text describing success or
// failure. Implementations report errors as "Error: ..." strings rather than
// panicking; the dispatcher contains any panic that escapes anyway.
type ToolFunc func(input map[string]interface{}) string

// ParamSpec declares one parameter of a tool.
type ParamSpec struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"-"`
}

// ToolSpec is the static descriptor of one callable capability: its name,
// the model-facing description, the parameter schema, and the
// implementation.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]ParamSpec
	Run         ToolFunc
}

// ValidationReason classifies why a proposed tool call was rejected.
type ValidationReason string

const (
	UnknownTool      ValidationReason = "unknown_tool"
	MissingParameter ValidationReason = "missing_parameter"
	TypeMismatch     ValidationReason = "type_mismatch"
)

// ValidationError reports a tool call that violates its schema. Its Error
// text is written for the model: it becomes the next observation, not a
// fatal condition.
type ValidationError struct {
	Reason    ValidationReason
	Tool      string
	Parameter string
	Detail    string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case UnknownTool:
		return fmt.Sprintf("Error: Tool '%s' not found.", e.Tool)
	case MissingParameter:
		return fmt.Sprintf("Error: Missing required parameter '%s' for tool '%s'.", e.Parameter, e.Tool)
	case TypeMismatch:
		return fmt.Sprintf("Error: Invalid type for parameter '%s'. Expected string, got %s.", e.Parameter, e.Detail)
	default:
		return fmt.Sprintf("Error: Invalid call to tool '%s'.", e.Tool)
	}
}

// Registry maps tool names to their specs. It is populated once at process
// start and read-only afterwards, so it is safely shared across
// interactions.
type Registry struct {
	tools map[string]ToolSpec
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolSpec)}
}

// Register adds or replaces a tool spec.
func (r *Registry) Register(spec ToolSpec) {
	r.tools[spec.Name] = spec
}

// Get returns the spec for name, or false if no such tool is registered.
func (r *Registry) Get(name string) (ToolSpec, bool) {
	spec, ok := r.tools[name]
	return spec, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	return len(r.tools)
}

// Validate checks a proposed input against the named tool's schema.
//
// Every parameter declared required must be present. Parameters declared
// "string" must hold string values. Other declared types are accepted
// permissively; the validation layer is deliberately shallow and tool
// bodies coerce what they need.
func (r *Registry) Validate(name string, input map[string]interface{}) error {
	spec, ok := r.tools[name]
	if !ok {
		return &ValidationError{Reason: UnknownTool, Tool: name}
	}

	// Deterministic order so error text is stable for the model.
	params := make([]string, 0, len(spec.Parameters))
	for p := range spec.Parameters {
		params = append(params, p)
	}
	sort.Strings(params)

	for _, p := range params {
		decl := spec.Parameters[p]
		value, present := input[p]
		if !present {
			if decl.Required {
				return &ValidationError{Reason: MissingParameter, Tool: name, Parameter: p}
			}
			continue
		}
		if decl.Type == "string" {
			if _, isString := value.(string); !isString {
				return &ValidationError{
					Reason:    TypeMismatch,
					Tool:      name,
					Parameter: p,
					Detail:    fmt.Sprintf("%T", value),
				}
			}
		}
	}

	return nil
}

// catalogEntry is the JSON shape of one tool in the model-facing catalogue.
type catalogEntry struct {
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Catalog renders the registry as an indented JSON document for the system
// prompt: a mapping from tool name to description and JSON-Schema-style
// parameter object.
func (r *Registry) Catalog() string {
	catalog := make(map[string]catalogEntry, len(r.tools))
	for name, spec := range r.tools {
		properties := make(map[string]interface{}, len(spec.Parameters))
		required := []string{}
		for p, decl := range spec.Parameters {
			prop := map[string]interface{}{"type": decl.Type}
			if decl.Description != "" {
				prop["description"] = decl.Description
			}
			properties[p] = prop
			if decl.Required {
				required = append(required, p)
			}
		}
		sort.Strings(required)
		catalog[name] = catalogEntry{
			Description: spec.Description,
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		}
	}

	raw, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}
