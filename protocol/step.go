// Package protocol defines the structured message contract between the
// agent loop and the model.
//
// Every model response is expected to contain exactly one JSON object in the
// Step shape. The codec tolerates prose around the object (first '{' to last
// '}') but validates the decoded payload strictly: the step kind must be one
// of the allowed values, and an action step must carry both a function name
// and an input mapping.
package protocol

import (
	"encoding/json"
	"fmt"
)

// StepKind discriminates the four step types the model may emit.
type StepKind string

const (
	StepPlan    StepKind = "plan"
	StepAction  StepKind = "action"
	StepObserve StepKind = "observe"
	StepOutput  StepKind = "output"
)

// Valid reports whether k is a member of the allowed step set.
func (k StepKind) Valid() bool {
	switch k {
	case StepPlan, StepAction, StepObserve, StepOutput:
		return true
	}
	return false
}

// AllowedKinds lists the step kinds the protocol accepts, in protocol order.
// Used when composing corrective messages back to the model.
func AllowedKinds() []StepKind {
	return []StepKind{StepPlan, StepAction, StepObserve, StepOutput}
}

// Step is one structured unit of model output.
//
// Function and Input are meaningful only when Kind is StepAction; the codec
// rejects action steps that omit either.
type Step struct {
	Kind     StepKind               `json:"step"`
	Content  string                 `json:"content,omitempty"`
	Function string                 `json:"function,omitempty"`
	Input    map[string]interface{} `json:"input,omitempty"`
}

// Observation builds an observe Step carrying the given text. The loop uses
// it both for tool results and for corrective messages after protocol
// violations.
func Observation(content string) Step {
	return Step{Kind: StepObserve, Content: content}
}

// Output builds a terminal output Step.
func Output(content string) Step {
	return Step{Kind: StepOutput, Content: content}
}

// Encode renders the step as a compact JSON object in the wire shape.
func (s Step) Encode() string {
	raw, err := json.Marshal(s)
	if err != nil {
		// Step fields are all marshalable types; this path exists only to
		// keep Encode total.
		return fmt.Sprintf(`{"step":%q,"content":"encoding failed"}`, s.Kind)
	}
	return string(raw)
}

// IsAction reports whether the step requests a tool invocation.
func (s Step) IsAction() bool {
	return s.Kind == StepAction
}
