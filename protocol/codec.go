package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError describes a model response that could not be decoded into a
// valid Step. It carries the offending raw text so the caller can echo it
// back to the model, and a Reason suitable for a corrective observation.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("protocol: %s", e.Reason)
}

// Corrective returns the model-facing instruction for recovering from this
// parse failure. The text is fed back as an observation so the model can
// re-emit strictly valid JSON.
func (e *ParseError) Corrective() string {
	return fmt.Sprintf(
		"Error: Invalid response received: ```%s```. %s "+
			"Respond with a single JSON object in the required format and nothing else.",
		e.Raw, e.Reason)
}

// Parse extracts and validates one Step from raw model output.
//
// Extraction rule: the substring from the first '{' to the last '}' is
// treated as the JSON payload. This tolerates prose around a single
// well-formed object; it is a best-effort heuristic, not a parser for
// nested or multiple top-level objects.
//
// Parse is pure: it never mutates its input and repeated calls on the same
// text yield equal results.
func Parse(raw string) (Step, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return Step{}, &ParseError{
			Raw:    raw,
			Reason: "No JSON object was found in the response.",
		}
	}

	payload := raw[start : end+1]

	// Decode into a loose map first so a missing "step" key can be told
	// apart from an unknown kind.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Step{}, &ParseError{
			Raw:    raw,
			Reason: fmt.Sprintf("The response is not valid JSON (%v).", err),
		}
	}
	if _, ok := fields["step"]; !ok {
		return Step{}, &ParseError{
			Raw:    raw,
			Reason: "The response is missing the required 'step' key.",
		}
	}

	var step Step
	if err := json.Unmarshal([]byte(payload), &step); err != nil {
		return Step{}, &ParseError{
			Raw:    raw,
			Reason: fmt.Sprintf("The response does not match the Step shape (%v).", err),
		}
	}

	if step.Kind == StepAction {
		if step.Function == "" {
			return Step{}, &ParseError{
				Raw:    raw,
				Reason: "The 'action' step is missing the required 'function' key.",
			}
		}
		if step.Input == nil {
			return Step{}, &ParseError{
				Raw:    raw,
				Reason: "The 'action' step is missing the required 'input' key.",
			}
		}
	}

	return step, nil
}
