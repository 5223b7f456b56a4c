package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/forgeworks/stepagent/llm"
	"github.com/forgeworks/stepagent/protocol"
)

// scriptedModel replays canned responses in order. An entry in errs replaces
// the response at that call index with a failure.
type scriptedModel struct {
	responses []string
	errs      map[int]error
	calls     int
}

func (m *scriptedModel) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	idx := m.calls
	m.calls++
	if err, ok := m.errs[idx]; ok {
		return nil, err
	}
	if idx >= len(m.responses) {
		return nil, fmt.Errorf("scripted model exhausted after %d calls", len(m.responses))
	}
	return &llm.Response{ID: fmt.Sprintf("resp_%d", idx), Text: m.responses[idx]}, nil
}

func newTestLoop(t *testing.T, model ModelClient, config LoopConfig) (*Loop, *int) {
	t.Helper()
	dispatched := 0
	reg := NewRegistry()
	reg.Register(ToolSpec{
		Name: "write_file",
		Parameters: map[string]ParamSpec{
			"path":    {Type: "string", Required: true},
			"content": {Type: "string", Required: true},
		},
		Run: func(input map[string]interface{}) string {
			dispatched++
			return fmt.Sprintf("File '%s' written successfully.", input["path"])
		},
	})
	d := NewDispatcher(reg, nil, nil)
	return NewLoop(model, d, "system prompt", config, nil, nil), &dispatched
}

func observationContents(t *testing.T, loop *Loop) []string {
	t.Helper()
	var out []string
	for _, msg := range loop.Conversation().Messages() {
		if msg.Role != RoleAssistant {
			continue
		}
		var step protocol.Step
		if err := json.Unmarshal([]byte(msg.Content), &step); err != nil {
			continue
		}
		if step.Kind == protocol.StepObserve {
			out = append(out, step.Content)
		}
	}
	return out
}

func TestLoopParsesOutputWithSurroundingChatter(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`Sure! Here is the result: {"step": "output", "content": "done"}`,
	}}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	result, err := loop.Run(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "done" {
		t.Errorf("expected output %q, got %q", "done", result.Output)
	}
	if result.Reason != TerminatedByOutput {
		t.Errorf("expected output termination, got %s", result.Reason)
	}
	if result.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", result.Iterations)
	}
}

func TestLoopPlanActionOutput(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"step": "plan", "content": "1. Write the file. 2. Confirm."}`,
		`{"step": "action", "function": "write_file", "input": {"path": "hello.py", "content": "print('hi')"}}`,
		`{"step": "output", "content": "Created hello.py."}`,
	}}
	loop, dispatched := newTestLoop(t, model, LoopConfig{})

	result, err := loop.Run(context.Background(), "create hello.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *dispatched != 1 {
		t.Errorf("expected exactly one dispatch, got %d", *dispatched)
	}
	if result.Output != "Created hello.py." || result.Iterations != 3 {
		t.Errorf("unexpected result: %+v", result)
	}

	obs := observationContents(t, loop)
	if len(obs) != 1 || obs[0] != "File 'hello.py' written successfully." {
		t.Errorf("expected the tool result as an observation, got %v", obs)
	}
}

func TestLoopMissingParameterBecomesObservation(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"step": "action", "function": "write_file", "input": {"path": "a.txt"}}`,
		`{"step": "output", "content": "giving up"}`,
	}}
	loop, dispatched := newTestLoop(t, model, LoopConfig{})

	if _, err := loop.Run(context.Background(), "write a file"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *dispatched != 0 {
		t.Errorf("invalid action must not reach the tool, dispatched %d times", *dispatched)
	}

	obs := observationContents(t, loop)
	if len(obs) != 1 || obs[0] != "Error: Missing required parameter 'content' for tool 'write_file'." {
		t.Errorf("unexpected observations: %v", obs)
	}
}

func TestLoopUnknownToolBecomesObservation(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"step": "action", "function": "fetch_url", "input": {"url": "http://example.com"}}`,
		`{"step": "output", "content": "done"}`,
	}}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	if _, err := loop.Run(context.Background(), "fetch something"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obs := observationContents(t, loop)
	if len(obs) != 1 || obs[0] != "Error: Tool 'fetch_url' not found." {
		t.Errorf("unexpected observations: %v", obs)
	}
}

func TestLoopParseErrorGetsCorrectiveObservation(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`I think we should start by planning.`,
		`{"step": "output", "content": "ok"}`,
	}}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	result, err := loop.Run(context.Background(), "plan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "ok" || result.Iterations != 2 {
		t.Errorf("unexpected result: %+v", result)
	}

	obs := observationContents(t, loop)
	if len(obs) != 1 {
		t.Fatalf("expected one corrective observation, got %v", obs)
	}
	if !strings.Contains(obs[0], "Error: Invalid response received:") {
		t.Errorf("corrective text missing: %q", obs[0])
	}
	if !strings.Contains(obs[0], "I think we should start by planning.") {
		t.Errorf("corrective text must echo the raw response: %q", obs[0])
	}
}

func TestLoopUnknownStepKindGetsCorrectiveObservation(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"step": "reflect", "content": "hmm"}`,
		`{"step": "output", "content": "ok"}`,
	}}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	if _, err := loop.Run(context.Background(), "go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obs := observationContents(t, loop)
	if len(obs) != 1 || !strings.Contains(obs[0], "unknown step type 'reflect'") {
		t.Errorf("unexpected observations: %v", obs)
	}
}

func TestLoopModelObserveStepContinuesWithoutDispatch(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"step": "observe", "content": "the file looks correct"}`,
		`{"step": "output", "content": "done"}`,
	}}
	loop, dispatched := newTestLoop(t, model, LoopConfig{})

	result, err := loop.Run(context.Background(), "check the file")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *dispatched != 0 {
		t.Errorf("a model-echoed observe step must not dispatch, got %d", *dispatched)
	}
	if result.Output != "done" || result.Iterations != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestLoopCeilingSynthesizesTimeoutOutput(t *testing.T) {
	responses := make([]string, 30)
	for i := range responses {
		responses[i] = `{"step": "plan", "content": "still planning"}`
	}
	model := &scriptedModel{responses: responses}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	result, err := loop.Run(context.Background(), "never finishes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reason != TerminatedByCeiling {
		t.Errorf("expected ceiling termination, got %s", result.Reason)
	}
	if result.Iterations != DefaultMaxIterations {
		t.Errorf("expected %d iterations, got %d", DefaultMaxIterations, result.Iterations)
	}
	want := "Reached maximum iterations (25). The task may be incomplete. Please review the steps or refine the request."
	if result.Output != want {
		t.Errorf("unexpected ceiling output: %q", result.Output)
	}

	last, _ := loop.Conversation().Last()
	var step protocol.Step
	if err := json.Unmarshal([]byte(last.Content), &step); err != nil || step.Kind != protocol.StepOutput {
		t.Errorf("expected a final output step in the conversation, got %q", last.Content)
	}
}

func TestLoopNonRetryableFailureTerminates(t *testing.T) {
	model := &scriptedModel{errs: map[int]error{
		0: &llm.AuthenticationError{ProviderError: llm.ProviderError{
			SDKError: llm.SDKError{Message: "invalid api key"}, Provider: "openrouter", StatusCode: 401,
		}},
	}}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	result, err := loop.Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reason != TerminatedByFailure {
		t.Errorf("expected failure termination, got %s", result.Reason)
	}
	if !strings.Contains(result.Output, "Agent failed to get a valid response from the language model") {
		t.Errorf("unexpected failure output: %q", result.Output)
	}
	if model.calls != 1 {
		t.Errorf("expected a single model call, got %d", model.calls)
	}
}

func TestLoopRetryableFailureContinues(t *testing.T) {
	model := &scriptedModel{
		responses: []string{
			"", // consumed by the error slot below
			`{"step": "output", "content": "recovered"}`,
		},
		errs: map[int]error{
			0: &llm.ServerError{ProviderError: llm.ProviderError{
				SDKError: llm.SDKError{Message: "internal server error"}, Provider: "openrouter", StatusCode: 500, Retryable: true,
			}},
		},
	}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	result, err := loop.Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reason != TerminatedByOutput || result.Output != "recovered" {
		t.Errorf("unexpected result: %+v", result)
	}

	obs := observationContents(t, loop)
	if len(obs) != 1 || !strings.Contains(obs[0], "Error: API Error encountered:") {
		t.Errorf("expected an API error observation, got %v", obs)
	}
}

func TestLoopEmptyCompletionContinues(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"   ",
		`{"step": "output", "content": "ok"}`,
	}}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	result, err := loop.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "ok" || result.Iterations != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
	obs := observationContents(t, loop)
	if len(obs) != 1 || !strings.Contains(obs[0], "LLM returned empty content") {
		t.Errorf("unexpected observations: %v", obs)
	}
}

func TestLoopResetsConversationBetweenRuns(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"step": "output", "content": "first"}`,
		`{"step": "output", "content": "second"}`,
	}}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	if _, err := loop.Run(context.Background(), "first query"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := loop.Run(context.Background(), "second query"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, msg := range loop.Conversation().Messages() {
		if strings.Contains(msg.Content, "first query") || strings.Contains(msg.Content, `"first"`) {
			t.Errorf("previous interaction leaked: %q", msg.Content)
		}
	}
	if msgs := loop.Conversation().Messages(); msgs[0].Role != RoleSystem {
		t.Error("conversation must still start with the system message")
	}
}

func TestLoopHonorsCancellation(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"step": "output", "content": "never reached"}`,
	}}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := loop.Run(ctx, "go")
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if result.Reason != TerminatedByCancel {
		t.Errorf("expected cancel termination, got %s", result.Reason)
	}
	if model.calls != 0 {
		t.Errorf("no model call should happen after cancellation, got %d", model.calls)
	}
}

func TestLoopEmitsLifecycleEvents(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"step": "plan", "content": "plan"}`,
		`{"step": "output", "content": "done"}`,
	}}
	loop, _ := newTestLoop(t, model, LoopConfig{})

	if _, err := loop.Run(context.Background(), "go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := map[EventKind]bool{}
	for {
		select {
		case ev := <-loop.Events():
			seen[ev.Kind] = true
			if ev.InteractionID == "" {
				t.Error("event missing interaction ID")
			}
		default:
			for _, kind := range []EventKind{EventInteractionStart, EventIteration, EventPlan, EventOutput, EventInteractionEnd} {
				if !seen[kind] {
					t.Errorf("missing event kind %s", kind)
				}
			}
			return
		}
	}
}
