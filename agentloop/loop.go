package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/forgeworks/stepagent/llm"
	"github.com/forgeworks/stepagent/protocol"
)

// DefaultMaxIterations caps model round-trips per interaction.
const DefaultMaxIterations = 25

// defaultTemperature keeps sampling conservative for reliable tool use.
const defaultTemperature = 0.5

// ModelClient is the completion surface the loop needs. *llm.Client
// implements it; tests substitute a scripted client.
type ModelClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// TerminationReason records how an interaction ended.
type TerminationReason string

const (
	// TerminatedByOutput means the model emitted a final output step.
	TerminatedByOutput TerminationReason = "output"
	// TerminatedByCeiling means the iteration ceiling was reached.
	TerminatedByCeiling TerminationReason = "ceiling"
	// TerminatedByFailure means a non-retryable transport failure ended the
	// interaction.
	TerminatedByFailure TerminationReason = "failure"
	// TerminatedByCancel means the context was cancelled between iterations.
	TerminatedByCancel TerminationReason = "cancelled"
)

// Result summarizes one completed interaction.
type Result struct {
	InteractionID string
	Output        string
	Iterations    int
	Reason        TerminationReason
}

// LoopConfig holds per-loop tunables.
type LoopConfig struct {
	Model         string
	MaxIterations int
	Temperature   float64
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
	}
	return c
}

// Loop drives one conversation through the plan/act/observe/output protocol.
// It owns the conversation; the model client, dispatcher, and emitter are
// shared dependencies. A Loop handles one interaction at a time.
type Loop struct {
	client       ModelClient
	dispatcher   *Dispatcher
	conversation *Conversation
	emitter      *EventEmitter
	logger       *slog.Logger
	config       LoopConfig
}

// NewLoop creates a Loop whose conversation starts with the given system
// prompt. emitter and logger may be nil.
func NewLoop(client ModelClient, dispatcher *Dispatcher, systemPrompt string, config LoopConfig, emitter *EventEmitter, logger *slog.Logger) *Loop {
	if emitter == nil {
		emitter = NewEventEmitter("", 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		client:       client,
		dispatcher:   dispatcher,
		conversation: NewConversation(systemPrompt),
		emitter:      emitter,
		logger:       logger,
		config:       config.withDefaults(),
	}
}

// Conversation exposes the loop's message log, mainly for inspection after an
// interaction.
func (l *Loop) Conversation() *Conversation {
	return l.conversation
}

// Events returns the loop's event channel.
func (l *Loop) Events() <-chan Event {
	return l.emitter.Events()
}

// Run executes one full interaction for a user query. The conversation is
// reset to the system message first, so consecutive interactions on the same
// Loop never leak history.
//
// Every interaction ends with exactly one final output: the model's own, a
// synthesized ceiling notice, or a hard-failure notice. The error return is
// non-nil only for cancellation.
func (l *Loop) Run(ctx context.Context, userQuery string) (*Result, error) {
	interactionID := uuid.New().String()
	l.emitter.SetInteractionID(interactionID)

	l.conversation.Reset()
	l.conversation.Append(UserMessage(userQuery))

	l.emitter.Emit(EventInteractionStart, map[string]interface{}{"query": userQuery})
	l.logger.Info("interaction started", "interaction_id", interactionID)

	result := &Result{InteractionID: interactionID}

	for iteration := 1; iteration <= l.config.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			result.Iterations = iteration - 1
			result.Reason = TerminatedByCancel
			l.finish(result)
			return result, err
		}

		result.Iterations = iteration
		l.emitter.Emit(EventIteration, map[string]interface{}{
			"iteration": iteration,
			"max":       l.config.MaxIterations,
		})

		raw, err := l.complete(ctx)
		if err != nil {
			if done := l.handleTransportFailure(err, result); done {
				l.finish(result)
				return result, nil
			}
			continue
		}

		if strings.TrimSpace(raw) == "" {
			l.observe("Error: LLM returned empty content. Please try again.")
			l.emitter.Emit(EventError, map[string]interface{}{"error": "empty completion"})
			continue
		}

		// The raw text goes into history verbatim so the model can see any
		// extra prose it emitted around the JSON object.
		l.conversation.Append(AssistantMessage(raw))

		step, err := protocol.Parse(raw)
		if err != nil {
			parseErr, ok := err.(*protocol.ParseError)
			if !ok {
				parseErr = &protocol.ParseError{Raw: raw, Reason: err.Error()}
			}
			l.logger.Warn("unparseable model response", "interaction_id", interactionID, "reason", parseErr.Reason)
			l.emitter.Emit(EventParseError, map[string]interface{}{"reason": parseErr.Reason})
			l.observe(parseErr.Corrective())
			continue
		}

		l.logger.Debug("model step", "interaction_id", interactionID, "iteration", iteration, "step", string(step.Kind))

		switch step.Kind {
		case protocol.StepPlan:
			l.emitter.Emit(EventPlan, map[string]interface{}{"content": step.Content})

		case protocol.StepAction:
			l.runAction(step)

		case protocol.StepObserve:
			// The model narrated its own analysis; nothing to dispatch.
			l.emitter.Emit(EventObservation, map[string]interface{}{"content": step.Content, "source": "model"})

		case protocol.StepOutput:
			l.emitter.Emit(EventOutput, map[string]interface{}{"content": step.Content})
			result.Output = step.Content
			result.Reason = TerminatedByOutput
			l.finish(result)
			return result, nil

		default:
			l.observe(fmt.Sprintf(
				"Error: You provided an unknown step type '%s'. Allowed steps are 'plan', 'action', 'output'. "+
					"Please respond with a valid step in the correct JSON format.", step.Kind))
		}
	}

	l.emitter.Emit(EventCeiling, map[string]interface{}{"max": l.config.MaxIterations})
	result.Reason = TerminatedByCeiling
	result.Output = fmt.Sprintf(
		"Reached maximum iterations (%d). The task may be incomplete. Please review the steps or refine the request.",
		l.config.MaxIterations)

	// Avoid a double output if the model's last message already was one.
	if !l.lastMessageIsOutput() {
		l.conversation.Append(AssistantMessage(protocol.Output(result.Output).Encode()))
	}
	l.finish(result)
	return result, nil
}

// complete performs one model round-trip over the current conversation.
func (l *Loop) complete(ctx context.Context) (string, error) {
	messages := make([]llm.Message, 0, l.conversation.Len())
	for _, msg := range l.conversation.Messages() {
		messages = append(messages, llm.Message{Role: llm.Role(msg.Role), Content: msg.Content})
	}

	temperature := l.config.Temperature
	resp, err := l.client.Complete(ctx, llm.Request{
		Model:       l.config.Model,
		Messages:    messages,
		Temperature: &temperature,
		JSONOnly:    true,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// runAction dispatches the step's tool call and appends the resulting
// observation. Exactly one dispatch happens per action step.
func (l *Loop) runAction(step protocol.Step) {
	l.emitter.Emit(EventActionStart, map[string]interface{}{
		"function": step.Function,
		"content":  step.Content,
	})

	output := l.dispatcher.Dispatch(step.Function, step.Input)

	l.emitter.Emit(EventActionEnd, map[string]interface{}{
		"function":   step.Function,
		"output_len": len(output),
	})
	l.observe(output)
}

// observe appends an observation step to the conversation as an assistant
// message, mirroring how tool results and corrective notices flow back to
// the model.
func (l *Loop) observe(content string) {
	l.conversation.Append(AssistantMessage(protocol.Observation(content).Encode()))
	l.emitter.Emit(EventObservation, map[string]interface{}{"content": content})
}

// handleTransportFailure decides whether a completion error ends the
// interaction. Retries already happened inside the client, so a retryable
// error here means retries were exhausted: it becomes an error observation
// and the loop keeps going. Non-retryable failures terminate with a failure
// output.
func (l *Loop) handleTransportFailure(err error, result *Result) bool {
	l.emitter.Emit(EventError, map[string]interface{}{"error": err.Error()})

	if llm.IsRetryable(err) {
		l.logger.Warn("model call failed, continuing", "error", err)
		l.observe(fmt.Sprintf("Error: API Error encountered: %v. The request may need to be retried or modified.", err))
		return false
	}

	l.logger.Error("model call failed permanently", "error", err)
	result.Reason = TerminatedByFailure
	result.Output = fmt.Sprintf("Agent failed to get a valid response from the language model: %v", err)
	l.conversation.Append(AssistantMessage(protocol.Output(result.Output).Encode()))
	return true
}

// lastMessageIsOutput reports whether the newest assistant message already
// encodes an output step.
func (l *Loop) lastMessageIsOutput() bool {
	last, ok := l.conversation.Last()
	if !ok || last.Role != RoleAssistant {
		return false
	}
	var step protocol.Step
	if err := json.Unmarshal([]byte(last.Content), &step); err != nil {
		return false
	}
	return step.Kind == protocol.StepOutput
}

func (l *Loop) finish(result *Result) {
	l.logger.Info("interaction finished",
		"interaction_id", result.InteractionID,
		"iterations", result.Iterations,
		"reason", string(result.Reason))
	l.emitter.Emit(EventInteractionEnd, map[string]interface{}{
		"iterations": result.Iterations,
		"reason":     string(result.Reason),
	})
}
