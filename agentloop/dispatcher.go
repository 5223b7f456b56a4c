package agentloop

import (
	"fmt"
	"log/slog"
	"time"
)

// Dispatcher validates and executes tool calls. Every dispatch returns plain
// text: schema violations and implementation faults are converted to
// "Error..." strings for the model, never surfaced as errors or panics, so a
// tool fault can never crash the loop.
type Dispatcher struct {
	registry *Registry
	limits   map[string]int
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given registry. limits
// overrides per-tool output caps; nil uses the defaults. logger may be nil.
func NewDispatcher(registry *Registry, limits map[string]int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		limits:   limits,
		logger:   logger,
	}
}

// Registry exposes the dispatcher's tool registry, mainly so the system
// prompt builder can render the catalogue from the same source of truth.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs one tool call end to end: validate, invoke, contain faults,
// truncate. Exactly one tool invocation happens per call, and only when
// validation passes.
func (d *Dispatcher) Dispatch(name string, input map[string]interface{}) string {
	if err := d.registry.Validate(name, input); err != nil {
		d.logger.Warn("tool call rejected", "tool", name, "reason", err.Error())
		return err.Error()
	}

	spec, _ := d.registry.Get(name)

	start := time.Now()
	output := d.invoke(spec, input)
	d.logger.Debug("tool executed",
		"tool", name,
		"duration", time.Since(start),
		"output_len", len(output))

	return TruncateToolOutput(output, name, d.limits)
}

// invoke calls the tool implementation with panic containment. A panicking
// tool is reported to the model as a textual execution error.
func (d *Dispatcher) invoke(spec ToolSpec, input map[string]interface{}) (output string) {
	defer func() {
		if cause := recover(); cause != nil {
			d.logger.Warn("tool panicked", "tool", spec.Name, "cause", cause)
			output = fmt.Sprintf("Error executing tool '%s': %v", spec.Name, cause)
		}
	}()
	return spec.Run(input)
}
