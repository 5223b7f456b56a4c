// Package agentloop implements a single-agent control loop that drives an
// LLM through a structured plan/act/observe/output protocol.
//
// The model emits one JSON Step per round-trip. Action steps are validated
// against a tool registry and dispatched against an execution environment;
// everything the model needs to see next (tool output, validation failures,
// corrective notices) flows back into the conversation as observation steps.
// Interactions terminate on the model's output step, on a non-retryable
// transport failure, or at a hard iteration ceiling.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Loop: the per-interaction state machine owning the conversation and
//     iteration budget.
//   - Conversation: the append-only message log, reset to the system prompt
//     for each new user query.
//   - Registry / Dispatcher: tool schemas, shallow input validation, and
//     fault-contained dispatch with output truncation.
//   - ExecutionEnvironment: abstraction for where tools run; the default is
//     the local filesystem and shell.
//   - EventEmitter: typed event stream for host application display.
//
// # Quick Start
//
//	env := agentloop.NewLocalEnvironment("")
//	reg := agentloop.NewRegistry()
//	agentloop.RegisterCoreTools(reg, env, 60*time.Second)
//
//	dispatcher := agentloop.NewDispatcher(reg, nil, nil)
//	prompt := agentloop.BuildSystemPrompt(reg, env, cfg.Model)
//	loop := agentloop.NewLoop(client, dispatcher, prompt, agentloop.LoopConfig{Model: cfg.Model}, nil, nil)
//
//	result, err := loop.Run(ctx, "Create a hello.py file")
package agentloop
