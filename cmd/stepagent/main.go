// Command stepagent is an interactive coding agent REPL. Each line of input
// starts a fresh interaction: the model plans, invokes local tools, and
// reports a final result.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/forgeworks/stepagent/agentloop"
	"github.com/forgeworks/stepagent/config"
	"github.com/forgeworks/stepagent/llm"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	workDir := flag.String("workdir", "", "working directory for tools (default: current directory)")
	model := flag.String("model", "", "model override")
	flag.Parse()

	if err := run(*configPath, *workDir, *model); err != nil {
		fmt.Fprintf(os.Stderr, "stepagent: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, workDir, modelOverride string) error {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if modelOverride != "" {
		cfg.Model = modelOverride
	}
	if workDir != "" {
		cfg.WorkingDir = workDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	env := agentloop.NewLocalEnvironment(cfg.WorkingDir)
	reg := agentloop.NewRegistry()
	agentloop.RegisterCoreTools(reg, env, cfg.CommandTimeout())

	adapter, err := llm.NewGollmAdapter(cfg.Provider, cfg.APIKey, llm.WithModel(cfg.Model))
	if err != nil {
		return err
	}
	client := llm.NewClient(adapter)

	dispatcher := agentloop.NewDispatcher(reg, cfg.ToolOutputLimits, logger)
	prompt := agentloop.BuildSystemPrompt(reg, env, cfg.Model)
	emitter := agentloop.NewEventEmitter("", 0)
	loop := agentloop.NewLoop(client, dispatcher, prompt, agentloop.LoopConfig{
		Model:         cfg.Model,
		MaxIterations: cfg.MaxIterations,
	}, emitter, logger)

	go displayEvents(emitter.Events())
	defer emitter.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("stepagent ready (provider=%s model=%s workdir=%s). Type 'exit' or 'quit' to quit.\n",
		cfg.Provider, cfg.Model, env.WorkingDirectory())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("\nUser>> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			return nil
		}

		result, err := loop.Run(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("interaction failed", "error", err)
			continue
		}
		fmt.Printf("\n[FINAL OUTPUT]\n%s\n", result.Output)
	}
}

// displayEvents renders loop progress on stdout as it happens.
func displayEvents(events <-chan agentloop.Event) {
	for ev := range events {
		switch ev.Kind {
		case agentloop.EventIteration:
			fmt.Printf("\n--- Iteration %v/%v ---\n", ev.Data["iteration"], ev.Data["max"])
		case agentloop.EventPlan:
			fmt.Printf("[PLAN] %v\n", ev.Data["content"])
		case agentloop.EventActionStart:
			fmt.Printf("[TOOL] Calling: %v\n", ev.Data["function"])
		case agentloop.EventObservation:
			if content, ok := ev.Data["content"].(string); ok {
				fmt.Printf("[OBSERVATION] (%d chars)\n", len(content))
			}
		case agentloop.EventParseError:
			fmt.Printf("[PARSE ERROR] %v\n", ev.Data["reason"])
		case agentloop.EventCeiling:
			fmt.Printf("[AGENT] Reached maximum iterations (%v). Aborting interaction.\n", ev.Data["max"])
		case agentloop.EventError:
			fmt.Printf("[ERROR] %v\n", ev.Data["error"])
		}
	}
}
