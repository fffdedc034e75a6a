// Command orchestrator drives one planner-produced task plan
// through the Task Board, Wave Executor, Quality Gate, and Aggregator.
//
// Usage:
//
//	orchestrator run --config config.yaml --plan plan.json
//	orchestrator validate --plan plan.json
//	orchestrator roles
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/swarmcore/aggregate"
	"github.com/kadirpekel/swarmcore/config"
	"github.com/kadirpekel/swarmcore/llms"
	"github.com/kadirpekel/swarmcore/observability"
	"github.com/kadirpekel/swarmcore/orchestrator"
	"github.com/kadirpekel/swarmcore/quality"
	"github.com/kadirpekel/swarmcore/roles"
	"github.com/kadirpekel/swarmcore/tools"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run a planner-produced plan file to completion."`
	Validate ValidateCmd `cmd:"" help:"Validate a plan file without executing it."`
	Roles    RolesCmd    `cmd:"" help:"Print the built-in role table."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// RunCmd executes one job end to end.
type RunCmd struct {
	Config string `short:"c" required:"" help:"Path to the orchestrator YAML config." type:"path"`
	Plan   string `short:"p" required:"" help:"Path to the planner's JSON plan file." type:"path"`
	TaskID string `help:"Opaque job id used only for event logging." default:"job-1"`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := config.LoadAppConfig(c.Config)
	if err != nil {
		return err
	}

	plan, err := loadPlan(c.Plan)
	if err != nil {
		return err
	}

	clients, defaultClient, err := buildClients(ctx, cfg)
	if err != nil {
		return err
	}

	registry, err := tools.NewToolRegistryWithConfig(&cfg.Tools)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	var reviewer *quality.Reviewer
	if cfg.Quality.Enabled && defaultClient != nil {
		reviewer = quality.New(defaultClient, quality.Config{
			Threshold:         cfg.Quality.Threshold,
			MaxRetryOnFailure: cfg.Quality.MaxRetryOnFailure,
		})
	}

	metrics, err := observability.NewMetrics(observability.MetricsConfig{
		Enabled: cfg.Observability.MetricsEnabled, Addr: cfg.Observability.MetricsAddr,
	})
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	if metrics != nil {
		go func() {
			if err := metrics.ListenAndServeMetrics(cfg.Observability.MetricsAddr); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	tp, err := observability.InitTracer(ctx, observability.TracerConfig{
		Enabled: cfg.Observability.TracingEnabled, EndpointURL: cfg.Observability.OTLPEndpoint,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}

	result, err := orchestrator.Run(ctx, c.TaskID, plan, orchestrator.Config{
		LLMClients:          clients,
		ToolRegistry:        registry,
		Reviewer:            reviewer,
		MaxConcurrent:       cfg.Execution.MaxConcurrent,
		AggregationStrategy: aggregate.Strategy(cfg.Execution.AggregationStrategy),
		OutputType:          aggregate.OutputType(cfg.Execution.OutputType),
		AgentTimeout:        cfg.Execution.AgentTimeout(),
		Metrics:             metrics,
		Tracer:              observability.Tracer(tp, "swarmcore/orchestrator"),
		OnEvent: func(e orchestrator.Event) {
			slog.Info("event", "kind", e.Kind, "step", e.StepID, "status", e.Status, "detail", e.Detail)
		},
	})
	if err != nil {
		return fmt.Errorf("orchestration failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ValidateCmd checks a plan file's shape and dependency graph without
// spawning any workers.
type ValidateCmd struct {
	Plan string `short:"p" required:"" help:"Path to the planner's JSON plan file." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	plan, err := loadPlan(c.Plan)
	if err != nil {
		return err
	}

	ids := make(map[string]bool, len(plan.ExecutionFlow.Steps))
	for id := range plan.ExecutionFlow.Steps {
		ids[id] = true
	}

	var warnings []string
	for id, step := range plan.ExecutionFlow.Steps {
		for _, dep := range step.Dependencies {
			if !ids[dep] {
				warnings = append(warnings, fmt.Sprintf("step %q references unknown dependency %q (will be dropped)", id, dep))
			}
		}
	}

	fmt.Printf("plan %q: %d steps, %d objectives\n", plan.RefinedTask, len(plan.ExecutionFlow.Steps), len(plan.KeyObjectives))
	if len(warnings) == 0 {
		fmt.Println("no issues found")
		return nil
	}
	for _, w := range warnings {
		fmt.Println("warning:", w)
	}
	return nil
}

// RolesCmd prints every predefined role and its default model.
type RolesCmd struct{}

func (c *RolesCmd) Run(cli *CLI) error {
	all := roles.All()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := all[name]
		fmt.Printf("%-18s model=%-22s multimodal=%-5v tools=%v\n", r.Name, r.DefaultModel.ModelID, r.Multimodal, r.AllowedTools)
	}
	return nil
}

func loadPlan(path string) (orchestrator.Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return orchestrator.Plan{}, fmt.Errorf("failed to read plan %s: %w", path, err)
	}
	var plan orchestrator.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return orchestrator.Plan{}, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	return plan, nil
}

// buildClients constructs one llms.Client per configured provider and
// returns the map plus a default pick for the quality gate reviewer.
func buildClients(ctx context.Context, cfg *config.AppConfig) (map[string]llms.Client, llms.Client, error) {
	reg := llms.NewRegistry()
	clients := make(map[string]llms.Client, len(cfg.LLMs))
	var firstClient llms.Client

	for name, providerCfg := range cfg.LLMs {
		providerCfg := providerCfg
		client, err := reg.CreateFromConfig(ctx, name, &providerCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("llm %q: %w", name, err)
		}
		clients[name] = client
		if firstClient == nil {
			firstClient = client
		}
	}

	if def, ok := clients["default"]; ok {
		return clients, def, nil
	}
	return clients, firstClient, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("orchestrator"),
		kong.Description("Multi-agent task orchestration engine"),
		kong.UsageOnError(),
	)

	setupLogging(cli.LogLevel)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
