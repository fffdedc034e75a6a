// Package orchestrator glues the external planner's JSON plan to the Task
// Board, drives the Wave Executor, applies the Quality Gate after each
// worker completion, and runs the Aggregator once the board is fully
// terminal (§2 System Overview and §6 External Interfaces; grounded on
// adaptive_orchestrator.py's set_callbacks/orchestrate pattern).
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/swarmcore/aggregate"
	"github.com/kadirpekel/swarmcore/board"
	"github.com/kadirpekel/swarmcore/llms"
	"github.com/kadirpekel/swarmcore/observability"
	"github.com/kadirpekel/swarmcore/quality"
	"github.com/kadirpekel/swarmcore/roles"
	"github.com/kadirpekel/swarmcore/tools"
	"github.com/kadirpekel/swarmcore/wave"
	"github.com/kadirpekel/swarmcore/worker"
)

// Step is one entry of the planner's execution_flow.steps map (§6).
type Step struct {
	StepID         string   `json:"step_id"`
	StepNumber     int      `json:"step_number"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	AgentType      string   `json:"agent_type"`
	Dependencies   []string `json:"dependencies"`
	ExpectedOutput string   `json:"expected_output"`
}

// Plan is the external planner's output (§6 Planner input shape).
type Plan struct {
	RefinedTask    string          `json:"refined_task"`
	KeyObjectives  []string        `json:"key_objectives"`
	ExecutionFlow  struct {
		Steps map[string]Step `json:"steps"`
	} `json:"execution_flow"`
}

// EventKind enumerates the progress events emitted to the host callback
// (§6 Progress events).
type EventKind string

const (
	EventTaskCreated      EventKind = "task_created"
	EventTaskProgress     EventKind = "task_progress"
	EventStepStatusChange EventKind = "step_status_changed"
	EventStepReviewed     EventKind = "step_reviewed"
	EventAgentCreated     EventKind = "agent_created"
	EventAgentUpdated     EventKind = "agent_updated"
	EventAgentRemoved     EventKind = "agent_removed"
	EventAgentStream      EventKind = "agent_stream"
	EventTaskCompleted    EventKind = "task_completed"
	EventTaskDeleted      EventKind = "task_deleted"
)

// Event is one progress notification forwarded to the host-provided
// callback; the core does not persist these.
type Event struct {
	Kind            EventKind
	StepID          string
	ProgressPercent float64
	Status          string
	Detail          string
}

// Callback receives progress events; nil is a valid no-op.
type Callback func(Event)

// Config bundles the dependencies the orchestrator needs for one job.
type Config struct {
	LLMClients    map[string]llms.Client // model id -> client, at least a default entry
	ToolRegistry  *tools.ToolRegistry
	Reviewer      *quality.Reviewer
	MaxConcurrent int64
	AggregationStrategy aggregate.Strategy
	OutputType          aggregate.OutputType
	OnEvent             Callback

	// AgentTimeout is the outer wall-time cap applied to each worker's
	// conversation for one sub-task (§4.4 agent_timeout); zero means
	// unbounded.
	AgentTimeout time.Duration

	// Metrics and Tracer are optional; nil disables instrumentation.
	Metrics *observability.Metrics
	Tracer  trace.Tracer
}

// JobResult is the final artifact an orchestrated job produces.
type JobResult struct {
	TaskID      string
	Aggregation aggregate.Result
	Summary     Summary
}

// Summary mirrors §6's Aggregator output "summary" object.
type Summary struct {
	Total             int
	Completed         int
	Failed            int
	Missing           int
	SuccessRatePercent float64
}

// Run takes a validated plan, publishes it to a fresh Task Board, drives
// waves to completion, and aggregates. taskID is an opaque job identity
// used only for event emission.
func Run(ctx context.Context, taskID string, plan Plan, cfg Config) (JobResult, error) {
	emit := cfg.OnEvent
	if emit == nil {
		emit = func(Event) {}
	}

	steps, roleHints := sanitizePlan(plan)
	b := board.New()
	subtasks := toSubTasks(steps)
	b.PublishTasks(subtasks)
	emit(Event{Kind: EventTaskCreated, Detail: fmt.Sprintf("%d steps published", len(subtasks))})

	var mu sync.Mutex
	var allResults []board.Result
	retryAttempts := map[string]int{}

	agentFactory := func(ctx context.Context, task board.SubTask) board.Result {
		role := roles.For(task.RoleHint)
		client := pickClient(cfg.LLMClients, role)
		w := worker.New(task.ID+"#"+role.Name, role, client, cfg.ToolRegistry)
		w.Tracer = cfg.Tracer
		w.Metrics = cfg.Metrics

		if cfg.AgentTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.AgentTimeout)
			defer cancel()
		}

		emit(Event{Kind: EventAgentCreated, StepID: task.ID, Status: "running"})
		result := w.Run(ctx, task, priorOutputTexts(b, task.Dependencies))
		emit(Event{Kind: EventAgentRemoved, StepID: task.ID, Status: w.Status().String()})

		if result.Success && cfg.Reviewer != nil {
			result = applyQualityGate(ctx, cfg.Reviewer, b, task, role, client, cfg.ToolRegistry, result, retryAttempts, emit)
		}

		mu.Lock()
		allResults = append(allResults, result)
		mu.Unlock()

		emit(Event{Kind: EventStepStatusChange, StepID: task.ID, Status: statusLabel(result)})
		return result
	}

	exec := &wave.Executor{
		Board:         b,
		AgentFactory:  agentFactory,
		MaxConcurrent: cfg.MaxConcurrent,
		Metrics:       cfg.Metrics,
		OnWave: func(s wave.Stats) {
			emit(Event{
				Kind:            EventTaskProgress,
				ProgressPercent: progressPercent(b),
				Status:          fmt.Sprintf("wave %d: %d spawned, %d completed, %d failed", s.WaveIndex, s.Spawned, s.Completed, s.Failed),
			})
		},
	}
	exec.Run(ctx)

	aggPlan := aggregate.Plan{SubTasks: subtasks}
	strategy := cfg.AggregationStrategy
	if strategy == "" {
		strategy = aggregate.MajorityVote
	}
	outType := cfg.OutputType
	if outType == "" {
		outType = aggregate.Report
	}

	aggResult := aggregate.Aggregate(aggPlan, allResults, strategy, outType, roleHints)
	summary := buildSummary(subtasks, aggResult)

	emit(Event{Kind: EventTaskCompleted, Status: fmt.Sprintf("%d/%d completed", summary.Completed, summary.Total)})

	return JobResult{TaskID: taskID, Aggregation: aggResult, Summary: summary}, nil
}

// applyQualityGate runs the reviewer and, on Retry, re-runs the worker
// against the same sub-task and dependencies, up to the reviewer's retry
// budget (§4.7); once the budget is exhausted the gate downgrades to
// AcceptWithWarning and the last result stands.
func applyQualityGate(ctx context.Context, reviewer *quality.Reviewer, b *board.Board, task board.SubTask, role roles.Role, client llms.Client, registry *tools.ToolRegistry, result board.Result, retryAttempts map[string]int, emit Callback) board.Result {
	priorOutputs := priorOutputTexts(b, task.Dependencies)

	for {
		output, _ := result.Output.(string)
		attempt := retryAttempts[task.ID]
		report := reviewer.Assess(ctx, task.Content, role.Name, output, priorOutputs)
		review := reviewer.Review(task.ID, report, attempt)

		emit(Event{Kind: EventStepReviewed, StepID: task.ID, Status: string(review.Action), Detail: review.Reason})

		if review.Action != quality.Retry {
			return result
		}

		retryAttempts[task.ID] = attempt + 1
		w := worker.New(fmt.Sprintf("%s#retry%d", task.ID, attempt+1), role, client, registry)
		result = w.Run(ctx, task, priorOutputs)
		if !result.Success {
			return result
		}
	}
}

func priorOutputTexts(b *board.Board, deps []string) []string {
	var out []string
	for _, dep := range deps {
		entry, ok := b.Get(dep)
		if !ok || entry.Result == nil || !entry.Result.Success {
			continue
		}
		if text, ok := entry.Result.Output.(string); ok {
			out = append(out, text)
		}
	}
	return out
}

func pickClient(clients map[string]llms.Client, role roles.Role) llms.Client {
	if c, ok := clients[role.DefaultModel.ModelID]; ok {
		return c
	}
	if c, ok := clients["default"]; ok {
		return c
	}
	for _, c := range clients {
		return c
	}
	return nil
}

// sanitizePlan validates dependency ids and silently drops unknown ones
// (§6: "unknown ids are silently dropped").
func sanitizePlan(plan Plan) ([]Step, map[string]string) {
	steps := make([]Step, 0, len(plan.ExecutionFlow.Steps))
	roleHints := make(map[string]string, len(plan.ExecutionFlow.Steps))

	for _, s := range plan.ExecutionFlow.Steps {
		var deps []string
		for _, d := range s.Dependencies {
			if _, ok := plan.ExecutionFlow.Steps[d]; ok {
				deps = append(deps, d)
			}
		}
		s.Dependencies = deps
		steps = append(steps, s)
		roleHints[s.StepID] = s.AgentType
	}
	return steps, roleHints
}

func toSubTasks(steps []Step) []board.SubTask {
	out := make([]board.SubTask, 0, len(steps))
	for _, s := range steps {
		out = append(out, board.SubTask{
			ID:           s.StepID,
			Content:      s.Description,
			RoleHint:     s.AgentType,
			Dependencies: s.Dependencies,
			Priority:     -s.StepNumber, // earlier planner steps get higher priority by default
		})
	}
	return out
}

func statusLabel(r board.Result) string {
	if r.Success {
		return "completed"
	}
	return "failed"
}

func progressPercent(b *board.Board) float64 {
	counts := b.Status()
	total := 0
	terminal := 0
	for status, n := range counts {
		total += n
		switch status {
		case board.Completed, board.Failed, board.Blocked:
			terminal += n
		}
	}
	if total == 0 {
		return 0
	}
	return float64(terminal) / float64(total) * 100
}

func buildSummary(subtasks []board.SubTask, agg aggregate.Result) Summary {
	total := len(subtasks)
	completed := 0
	failed := 0
	for _, r := range agg.Resolved {
		if r.Success {
			completed++
		} else {
			failed++
		}
	}
	missing := len(agg.MissingSubtasks)

	rate := 0.0
	if total > 0 {
		rate = float64(completed) / float64(total) * 100
	}

	return Summary{Total: total, Completed: completed, Failed: failed, Missing: missing, SuccessRatePercent: rate}
}
