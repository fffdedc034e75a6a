// Package worker implements the Worker Agent: a bounded tool-calling loop
// driving one LLM conversation per sub-task, with capability routing,
// textual tool-call-marker parsing fallback, outer retry, and state-machine
// discipline (§4.4 of the orchestration design; grounded on sub_agent.py's
// execute() loop, _parse_text_tool_calls(), and state transition table).
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/swarmcore/board"
	"github.com/kadirpekel/swarmcore/llms"
	"github.com/kadirpekel/swarmcore/observability"
	"github.com/kadirpekel/swarmcore/roles"
	"github.com/kadirpekel/swarmcore/tools"
)

// MaxIterations bounds the inner tool-calling loop per conversation attempt.
const MaxIterations = 20

// MaxOuterRetries is the number of whole-conversation retries after the
// inner loop exits without success.
const MaxOuterRetries = 2

// MaxConsecutiveToolErrors strips the tool list and asks the model to
// answer from its own knowledge once this many tool calls in a row fail.
const MaxConsecutiveToolErrors = 3

// GracefulStopTimeout is how long Stop waits for the loop to notice the
// stop flag before forcing Terminated.
const GracefulStopTimeout = 30 * time.Second

// Status is the worker's lifecycle state (§3 WorkerAgent).
type Status int

const (
	Idle Status = iota
	Running
	Completed
	Failed
	Terminated
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var validTransitions = map[Status][]Status{
	Idle:    {Running, Terminated},
	Running: {Completed, Failed, Terminated},
}

// InvalidTransitionError is returned when a caller attempts a transition
// not present in validTransitions.
type InvalidTransitionError struct{ From, To Status }

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("worker: invalid state transition %s -> %s", e.From, e.To)
}

// Inbox is the optional message-bus hook drained once per iteration;
// messages of kind "shutdown" set the stop flag, anything else is injected
// as system context (grounded on messaging.py's pub/sub envelope shape).
type Inbox interface {
	Drain() []InboxMessage
}

type InboxMessage struct {
	Kind    string // "shutdown" or "context"
	Content string
}

// Worker executes exactly one sub-task end to end.
type Worker struct {
	ID       string
	Role     roles.Role
	Client   llms.Client
	Registry *tools.ToolRegistry
	Inbox    Inbox

	// Tracer and Metrics are optional; nil disables instrumentation.
	Tracer  trace.Tracer
	Metrics *observability.Metrics

	ToolTimeout time.Duration

	mu          sync.Mutex
	status      Status
	stopReq     bool
	completedAt time.Time

	TokenUsage int
	ToolCalls  []tools.ToolResult
}

func New(id string, role roles.Role, client llms.Client, registry *tools.ToolRegistry) *Worker {
	return &Worker{ID: id, Role: role, Client: client, Registry: registry, ToolTimeout: 30 * time.Second}
}

func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Worker) setStatus(s Status) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status == s {
		return nil
	}
	if !contains(validTransitions[w.status], s) {
		return &InvalidTransitionError{From: w.status, To: s}
	}
	w.status = s
	if s == Completed || s == Failed || s == Terminated {
		w.completedAt = time.Now()
	}
	return nil
}

func contains(xs []Status, x Status) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Stop requests graceful termination; the caller should still await Run's
// return, this only flips the flag the loop checks each iteration.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopReq = true
	w.mu.Unlock()
}

// StopAndWait requests termination and blocks up to GracefulStopTimeout for
// Run to reach a terminal state on its own; if it hasn't, the worker is
// force-marked Terminated (§4.4: "stop() waits up to 30s for graceful exit;
// thereafter forces Terminated").
func (w *Worker) StopAndWait() {
	w.Stop()
	deadline := time.Now().Add(GracefulStopTimeout)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		terminal := w.status == Completed || w.status == Failed || w.status == Terminated
		w.mu.Unlock()
		if terminal {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	w.mu.Lock()
	w.status = Terminated
	w.completedAt = time.Now()
	w.mu.Unlock()
}

func (w *Worker) stopRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopReq
}

// Run executes the sub-task, producing a board.Result. It never returns a
// Go error for ordinary task failure, failures are reported inside the
// Result, matching the board's expectations.
func (w *Worker) Run(ctx context.Context, task board.SubTask, priorOutputs []string) board.Result {
	start := time.Now()

	if w.Tracer != nil {
		var span trace.Span
		ctx, span = w.Tracer.Start(ctx, "worker.run")
		defer span.End()
	}

	result := w.run(ctx, task, priorOutputs, start)
	w.Metrics.ObserveWorker(w.Role.Name, time.Since(start), !result.Success)
	return result
}

func (w *Worker) run(ctx context.Context, task board.SubTask, priorOutputs []string, start time.Time) board.Result {
	if err := w.setStatus(Running); err != nil {
		return board.Result{SubTaskID: task.ID, WorkerID: w.ID, Success: false, Error: err.Error()}
	}

	resolved := roles.Resolve(w.Role, w.Client.ModelID())
	systemPrompt := w.buildSystemPrompt(task, resolved)
	toolDefs := w.buildToolDefinitions(resolved.FunctionTools)

	messages := []llms.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: w.buildUserContent(task, priorOutputs)},
	}

	var lastErr string
	for attempt := 0; attempt <= MaxOuterRetries; attempt++ {
		if attempt > 0 {
			messages = append(messages, llms.Message{
				Role: "user",
				Content: fmt.Sprintf("[retry %d/%d] the previous attempt hit a problem: %s. try a different approach.",
					attempt, MaxOuterRetries, lastErr),
			})
		}

		output, usage, err := w.runInner(ctx, messages, toolDefs, resolved.CallConfig)
		w.TokenUsage += usage

		if err == nil {
			if setErr := w.setStatus(Completed); setErr != nil {
				return board.Result{SubTaskID: task.ID, WorkerID: w.ID, Success: false, Error: setErr.Error()}
			}
			return board.Result{
				SubTaskID: task.ID, WorkerID: w.ID, Success: true,
				Output: output, ExecutionTime: time.Since(start).Seconds(),
			}
		}
		if err == errTerminated {
			w.setStatus(Terminated)
			return board.Result{
				SubTaskID: task.ID, WorkerID: w.ID, Success: false,
				Error: "terminated", ExecutionTime: time.Since(start).Seconds(),
			}
		}
		lastErr = err.Error()
	}

	w.setStatus(Failed)
	return board.Result{
		SubTaskID: task.ID, WorkerID: w.ID, Success: false,
		Error: lastErr, ExecutionTime: time.Since(start).Seconds(),
	}
}

var errTerminated = fmt.Errorf("worker stopped")

// runInner drives the inner tool-calling loop for one conversation attempt.
func (w *Worker) runInner(ctx context.Context, messages []llms.Message, toolDefs []llms.ToolDefinition, cfg llms.CallConfig) (string, int, error) {
	history := append([]llms.Message{}, messages...)
	consecutiveErrors := 0
	tokensUsed := 0

	for iteration := 0; iteration < MaxIterations; iteration++ {
		if w.stopRequested() {
			return "", tokensUsed, errTerminated
		}
		if w.Inbox != nil {
			for _, msg := range w.Inbox.Drain() {
				if msg.Kind == "shutdown" {
					return "", tokensUsed, errTerminated
				}
				history = append(history, llms.Message{Role: "system", Content: msg.Content})
			}
		}

		resp, err := w.Client.Chat(ctx, history, toolDefs, cfg)
		if err != nil {
			return "", tokensUsed, fmt.Errorf("llm call failed: %w", err)
		}
		tokensUsed += resp.TokensUsed

		calls := resp.ToolCalls
		if len(calls) == 0 {
			if parsed := parseTextToolCalls(resp.Text); parsed != nil {
				calls = parsed
			}
		}

		if len(calls) == 0 {
			return resp.Text, tokensUsed, nil
		}

		history = append(history, llms.Message{Role: "assistant", Content: resp.Text, ToolCalls: calls})

		errorsThisTurn := 0
		for _, call := range calls {
			result, _ := w.Registry.InvokeTool(ctx, w.ID, call.Name, call.Arguments, w.ToolTimeout)
			w.ToolCalls = append(w.ToolCalls, result)
			if !result.Success {
				errorsThisTurn++
			}

			content := result.Content
			if content == "" && result.Output != nil {
				if b, err := json.Marshal(result.Output); err == nil {
					content = string(b)
				}
			}
			if !result.Success && content == "" {
				content = result.Error
			}
			history = append(history, llms.Message{Role: "tool", Content: content, ToolCallID: call.ID})
		}

		if errorsThisTurn > 0 {
			consecutiveErrors += errorsThisTurn
		} else {
			consecutiveErrors = 0
		}
		if consecutiveErrors >= MaxConsecutiveToolErrors {
			toolDefs = nil
			history = append(history, llms.Message{
				Role:    "system",
				Content: "tool calls have failed repeatedly; answer from your own knowledge instead.",
			})
		}
	}

	return "", tokensUsed, fmt.Errorf("max iterations (%d) reached without completion", MaxIterations)
}

func (w *Worker) buildSystemPrompt(task board.SubTask, resolved roles.ResolvedTools) string {
	var b strings.Builder
	b.WriteString(w.Role.SystemPrompt)
	b.WriteString("\n\n")
	b.WriteString("Current date: " + time.Now().Format("2006-01-02") + ". ")
	b.WriteString("This date takes priority over any assumption from your training data.\n")
	b.WriteString("Stay strictly on the subject of this sub-task; discard search results or tool output from unrelated domains.\n")
	b.WriteString("Preserve citations and sources from any upstream material you are given.\n")

	if resolved.CallConfig.EnableSearch {
		b.WriteString("Native web search is available to you automatically.\n")
	}
	if resolved.CallConfig.EnableCodeInterpreter {
		b.WriteString("Native code execution is available to you automatically.\n")
	}
	if len(resolved.FunctionTools) > 0 {
		b.WriteString("You may call these tools: " + strings.Join(resolved.FunctionTools, ", ") + ".\n")
	}
	return b.String()
}

func (w *Worker) buildUserContent(task board.SubTask, priorOutputs []string) string {
	var b strings.Builder
	b.WriteString(task.Content)
	if len(priorOutputs) > 0 {
		b.WriteString("\n\nContext from prior steps:\n")
		for _, o := range priorOutputs {
			b.WriteString("- " + o + "\n")
		}
	}
	return b.String()
}

func (w *Worker) buildToolDefinitions(names []string) []llms.ToolDefinition {
	defs := make([]llms.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool, err := w.Registry.GetTool(name)
		if err != nil {
			continue
		}
		info := tool.GetInfo()
		defs = append(defs, llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  paramSchema(info),
		})
	}
	return defs
}

func paramSchema(info tools.ToolInfo) map[string]interface{} {
	props := map[string]interface{}{}
	var required []string
	for _, p := range info.Parameters {
		prop := map[string]interface{}{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ----------------------------------------------------------------------------
// textual tool-call-marker parsing fallback (non-native models)
// ----------------------------------------------------------------------------

var (
	// DeepSeek-style marker: function<tool_sep>name\n```json\n{...}\n```<tool_call_end>
	deepseekToolCallRe = regexp.MustCompile(`(?s)function\s*[<\x{ff1c}][\s\S]*?tool[\s_\x{2581}]sep[\s\S]*?[>\x{ff1e}]\s*(\w+)\s*(?:` + "```" + `(?:json)?\s*)?(\{[\s\S]*?\})(?:\s*` + "```" + `)?`)
	// Plain JSON array in a fenced code block: [{"name": ..., "arguments": {...}}]
	jsonArrayToolCallRe = regexp.MustCompile("```(?:json)?\\s*(\\[[\\s\\S]*?\\])\\s*```")
)

// parseTextToolCalls recognizes tool-call markers some non-native models
// emit in plain content instead of a structured field.
func parseTextToolCalls(content string) []llms.ToolCall {
	if content == "" {
		return nil
	}

	var calls []llms.ToolCall
	for _, m := range deepseekToolCallRe.FindAllStringSubmatch(content, -1) {
		name, argsStr := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
			continue
		}
		calls = append(calls, llms.ToolCall{ID: "call_" + uuid.NewString()[:8], Name: name, Arguments: args})
	}
	if len(calls) > 0 {
		return calls
	}

	for _, m := range jsonArrayToolCallRe.FindAllStringSubmatch(content, -1) {
		var arr []struct {
			Name      string                 `json:"name"`
			Arguments map[string]interface{} `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(m[1]), &arr); err != nil {
			continue
		}
		for _, item := range arr {
			if item.Name == "" {
				continue
			}
			calls = append(calls, llms.ToolCall{ID: "call_" + uuid.NewString()[:8], Name: item.Name, Arguments: item.Arguments})
		}
	}
	if len(calls) == 0 {
		return nil
	}
	return calls
}
