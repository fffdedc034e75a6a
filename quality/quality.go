// Package quality implements the Quality Gate Reviewer: after a worker
// completes successfully, it may invoke the LLM to score the output and
// decide whether to accept, retry, or downgrade to an accepted-with-warning
// state (§4.7 of the orchestration design; grounded on
// core/quality_assurance.py's assess_quality prompt and scoring thresholds).
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/swarmcore/llms"
)

// Level is the categorical bucket a numeric score falls into.
type Level string

const (
	Excellent Level = "excellent"
	Good      Level = "good"
	Acceptable Level = "acceptable"
	Poor      Level = "poor"
	LevelFailed Level = "failed"
)

func levelFor(score float64) Level {
	switch {
	case score >= 9:
		return Excellent
	case score >= 7:
		return Good
	case score >= 5:
		return Acceptable
	case score >= 3:
		return Poor
	default:
		return LevelFailed
	}
}

// Issue is one problem the reviewer found in the output.
type Issue struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // high | medium | low
}

// Report is the numeric/categorical verdict on one worker's output.
type Report struct {
	Score       float64            `json:"score"`
	Level       Level              `json:"level"`
	Dimensions  map[string]float64 `json:"dimensions"`
	Issues      []Issue            `json:"issues"`
	Suggestions []string           `json:"suggestions"`
	Passed      bool               `json:"passed"`
}

// Action is what the executor should do in response to a Report.
type Action string

const (
	Accept            Action = "accept"
	Retry             Action = "retry"
	AcceptWithWarning Action = "accept_with_warning"
)

// Adjustment is a directive a ReviewResult can carry. Review never fills
// ReviewResult.Adjustments, and the orchestrator does not apply adjustments
// to the Task Board.
type Adjustment struct {
	Kind       string // "insert_step" | "raise_priority"
	SubTaskID  string
	Priority   int
	NewStepContent string
	NewStepRole    string
}

// ReviewResult is the reviewer's final decision for one sub-task attempt.
type ReviewResult struct {
	SubTaskID   string
	Score       float64
	Action      Action
	Reason      string
	Adjustments []Adjustment
	Attempt     int
}

// Config tunes the gate's thresholds.
type Config struct {
	Threshold         float64 // default 6.0
	MaxRetryOnFailure int     // default 2
}

func (c *Config) setDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 6.0
	}
	if c.MaxRetryOnFailure == 0 {
		c.MaxRetryOnFailure = 2
	}
}

// Reviewer scores worker output against task description, prior-step
// outputs, and agent role.
type Reviewer struct {
	Client llms.Client
	Config Config
}

func New(client llms.Client, cfg Config) *Reviewer {
	cfg.setDefaults()
	return &Reviewer{Client: client, Config: cfg}
}

// Assess scores the given output. Exceptions inside scoring are swallowed
// (fail-open): a parse or call failure returns a neutral Acceptable report
// rather than propagating an error, so one reviewer hiccup never blocks a
// job (§4.7 "Exceptions in the reviewer are swallowed").
func (r *Reviewer) Assess(ctx context.Context, taskDescription, agentRole, output string, priorOutputs []string) Report {
	prompt := buildAssessmentPrompt(taskDescription, agentRole, output, priorOutputs)

	resp, err := r.Client.Chat(ctx, []llms.Message{{Role: "user", Content: prompt}}, nil, llms.CallConfig{})
	if err != nil {
		return fallbackReport()
	}

	report, err := parseAssessment(resp.Text, r.Config.Threshold)
	if err != nil {
		return fallbackReport()
	}
	return report
}

// Review turns a Report into a ReviewResult, applying the retry budget and
// fail-open downgrade policy (§4.7).
func (r *Reviewer) Review(subTaskID string, report Report, attempt int) ReviewResult {
	if report.Passed {
		return ReviewResult{SubTaskID: subTaskID, Score: report.Score, Action: Accept, Reason: "score meets threshold", Attempt: attempt}
	}
	if attempt < r.Config.MaxRetryOnFailure {
		return ReviewResult{SubTaskID: subTaskID, Score: report.Score, Action: Retry, Reason: "score below threshold, retrying", Attempt: attempt}
	}
	return ReviewResult{
		SubTaskID: subTaskID, Score: report.Score, Action: AcceptWithWarning,
		Reason: "retry budget exhausted, accepting to avoid blocking the job", Attempt: attempt,
	}
}

func buildAssessmentPrompt(taskDescription, agentRole, output string, priorOutputs []string) string {
	content := output
	if len(content) > 4000 {
		content = content[:4000]
	}

	var ctx strings.Builder
	for _, p := range priorOutputs {
		ctx.WriteString("- " + p + "\n")
	}

	return fmt.Sprintf(`You are a quality assessor. Score the following agent output.

Task: %s
Agent role: %s
Prior-step context:
%s

Output to assess (content length %d characters):
%s

Score six dimensions 1-10: accuracy, completeness, relevance, clarity, structure, usefulness.
For short content (<500 characters), do not penalize brevity alone, focus on whether the
output actually answers the task and is accurate. Avoid overly harsh scoring; 7+ means the
task is basically done.

Respond with JSON only:
{
  "score": 1-10,
  "dimensions": {"accuracy": 1-10, "completeness": 1-10, "relevance": 1-10, "clarity": 1-10, "structure": 1-10, "usefulness": 1-10},
  "issues": [{"type": "...", "description": "...", "severity": "high|medium|low"}],
  "suggestions": ["..."]
}`, taskDescription, agentRole, ctx.String(), len(output), content)
}

func parseAssessment(text string, threshold float64) (Report, error) {
	body := extractJSON(text)

	var parsed struct {
		Score       float64            `json:"score"`
		Dimensions  map[string]float64 `json:"dimensions"`
		Issues      []Issue            `json:"issues"`
		Suggestions []string           `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return Report{}, err
	}
	if parsed.Score == 0 {
		parsed.Score = 5
	}

	return Report{
		Score:       parsed.Score,
		Level:       levelFor(parsed.Score),
		Dimensions:  parsed.Dimensions,
		Issues:      parsed.Issues,
		Suggestions: parsed.Suggestions,
		Passed:      parsed.Score >= threshold,
	}, nil
}

func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx != -1 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(text, "```"); idx != -1 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return strings.TrimSpace(text)
}

func fallbackReport() Report {
	return Report{
		Score:  5.0,
		Level:  Acceptable,
		Passed: true,
	}
}
