// Package aggregate implements the Aggregator: validation, duplicate and
// divergence detection, conflict resolution, missing-step identification,
// and typed-output integration, run once every task on the board has
// reached a terminal state (§4.8 of the orchestration design; grounded on
// result_aggregator.py's detect_conflicts/resolve_conflict/_integrate_*
// methods).
package aggregate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kadirpekel/swarmcore/board"
)

// Strategy picks how conflicting results for the same sub-task are resolved.
type Strategy string

const (
	FirstWins    Strategy = "first_wins"
	LastWins     Strategy = "last_wins"
	MajorityVote Strategy = "majority_vote"
	Manual       Strategy = "manual"
)

// OutputType selects the typed-output integration strategy.
type OutputType string

const (
	Report    OutputType = "report"
	Code      OutputType = "code"
	Composite OutputType = "composite"
)

// ConflictType classifies why a set of results for one sub-task conflict.
type ConflictType string

const (
	Duplicate           ConflictType = "duplicate"
	DuplicateInconsistent ConflictType = "duplicate_inconsistent"
	OutputDivergence    ConflictType = "output_divergence"
)

// Conflict records one detected conflict among results for a sub-task.
type Conflict struct {
	SubTaskID string
	Type      ConflictType
	Results   []board.Result
	Detail    string
}

// ValidationError is a defect found during validation; it is recorded, not
// discarded, per §4.8 step 1.
type ValidationError struct {
	SubTaskID string
	Message   string
}

// Plan is the minimal view of the planner's DAG the aggregator needs to
// identify missing sub-tasks, role hints matter for Report integration's
// writer/summarizer preference.
type Plan struct {
	SubTasks []board.SubTask
}

// Output is the final assembled artifact.
type Output struct {
	Type     OutputType
	Text     string            // populated for Report
	Files    map[string]string // populated for Code: file path -> merged content
	Buckets  map[string][]string // populated for Composite: output_type -> contents
}

// Result is everything the aggregation pass produced.
type Result struct {
	ValidationErrors []ValidationError
	Conflicts        []Conflict
	Resolved         map[string]board.Result // subtask id -> the result that won
	MissingSubtasks  []string
	Output           Output
	OverallSuccess   bool
}

// Aggregate runs the full pipeline described in §4.8.
func Aggregate(plan Plan, allResults []board.Result, strategy Strategy, outputType OutputType, roleHints map[string]string) Result {
	validationErrors, valid := validate(allResults)
	byID := groupByID(valid)

	conflicts := detectConflicts(byID)
	resolved := resolveConflicts(byID, strategy)

	missing := missingSubtasks(plan, resolved)

	out := integrate(resolved, plan, outputType, roleHints)

	return Result{
		ValidationErrors: validationErrors,
		Conflicts:        conflicts,
		Resolved:         resolved,
		MissingSubtasks:  missing,
		Output:           out,
		OverallSuccess:   overallSuccess(resolved, missing),
	}
}

// ----------------------------------------------------------------------------
// 1. Validation
// ----------------------------------------------------------------------------

func validate(results []board.Result) ([]ValidationError, []board.Result) {
	var errs []ValidationError
	var valid []board.Result

	for _, r := range results {
		var msgs []string
		if r.SubTaskID == "" {
			msgs = append(msgs, "missing sub-task id")
		}
		if r.WorkerID == "" {
			msgs = append(msgs, "missing worker id")
		}
		if r.Success && r.Output == nil {
			msgs = append(msgs, "successful result has nil output")
		}
		if !r.Success && r.Error == "" {
			msgs = append(msgs, "failed result has no error")
		}
		if r.ExecutionTime < 0 {
			msgs = append(msgs, "negative execution time")
		}

		if len(msgs) > 0 {
			errs = append(errs, ValidationError{SubTaskID: r.SubTaskID, Message: strings.Join(msgs, "; ")})
			continue // invalid results are recorded but excluded from downstream processing
		}
		valid = append(valid, r)
	}
	return errs, valid
}

func groupByID(results []board.Result) map[string][]board.Result {
	byID := make(map[string][]board.Result)
	for _, r := range results {
		byID[r.SubTaskID] = append(byID[r.SubTaskID], r)
	}
	return byID
}

// ----------------------------------------------------------------------------
// 2 & 3. Duplicate detection and numeric divergence
// ----------------------------------------------------------------------------

func detectConflicts(byID map[string][]board.Result) []Conflict {
	var conflicts []Conflict

	ids := sortedKeys(byID)
	for _, id := range ids {
		group := byID[id]
		if len(group) <= 1 {
			continue
		}

		inconsistent := false
		first := group[0].Success
		for _, r := range group[1:] {
			if r.Success != first {
				inconsistent = true
				break
			}
		}

		if inconsistent {
			conflicts = append(conflicts, Conflict{SubTaskID: id, Type: DuplicateInconsistent, Results: group,
				Detail: fmt.Sprintf("subtask %s has %d duplicate results with disagreeing success flags", id, len(group))})
		} else {
			conflicts = append(conflicts, Conflict{SubTaskID: id, Type: Duplicate, Results: group,
				Detail: fmt.Sprintf("subtask %s has %d duplicate results", id, len(group))})
		}

		if ratio, ok := numericDivergence(group); ok {
			conflicts = append(conflicts, Conflict{SubTaskID: id, Type: OutputDivergence, Results: group,
				Detail: fmt.Sprintf("numeric outputs diverge by ratio %.2f", ratio)})
		}
	}
	return conflicts
}

// numericDivergence collects numeric outputs across a duplicate group and
// reports true if max/min exceeds 10x.
func numericDivergence(group []board.Result) (float64, bool) {
	var values []float64
	for _, r := range group {
		if v, ok := asFloat(r.Output); ok {
			values = append(values, v)
		}
	}
	if len(values) < 2 {
		return 0, false
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == 0 {
		return 0, false
	}
	ratio := max / min
	if ratio < 0 {
		ratio = -ratio
	}
	return ratio, ratio > 10
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ----------------------------------------------------------------------------
// 4. Resolution
// ----------------------------------------------------------------------------

func resolveConflicts(byID map[string][]board.Result, strategy Strategy) map[string]board.Result {
	resolved := make(map[string]board.Result, len(byID))

	for id, group := range byID {
		if len(group) == 1 {
			resolved[id] = group[0]
			continue
		}

		switch strategy {
		case FirstWins:
			resolved[id] = group[0]
		case LastWins:
			resolved[id] = group[len(group)-1]
		case MajorityVote:
			resolved[id] = majorityVote(group)
		case Manual:
			// left unresolved: caller must inspect Conflicts and decide
		default:
			resolved[id] = group[0]
		}
	}
	return resolved
}

func majorityVote(group []board.Result) board.Result {
	successCount := 0
	for _, r := range group {
		if r.Success {
			successCount++
		}
	}
	majoritySuccess := successCount*2 > len(group)
	for _, r := range group {
		if r.Success == majoritySuccess {
			return r
		}
	}
	return group[0]
}

// ----------------------------------------------------------------------------
// 5. Missing sub-tasks
// ----------------------------------------------------------------------------

func missingSubtasks(plan Plan, resolved map[string]board.Result) []string {
	var missing []string
	for _, t := range plan.SubTasks {
		if _, ok := resolved[t.ID]; !ok {
			missing = append(missing, t.ID)
		}
	}
	return missing
}

// ----------------------------------------------------------------------------
// 6. Integration by output type
// ----------------------------------------------------------------------------

func integrate(resolved map[string]board.Result, plan Plan, outputType OutputType, roleHints map[string]string) Output {
	switch outputType {
	case Code:
		return Output{Type: Code, Files: integrateCode(resolved)}
	case Composite:
		return Output{Type: Composite, Buckets: integrateComposite(resolved)}
	default:
		return Output{Type: Report, Text: integrateReport(resolved, roleHints)}
	}
}

// integrateReport concatenates successful outputs, preferring writer/
// summarizer output as the main body and falling back to analyst/researcher
// output, then to any data-role output if nothing higher-tier exists.
func integrateReport(resolved map[string]board.Result, roleHints map[string]string) string {
	tier := func(role string) int {
		switch role {
		case "writer", "summarizer":
			return 3
		case "analyst", "researcher":
			return 2
		default:
			return 1
		}
	}

	var texts []struct {
		tier int
		text string
	}
	for _, id := range sortedResolvedKeys(resolved) {
		r := resolved[id]
		if !r.Success {
			continue
		}
		text, ok := r.Output.(string)
		if !ok || text == "" {
			continue
		}
		texts = append(texts, struct {
			tier int
			text string
		}{tier(roleHints[id]), text})
	}

	best := 0
	for _, t := range texts {
		if t.tier > best {
			best = t.tier
		}
	}
	if best == 0 {
		return ""
	}

	var body strings.Builder
	for _, t := range texts {
		if t.tier == best {
			if body.Len() > 0 {
				body.WriteString("\n\n")
			}
			body.WriteString(t.text)
		}
	}

	if body.Len() < 200 {
		for _, t := range texts {
			if t.tier == 2 && t.tier < best {
				body.WriteString("\n\n")
				body.WriteString(t.text)
			}
		}
	}
	return body.String()
}

var filePathMarkerRe = regexp.MustCompile(`(?m)^\s*(?:#|//)\s*file:\s*(\S+)\s*$`)

// integrateCode groups snippets by file_path, extracted either from a
// structured {file_path, content} output or from inline "# file: path" /
// "// file: path" markers in a plain-string output.
func integrateCode(resolved map[string]board.Result) map[string]string {
	groups := make(map[string][]string)

	for _, id := range sortedResolvedKeys(resolved) {
		r := resolved[id]
		if !r.Success {
			continue
		}
		switch out := r.Output.(type) {
		case map[string]interface{}:
			path, _ := out["file_path"].(string)
			content, _ := out["content"].(string)
			if path != "" {
				groups[path] = append(groups[path], content)
				continue
			}
			if text, ok := out["text"].(string); ok {
				mergeExtractedFiles(groups, text)
			}
		case string:
			mergeExtractedFiles(groups, out)
		}
	}

	merged := make(map[string]string, len(groups))
	for path, snippets := range groups {
		merged[path] = strings.Join(snippets, "\n")
	}
	return merged
}

func mergeExtractedFiles(groups map[string][]string, content string) {
	matches := filePathMarkerRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return
	}
	for i, m := range matches {
		path := content[m[2]:m[3]]
		start := m[1]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		snippet := strings.TrimSpace(content[start:end])
		if snippet != "" {
			groups[path] = append(groups[path], snippet)
		}
	}
}

// integrateComposite buckets outputs by their own declared output_type,
// defaulting to "report" when absent.
func integrateComposite(resolved map[string]board.Result) map[string][]string {
	buckets := make(map[string][]string)

	for _, id := range sortedResolvedKeys(resolved) {
		r := resolved[id]
		if !r.Success {
			continue
		}
		outType := "report"
		var text string

		switch out := r.Output.(type) {
		case map[string]interface{}:
			if t, ok := out["output_type"].(string); ok && t != "" {
				outType = t
			}
			if t, ok := out["text"].(string); ok {
				text = t
			} else if b, ok := out["content"].(string); ok {
				text = b
			}
		case string:
			text = out
		}

		if text != "" {
			buckets[outType] = append(buckets[outType], text)
		}
	}
	return buckets
}

func overallSuccess(resolved map[string]board.Result, missing []string) bool {
	if len(missing) > 0 {
		return false
	}
	for _, r := range resolved {
		if !r.Success {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string][]board.Result) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortedResolvedKeys gives the integration helpers a fixed iteration order
// over the resolved map, so combined_output is deterministic for a fixed
// set of inputs regardless of Go's randomized map order (§8 determinism).
func sortedResolvedKeys(m map[string]board.Result) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
