package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/swarmcore/board"
)

func TestAggregate_MajorityVote_Duplicates(t *testing.T) {
	plan := Plan{SubTasks: []board.SubTask{{ID: "s1"}}}
	results := []board.Result{
		{SubTaskID: "s1", WorkerID: "w1", Success: true, Output: "answer A"},
		{SubTaskID: "s1", WorkerID: "w2", Success: true, Output: "answer B"},
		{SubTaskID: "s1", WorkerID: "w3", Success: false, Error: "timed out"},
	}

	out := Aggregate(plan, results, MajorityVote, Report, map[string]string{"s1": "writer"})

	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, DuplicateInconsistent, out.Conflicts[0].Type)

	resolved, ok := out.Resolved["s1"]
	require.True(t, ok)
	assert.True(t, resolved.Success, "majority of the group succeeded")
	assert.True(t, out.OverallSuccess)
}

func TestAggregate_DuplicateInconsistent_WhenNoMajority(t *testing.T) {
	plan := Plan{SubTasks: []board.SubTask{{ID: "s1"}}}
	results := []board.Result{
		{SubTaskID: "s1", WorkerID: "w1", Success: true, Output: "ok"},
		{SubTaskID: "s1", WorkerID: "w2", Success: false, Error: "failed"},
	}

	out := Aggregate(plan, results, MajorityVote, Report, nil)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, DuplicateInconsistent, out.Conflicts[0].Type)
}

func TestAggregate_OutputDivergence_NumericOutputs(t *testing.T) {
	plan := Plan{SubTasks: []board.SubTask{{ID: "s1"}}}
	results := []board.Result{
		{SubTaskID: "s1", WorkerID: "w1", Success: true, Output: 1.0},
		{SubTaskID: "s1", WorkerID: "w2", Success: true, Output: 50.0},
	}

	out := Aggregate(plan, results, FirstWins, Report, nil)

	var found bool
	for _, c := range out.Conflicts {
		if c.Type == OutputDivergence {
			found = true
		}
	}
	assert.True(t, found, "50x ratio should be flagged as divergent")
}

func TestAggregate_CodeOutput_MergesByFilePath(t *testing.T) {
	plan := Plan{SubTasks: []board.SubTask{{ID: "s1"}, {ID: "s2"}}}
	results := []board.Result{
		{SubTaskID: "s1", WorkerID: "w1", Success: true, Output: map[string]interface{}{
			"file_path": "main.go", "content": "package main",
		}},
		{SubTaskID: "s2", WorkerID: "w2", Success: true, Output: map[string]interface{}{
			"file_path": "main.go", "content": "func main() {}",
		}},
	}

	out := Aggregate(plan, results, FirstWins, Code, nil)
	require.Contains(t, out.Output.Files, "main.go")
	assert.Contains(t, out.Output.Files["main.go"], "package main")
	assert.Contains(t, out.Output.Files["main.go"], "func main() {}")
}

func TestAggregate_CodeOutput_DeterministicMergeOrder(t *testing.T) {
	plan := Plan{SubTasks: []board.SubTask{{ID: "s1"}, {ID: "s2"}}}
	results := []board.Result{
		{SubTaskID: "s1", WorkerID: "w1", Success: true, Output: map[string]interface{}{
			"file_path": "a.py", "content": "x",
		}},
		{SubTaskID: "s2", WorkerID: "w2", Success: true, Output: map[string]interface{}{
			"file_path": "a.py", "content": "y",
		}},
	}

	// Run several times: Go's randomized map iteration would otherwise make
	// this flaky (§8 aggregation determinism under fixed inputs).
	for i := 0; i < 20; i++ {
		out := Aggregate(plan, results, FirstWins, Code, nil)
		require.Equal(t, "x\ny", out.Output.Files["a.py"])
	}
}

func TestAggregate_MissingSubtasks(t *testing.T) {
	plan := Plan{SubTasks: []board.SubTask{{ID: "s1"}, {ID: "s2"}}}
	results := []board.Result{
		{SubTaskID: "s1", WorkerID: "w1", Success: true, Output: "ok"},
	}

	out := Aggregate(plan, results, FirstWins, Report, nil)
	assert.Equal(t, []string{"s2"}, out.MissingSubtasks)
	assert.False(t, out.OverallSuccess)
}

func TestAggregate_ReportOutput_DeterministicConcatenationOrder(t *testing.T) {
	plan := Plan{SubTasks: []board.SubTask{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}}}
	results := []board.Result{
		{SubTaskID: "s3", WorkerID: "w3", Success: true, Output: "third"},
		{SubTaskID: "s1", WorkerID: "w1", Success: true, Output: "first"},
		{SubTaskID: "s2", WorkerID: "w2", Success: true, Output: "second"},
	}
	roleHints := map[string]string{"s1": "writer", "s2": "writer", "s3": "writer"}

	for i := 0; i < 20; i++ {
		out := Aggregate(plan, results, FirstWins, Report, roleHints)
		require.Equal(t, "first\n\nsecond\n\nthird", out.Output.Text)
	}
}

func TestAggregate_Validation_RecordsAndExcludesInvalidResults(t *testing.T) {
	plan := Plan{SubTasks: []board.SubTask{{ID: "s1"}}}
	results := []board.Result{
		{SubTaskID: "s1", WorkerID: "", Success: true, Output: "ok"}, // missing worker id
	}

	out := Aggregate(plan, results, FirstWins, Report, nil)
	require.Len(t, out.ValidationErrors, 1)
	assert.Contains(t, out.MissingSubtasks, "s1", "invalid result excluded from resolution")
}
