package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_DiamondDAG(t *testing.T) {
	// A -> B, A -> C, B and C -> D. D only becomes ready once both B and C
	// complete.
	b := New()
	b.PublishTasks([]SubTask{
		{ID: "A"},
		{ID: "B", Dependencies: []string{"A"}},
		{ID: "C", Dependencies: []string{"A"}},
		{ID: "D", Dependencies: []string{"B", "C"}},
	})

	ready := b.GetReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "A", ready[0].ID)

	require.True(t, b.ClaimTask("A"))
	require.NoError(t, b.MarkRunning("A"))
	require.NoError(t, b.MarkCompleted("A", Result{Success: true, Output: "done"}))

	ready = b.GetReadyTasks()
	require.Len(t, ready, 2)

	for _, task := range ready {
		require.True(t, b.ClaimTask(task.ID))
		require.NoError(t, b.MarkRunning(task.ID))
	}

	// D not ready until both B and C complete.
	assert.Empty(t, b.GetReadyTasks())

	require.NoError(t, b.MarkCompleted("B", Result{Success: true}))
	assert.Empty(t, b.GetReadyTasks(), "D still waits on C")

	require.NoError(t, b.MarkCompleted("C", Result{Success: true}))
	ready = b.GetReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "D", ready[0].ID)
}

func TestBoard_GetReadyTasks_PriorityOrder(t *testing.T) {
	b := New()
	b.PublishTasks([]SubTask{
		{ID: "low", Priority: 1},
		{ID: "high", Priority: 10},
		{ID: "mid", Priority: 5},
	})

	ready := b.GetReadyTasks()
	require.Len(t, ready, 3)
	assert.Equal(t, "high", ready[0].ID)
	assert.Equal(t, "mid", ready[1].ID)
	assert.Equal(t, "low", ready[2].ID)
}

func TestBoard_PropagateFailure_BlocksDescendants(t *testing.T) {
	b := New()
	b.PublishTasks([]SubTask{
		{ID: "A"},
		{ID: "B", Dependencies: []string{"A"}},
		{ID: "C", Dependencies: []string{"B"}},
		{ID: "D"}, // unrelated, unaffected
	})

	require.True(t, b.ClaimTask("A"))
	require.NoError(t, b.MarkRunning("A"))
	require.NoError(t, b.MarkFailed("A", "boom"))

	blocked := b.PropagateFailure("A")
	assert.ElementsMatch(t, []string{"B", "C"}, blocked)

	entryB, ok := b.Get("B")
	require.True(t, ok)
	assert.Equal(t, Blocked, entryB.Status)

	entryD, ok := b.Get("D")
	require.True(t, ok)
	assert.Equal(t, Pending, entryD.Status)

	assert.False(t, b.AllTerminal(), "D is still pending")
}

func TestBoard_BreakCycle_ForcesProgress(t *testing.T) {
	b := New()
	// A depends on B and B depends on A: a cycle, nothing is ever Pending.
	b.PublishTasks([]SubTask{
		{ID: "A", Dependencies: []string{"B"}, Priority: 1},
		{ID: "B", Dependencies: []string{"A"}, Priority: 5},
	})

	assert.Empty(t, b.GetReadyTasks())

	forced, ok := b.BreakCycle()
	require.True(t, ok)
	assert.Equal(t, "B", forced.ID, "higher-priority waiting task is forced first")

	ready := b.GetReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "B", ready[0].ID)
}

func TestBoard_ClaimTask_RejectsNonPending(t *testing.T) {
	b := New()
	b.PublishTasks([]SubTask{{ID: "A", Dependencies: []string{"missing"}}})
	assert.False(t, b.ClaimTask("A"), "A is Waiting, not Pending")
	assert.False(t, b.ClaimTask("nonexistent"))
}

func TestBoard_InsertTask_MidRun(t *testing.T) {
	b := New()
	b.PublishTasks([]SubTask{{ID: "A"}})
	require.True(t, b.ClaimTask("A"))
	require.NoError(t, b.MarkRunning("A"))
	require.NoError(t, b.MarkCompleted("A", Result{Success: true}))

	require.True(t, b.InsertTask(SubTask{ID: "B", Dependencies: []string{"A"}}))
	ready := b.GetReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "B", ready[0].ID, "new task with already-completed deps is immediately ready")
}

func TestBoard_PublishTasks_RejectsDuplicateID(t *testing.T) {
	b := New()
	b.PublishTasks([]SubTask{{ID: "A", Priority: 1}})
	require.True(t, b.ClaimTask("A"))
	require.NoError(t, b.MarkRunning("A"))
	require.NoError(t, b.MarkCompleted("A", Result{Success: true, Output: "first"}))

	// Republishing "A" must not overwrite its status/result or duplicate it
	// in iteration order.
	b.PublishTasks([]SubTask{{ID: "A", Priority: 99}})

	entry, ok := b.Get("A")
	require.True(t, ok)
	assert.Equal(t, Completed, entry.Status)
	require.NotNil(t, entry.Result)
	assert.Equal(t, "first", entry.Result.Output)

	all := b.All()
	count := 0
	for _, e := range all {
		if e.Task.ID == "A" {
			count++
		}
	}
	assert.Equal(t, 1, count, "republished id must not be double-counted")
}

func TestBoard_InsertTask_RejectsDuplicateID(t *testing.T) {
	b := New()
	b.PublishTasks([]SubTask{{ID: "A"}})
	require.True(t, b.ClaimTask("A"))
	require.NoError(t, b.MarkRunning("A"))
	require.NoError(t, b.MarkCompleted("A", Result{Success: true, Output: "first"}))

	assert.False(t, b.InsertTask(SubTask{ID: "A", Priority: 7}))

	entry, ok := b.Get("A")
	require.True(t, ok)
	assert.Equal(t, Completed, entry.Status)
	assert.Equal(t, "first", entry.Result.Output)
}
