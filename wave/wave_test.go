package wave

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/swarmcore/board"
)

func TestExecutor_FanOut_RespectsConcurrencyCap(t *testing.T) {
	b := board.New()
	tasks := make([]board.SubTask, 0, 10)
	for i := 0; i < 10; i++ {
		tasks = append(tasks, board.SubTask{ID: fmt.Sprintf("t%d", i)})
	}
	b.PublishTasks(tasks)

	var mu sync.Mutex
	var current, peak int32

	exec := &Executor{
		Board:         b,
		MaxConcurrent: 4,
		AgentFactory: func(ctx context.Context, task board.SubTask) board.Result {
			n := atomic.AddInt32(&current, 1)
			mu.Lock()
			if n > int32(peak) {
				peak = n
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return board.Result{SubTaskID: task.ID, WorkerID: "w", Success: true, Output: "ok"}
		},
	}

	exec.Run(context.Background())

	assert.True(t, b.AllTerminal())
	assert.LessOrEqual(t, peak, int32(4), "never more than MaxConcurrent workers ran at once")

	for _, e := range b.All() {
		require.NotNil(t, e.Result)
		assert.True(t, e.Result.Success)
	}
}

func TestExecutor_MidFailure_PropagatesToDependents(t *testing.T) {
	b := board.New()
	b.PublishTasks([]board.SubTask{
		{ID: "root"},
		{ID: "child", Dependencies: []string{"root"}},
		{ID: "grandchild", Dependencies: []string{"child"}},
	})

	exec := &Executor{
		Board: b,
		AgentFactory: func(ctx context.Context, task board.SubTask) board.Result {
			if task.ID == "root" {
				return board.Result{SubTaskID: task.ID, WorkerID: "w", Success: false, Error: "boom"}
			}
			return board.Result{SubTaskID: task.ID, WorkerID: "w", Success: true, Output: "ok"}
		},
	}

	exec.Run(context.Background())

	assert.True(t, b.AllTerminal())
	child, ok := b.Get("child")
	require.True(t, ok)
	assert.Equal(t, board.Blocked, child.Status)
	grandchild, ok := b.Get("grandchild")
	require.True(t, ok)
	assert.Equal(t, board.Blocked, grandchild.Status)
}

func TestExecutor_EmitsWaveStats(t *testing.T) {
	b := board.New()
	b.PublishTasks([]board.SubTask{{ID: "a"}, {ID: "b"}})

	var waves []Stats
	var mu sync.Mutex

	exec := &Executor{
		Board: b,
		AgentFactory: func(ctx context.Context, task board.SubTask) board.Result {
			return board.Result{SubTaskID: task.ID, WorkerID: "w", Success: true, Output: "ok"}
		},
		OnWave: func(s Stats) {
			mu.Lock()
			waves = append(waves, s)
			mu.Unlock()
		},
	}

	exec.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, waves)
	assert.Equal(t, 2, waves[0].Spawned)
}
