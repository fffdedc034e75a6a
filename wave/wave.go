// Package wave implements the Wave Executor: an event-driven (not
// level-synchronous) dispatcher over the Task Board that launches every
// ready task in parallel and re-evaluates readiness as each worker finishes
// (§4.6 of the orchestration design).
package wave

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/swarmcore/board"
	"github.com/kadirpekel/swarmcore/observability"
)

// Stats summarizes one wave, the group of tasks whose workers were spawned
// together in a single spawn round.
type Stats struct {
	WaveIndex   int
	Spawned     int
	Completed   int
	Failed      int
	Parallelism int // max concurrently running workers observed during this wave
}

// AgentFactory spawns and runs a worker for a given sub-task, blocking until
// it terminates. Implementations adapt worker.Worker.Run to this signature.
type AgentFactory func(ctx context.Context, task board.SubTask) board.Result

// OnWave is invoked once per wave with its statistics; nil is a valid no-op
// callback.
type OnWave func(Stats)

// Executor drives the Task Board to completion.
type Executor struct {
	Board        *board.Board
	AgentFactory AgentFactory
	OnWave       OnWave

	// MaxConcurrent caps simultaneously running workers; zero means
	// unbounded.
	MaxConcurrent int64

	// Metrics is optional; nil disables all wave-level instrumentation.
	Metrics *observability.Metrics
}

// finished is one worker's outcome, paired with the wave it was spawned in.
type finished struct {
	task   board.SubTask
	result board.Result
	wave   int
}

// Run drives waves until every board entry reaches a terminal state, or ctx
// is canceled. Cancellation stops new spawns and drains in-flight workers
// before returning.
func (e *Executor) Run(ctx context.Context) {
	var sem *semaphore.Weighted
	if e.MaxConcurrent > 0 {
		sem = semaphore.NewWeighted(e.MaxConcurrent)
	}

	doneCh := make(chan finished)
	var wg sync.WaitGroup
	waveIndex := 0
	inFlight := 0

	for !e.Board.AllTerminal() {
		waveStart := time.Now()
		select {
		case <-ctx.Done():
			for ; inFlight > 0; inFlight-- {
				e.applyResult(<-doneCh)
			}
			wg.Wait()
			return
		default:
		}

		ready := e.Board.GetReadyTasks()
		spawnedThisWave := 0

		for _, task := range ready {
			if ctx.Err() != nil {
				break
			}
			if sem != nil && !sem.TryAcquire(1) {
				continue // at capacity; deferred to a later readiness check
			}
			if !e.Board.ClaimTask(task.ID) {
				if sem != nil {
					sem.Release(1)
				}
				continue
			}
			if err := e.Board.MarkRunning(task.ID); err != nil {
				if sem != nil {
					sem.Release(1)
				}
				continue
			}

			spawnedThisWave++
			inFlight++
			wave := waveIndex
			wg.Add(1)
			go func(t board.SubTask) {
				defer wg.Done()
				if sem != nil {
					defer sem.Release(1)
				}
				result := e.AgentFactory(ctx, t)
				doneCh <- finished{task: t, result: result, wave: wave}
			}(task)
		}

		if spawnedThisWave == 0 && inFlight == 0 {
			if e.Board.AllTerminal() {
				break
			}
			// Nothing ready and nothing running, yet the board isn't done:
			// a cyclic dependency. Break it by forcing the highest-priority
			// waiting task to Pending so the next readiness check can
			// dispatch it (§7's documented trade-off for invalid plans).
			if _, ok := e.Board.BreakCycle(); !ok {
				break // no waiting tasks left to force either; nothing more to do
			}
		}

		stats := Stats{WaveIndex: waveIndex, Spawned: spawnedThisWave, Parallelism: inFlight}
		waveIndex++

		if inFlight > 0 {
			select {
			case f := <-doneCh:
				inFlight--
				e.applyResult(f)
				if f.result.Success {
					stats.Completed++
				} else {
					stats.Failed++
				}
				// Drain any other already-ready completions without blocking,
				// so a burst of finishers is reported together.
				draining := true
				for draining {
					select {
					case f2 := <-doneCh:
						inFlight--
						e.applyResult(f2)
						if f2.result.Success {
							stats.Completed++
						} else {
							stats.Failed++
						}
					default:
						draining = false
					}
				}
			case <-ctx.Done():
				for ; inFlight > 0; inFlight-- {
					e.applyResult(<-doneCh)
				}
				wg.Wait()
				return
			}
		}

		e.Metrics.ObserveWave(stats.Parallelism, time.Since(waveStart))
		if e.Metrics != nil {
			counts := map[string]int{}
			for status, n := range e.Board.Status() {
				counts[status.String()] = n
			}
			e.Metrics.SetBoardStatusCounts(counts)
		}

		if e.OnWave != nil {
			e.OnWave(stats)
		}
	}

	wg.Wait()
}

func (e *Executor) applyResult(f finished) {
	if f.result.Success {
		e.Board.MarkCompleted(f.task.ID, f.result)
		return
	}
	e.Board.MarkFailed(f.task.ID, f.result.Error)
	e.Board.PropagateFailure(f.task.ID)
}
