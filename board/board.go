// Package board implements the Task Board: the shared, concurrency-safe
// store of sub-tasks with dependency tracking that the Wave Executor reads
// and the Quality Gate/Aggregator write results into (§4.5 of the
// orchestration design; grounded on agent_scheduler.py's dependency graph,
// priority queue, and propagate_failure logic).
package board

import (
	"container/heap"
	"fmt"
	"sync"
)

// Status is a TaskBoardEntry's position in its lifecycle.
type Status int

const (
	Waiting Status = iota
	Pending
	Claimed
	Running
	Completed
	Failed
	Blocked
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Pending:
		return "pending"
	case Claimed:
		return "claimed"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// SubTask is the immutable unit of work the external planner produces (§3).
type SubTask struct {
	ID             string
	JobID          string
	Content        string
	RoleHint       string
	Dependencies   []string
	Priority       int
	Complexity     float64
}

// Result is what a Worker Agent hands back for one sub-task.
type Result struct {
	SubTaskID     string
	WorkerID      string
	Success       bool
	Output        interface{}
	Error         string
	ExecutionTime float64 // seconds
}

// Entry is a SubTask plus its current scheduling status and result, if any.
type Entry struct {
	Task   SubTask
	Status Status
	Result *Result
}

// Board owns all TaskBoardEntries exclusively; every mutating operation
// serializes on a single lock (§4.5 Concurrency).
type Board struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	order    []string // insertion order, for deterministic iteration
	dependents map[string][]string // taskID -> ids that depend on it
}

func New() *Board {
	return &Board{
		entries:    make(map[string]*Entry),
		dependents: make(map[string][]string),
	}
}

// PublishTasks seeds all entries: Waiting if dependencies are non-empty,
// Pending otherwise. Republishing an id already on the board is rejected
// (no silent overwrite, §8 publish idempotence) and skipped.
func (b *Board) PublishTasks(tasks []SubTask) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range tasks {
		if _, exists := b.entries[t.ID]; exists {
			continue
		}

		status := Pending
		if len(t.Dependencies) > 0 {
			status = Waiting
		}
		b.entries[t.ID] = &Entry{Task: t, Status: status}
		b.order = append(b.order, t.ID)
		for _, dep := range t.Dependencies {
			b.dependents[dep] = append(b.dependents[dep], t.ID)
		}
	}
}

// priorityItem is one candidate in the ready-task max-heap, ordered by
// descending priority (ties broken by insertion order for determinism).
type priorityItem struct {
	priority int
	seq      int
	id       string
}

type priorityHeap []priorityItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority // max-heap
	}
	return h[i].seq < h[j].seq
}
func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x interface{}) { *h = append(*h, x.(priorityItem)) }
func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// GetReadyTasks returns every Pending entry whose dependencies are all
// Completed, sorted by priority descending.
func (b *Board) GetReadyTasks() []SubTask {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := &priorityHeap{}
	heap.Init(h)
	seq := 0
	for _, id := range b.order {
		e := b.entries[id]
		if e.Status != Pending {
			continue
		}
		heap.Push(h, priorityItem{priority: e.Task.Priority, seq: seq, id: id})
		seq++
	}

	ready := make([]SubTask, 0, h.Len())
	for h.Len() > 0 {
		item := heap.Pop(h).(priorityItem)
		ready = append(ready, b.entries[item.id].Task)
	}
	return ready
}

// BreakCycle forces forward progress when no task is Pending but some are
// still Waiting/Running=0 (a cyclic dependency that never resolves): it
// picks the highest-priority Waiting entry, tie-broken by publish order,
// and promotes it directly to Pending so the executor can dispatch it. This
// sacrifices the cycle's dependency semantics in favor of guaranteed
// progress (§7's documented error-handling trade-off for invalid plans).
func (b *Board) BreakCycle() (SubTask, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var best *Entry
	for _, id := range b.order {
		e := b.entries[id]
		if e.Status != Waiting {
			continue
		}
		if best == nil || e.Task.Priority > best.Task.Priority {
			best = e
		}
	}
	if best == nil {
		return SubTask{}, false
	}
	best.Status = Pending
	return best.Task, true
}

// ClaimTask atomically transitions Pending -> Claimed; returns false if the
// entry is missing or no longer Pending.
func (b *Board) ClaimTask(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok || e.Status != Pending {
		return false
	}
	e.Status = Claimed
	return true
}

// MarkRunning moves a Claimed entry to Running.
func (b *Board) MarkRunning(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return fmt.Errorf("board: unknown task %q", id)
	}
	if e.Status != Claimed {
		return fmt.Errorf("board: task %q is %s, not claimed", id, e.Status)
	}
	e.Status = Running
	return nil
}

// MarkCompleted records a successful result and recomputes readiness of
// every dependent.
func (b *Board) MarkCompleted(id string, result Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return fmt.Errorf("board: unknown task %q", id)
	}
	e.Status = Completed
	result.SubTaskID = id
	e.Result = &result
	b.recheckDependents(id)
	return nil
}

// MarkFailed records a failure; it does not itself propagate to dependents,
// callers are expected to call PropagateFailure explicitly (§4.5 lists
// them as separate operations).
func (b *Board) MarkFailed(id string, errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return fmt.Errorf("board: unknown task %q", id)
	}
	e.Status = Failed
	e.Result = &Result{SubTaskID: id, Success: false, Error: errMsg}
	return nil
}

// recheckDependents moves any Waiting dependent of id to Pending once all of
// its dependencies are Completed. Must be called with b.mu held.
func (b *Board) recheckDependents(id string) {
	for _, depID := range b.dependents[id] {
		e, ok := b.entries[depID]
		if !ok || e.Status != Waiting {
			continue
		}
		if b.allDepsCompleted(e.Task) {
			e.Status = Pending
		}
	}
}

func (b *Board) allDepsCompleted(t SubTask) bool {
	for _, dep := range t.Dependencies {
		d, ok := b.entries[dep]
		if !ok || d.Status != Completed {
			return false
		}
	}
	return true
}

// PropagateFailure transitively marks every descendant of id whose status
// is Waiting or Pending as Blocked.
func (b *Board) PropagateFailure(id string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var blocked []string
	queue := append([]string{}, b.dependents[id]...)
	seen := map[string]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true

		e, ok := b.entries[cur]
		if !ok {
			continue
		}
		if e.Status == Waiting || e.Status == Pending {
			e.Status = Blocked
			blocked = append(blocked, cur)
			queue = append(queue, b.dependents[cur]...)
		}
	}
	return blocked
}

// StatusCounts is a snapshot of entry counts per status.
type StatusCounts map[Status]int

// Status returns a snapshot count per status.
func (b *Board) Status() StatusCounts {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := StatusCounts{}
	for _, e := range b.entries {
		counts[e.Status]++
	}
	return counts
}

// AllTerminal reports whether every entry is Completed, Failed, or Blocked,
// the Wave Executor's loop-termination condition (§4.6).
func (b *Board) AllTerminal() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		switch e.Status {
		case Completed, Failed, Blocked:
			continue
		default:
			return false
		}
	}
	return true
}

// Get returns a copy of one entry, for callers (aggregator, tests) that
// need a point-in-time read without taking the board lock themselves.
func (b *Board) Get(id string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// All returns a snapshot of every entry, in publish order.
func (b *Board) All() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.entries[id])
	}
	return out
}

// InsertTask adds a single new sub-task mid-run; the orchestrator does not
// call it, so quality-gate "insert a new step" directives are not applied.
// It rejects an id already on the board (no silent overwrite, §8 publish
// idempotence), reporting false instead.
func (b *Board) InsertTask(t SubTask) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[t.ID]; exists {
		return false
	}

	status := Pending
	if len(t.Dependencies) > 0 {
		status = Waiting
		if b.allDepsCompletedLocked(t) {
			status = Pending
		}
	}
	b.entries[t.ID] = &Entry{Task: t, Status: status}
	b.order = append(b.order, t.ID)
	for _, dep := range t.Dependencies {
		b.dependents[dep] = append(b.dependents[dep], t.ID)
	}
	return true
}

func (b *Board) allDepsCompletedLocked(t SubTask) bool { return b.allDepsCompleted(t) }

// Reprioritize updates a pending/waiting task's priority, reporting false
// for an unknown id or a task in any other status. Nothing in this module
// calls it during a run.
func (b *Board) Reprioritize(id string, priority int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok || (e.Status != Pending && e.Status != Waiting) {
		return false
	}
	e.Task.Priority = priority
	return true
}
