// Package scheduler implements the adaptive work-stealing task scheduler: a
// priority-aware worker pool, system load monitoring, workload analysis, and
// a rebalancer that adjusts worker count from what the monitor and analyzer
// observe.
package scheduler

import "sync/atomic"

// TaskKind distinguishes how a task's work is represented.
type TaskKind int

const (
	// TaskAsync wraps a function that cooperatively yields (modeled here as
	// a plain func(), since Go's goroutines don't need an explicit future
	// type the way the original's async runtime does).
	TaskAsync TaskKind = iota
	// TaskParallel is a one-shot CPU-bound unit of work.
	TaskParallel
	// TaskParallelLoop applies LoopWork to every index in [Start, End).
	TaskParallelLoop
)

// TaskPriority orders tasks within the worker pool's priority queue.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// nextTaskID is shared across every task kind, unlike the per-kind counters
// this scheduler is modeled on — a single counter is simpler and avoids two
// unrelated tasks ever colliding on the same displayed ID.
var nextTaskID uint64

// Task is one unit of work submitted to a WorkerPool.
type Task struct {
	ID       uint64
	Kind     TaskKind
	Priority TaskPriority

	Work func()

	// Start/End/LoopWork are only set for TaskParallelLoop.
	Start, End int
	LoopWork   func(i int)
}

func nextID() uint64 {
	return atomic.AddUint64(&nextTaskID, 1)
}

// NewParallelTask builds a TaskParallel at PriorityNormal.
func NewParallelTask(work func()) Task {
	return Task{ID: nextID(), Kind: TaskParallel, Priority: PriorityNormal, Work: work}
}

// NewAsyncTask builds a TaskAsync at PriorityNormal.
func NewAsyncTask(work func()) Task {
	return Task{ID: nextID(), Kind: TaskAsync, Priority: PriorityNormal, Work: work}
}

// NewParallelLoopTask builds a TaskParallelLoop over [start, end) at
// PriorityNormal.
func NewParallelLoopTask(start, end int, work func(i int)) Task {
	return Task{ID: nextID(), Kind: TaskParallelLoop, Priority: PriorityNormal, Start: start, End: end, LoopWork: work}
}

// WithPriority returns a copy of t at the given priority.
func (t Task) WithPriority(p TaskPriority) Task {
	t.Priority = p

	return t
}

// TaskHandle is an opaque reference to a task already submitted to a pool.
type TaskHandle struct {
	taskID uint64
}

func (h TaskHandle) ID() uint64 { return h.taskID }
