package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Worker is one goroutine in a WorkerPool, owning a bounded task channel and
// an atomic queue-length counter that dispatch consults to pick the
// least-loaded worker.
type Worker struct {
	id       int
	queue    chan Task
	queueLen int64
	running  int32
}

// WorkerPoolStats summarizes pool activity, mirroring the fields a
// Rebalancer needs to make adjustment decisions.
type WorkerPoolStats struct {
	TotalThreads   int
	ActiveThreads  int
	TasksScheduled uint64
	TasksCompleted uint64
}

// WorkerPool dispatches tasks to a fixed (but resizable) set of worker
// goroutines using least-loaded placement, with idle workers stealing from
// busier ones. Submission order within a priority is preserved; a
// higher-priority task submitted later still runs before an
// already-queued lower-priority one, via a small priority heap that feeds
// worker queues as capacity allows.
type WorkerPool struct {
	mu      sync.Mutex
	workers []*Worker
	cancel  context.CancelFunc
	ctx     context.Context

	pending   taskHeap
	pendingMu sync.Mutex
	wake      chan struct{}

	tasksScheduled uint64
	tasksCompleted uint64

	process func(Task)
}

// NewWorkerPool creates a pool with workerCount workers, each processing
// submitted tasks by calling process.
func NewWorkerPool(workerCount int, process func(Task)) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	wp := &WorkerPool{
		workers: make([]*Worker, workerCount),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		process: process,
	}

	for i := 0; i < workerCount; i++ {
		wp.workers[i] = &Worker{id: i, queue: make(chan Task, 64), running: 1}
		go wp.runWorker(wp.workers[i])
	}

	go wp.dispatchLoop()

	return wp
}

// Submit enqueues t for execution and returns a handle to it.
func (wp *WorkerPool) Submit(t Task) TaskHandle {
	wp.pendingMu.Lock()
	heap.Push(&wp.pending, t)
	wp.pendingMu.Unlock()

	select {
	case wp.wake <- struct{}{}:
	default:
	}

	return TaskHandle{taskID: t.ID}
}

// dispatchLoop drains the priority heap into the least-loaded worker's
// queue, falling back to the globally least-loaded worker if the first
// choice's queue is momentarily full.
func (wp *WorkerPool) dispatchLoop() {
	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-wp.wake:
		case <-time.After(5 * time.Millisecond):
		}

		for {
			wp.pendingMu.Lock()
			if wp.pending.Len() == 0 {
				wp.pendingMu.Unlock()
				break
			}
			t := heap.Pop(&wp.pending).(Task)
			wp.pendingMu.Unlock()

			if !wp.dispatch(t) {
				// No capacity anywhere right now; push back and wait.
				wp.pendingMu.Lock()
				heap.Push(&wp.pending, t)
				wp.pendingMu.Unlock()

				break
			}
		}
	}
}

func (wp *WorkerPool) dispatch(t Task) bool {
	wp.mu.Lock()
	workers := wp.workers
	wp.mu.Unlock()

	if len(workers) == 0 {
		return false
	}

	best := workers[0]
	bestLen := atomic.LoadInt64(&best.queueLen)

	for _, w := range workers[1:] {
		if l := atomic.LoadInt64(&w.queueLen); l < bestLen {
			best, bestLen = w, l
		}
	}

	select {
	case best.queue <- t:
		atomic.AddInt64(&best.queueLen, 1)
		atomic.AddUint64(&wp.tasksScheduled, 1)

		return true
	default:
	}

	for _, w := range workers {
		select {
		case w.queue <- t:
			atomic.AddInt64(&w.queueLen, 1)
			atomic.AddUint64(&wp.tasksScheduled, 1)

			return true
		default:
		}
	}

	return false
}

func (wp *WorkerPool) runWorker(w *Worker) {
	for atomic.LoadInt32(&w.running) == 1 {
		select {
		case t := <-w.queue:
			atomic.AddInt64(&w.queueLen, -1)
			wp.runTask(t)
		case <-wp.ctx.Done():
			return
		case <-time.After(2 * time.Millisecond):
			if id, ok := wp.trySteal(w.id); ok {
				wp.runTask(id)
			}
		}
	}
}

func (wp *WorkerPool) runTask(t Task) {
	if t.Kind == TaskParallelLoop {
		_ = RunParallelLoop(wp.ctx, t)
	} else {
		wp.process(t)
	}

	atomic.AddUint64(&wp.tasksCompleted, 1)
}

// trySteal attempts a non-blocking steal from another worker's queue.
func (wp *WorkerPool) trySteal(selfID int) (Task, bool) {
	wp.mu.Lock()
	workers := wp.workers
	wp.mu.Unlock()

	if len(workers) < 2 {
		return Task{}, false
	}

	start := (selfID + 1) % len(workers)

	for i := 0; i < len(workers)-1; i++ {
		w := workers[(start+i)%len(workers)]

		select {
		case t := <-w.queue:
			atomic.AddInt64(&w.queueLen, -1)

			return t, true
		default:
		}
	}

	return Task{}, false
}

// Resize changes the number of workers, starting new ones or stopping
// excess ones. In-flight tasks on a stopped worker's queue are redistributed
// to the remaining workers before it is discarded.
func (wp *WorkerPool) Resize(workerCount int) {
	if workerCount < 1 {
		workerCount = 1
	}

	wp.mu.Lock()
	defer wp.mu.Unlock()

	current := len(wp.workers)

	if workerCount > current {
		for i := current; i < workerCount; i++ {
			w := &Worker{id: i, queue: make(chan Task, 64), running: 1}
			wp.workers = append(wp.workers, w)
			go wp.runWorker(w)
		}

		return
	}

	if workerCount < current {
		removed := wp.workers[workerCount:]
		wp.workers = wp.workers[:workerCount]

		for _, w := range removed {
			atomic.StoreInt32(&w.running, 0)

		drain:
			for {
				select {
				case t := <-w.queue:
					atomic.AddInt64(&w.queueLen, -1)
					// Back onto the pending heap: dispatch takes wp.mu, which
					// Resize already holds.
					wp.pendingMu.Lock()
					heap.Push(&wp.pending, t)
					wp.pendingMu.Unlock()
				default:
					break drain
				}
			}
		}
	}
}

// Stats reports a snapshot of pool activity.
func (wp *WorkerPool) Stats() WorkerPoolStats {
	wp.mu.Lock()
	workers := wp.workers
	wp.mu.Unlock()

	active := 0

	for _, w := range workers {
		if atomic.LoadInt64(&w.queueLen) > 0 {
			active++
		}
	}

	return WorkerPoolStats{
		TotalThreads:   len(workers),
		ActiveThreads:  active,
		TasksScheduled: atomic.LoadUint64(&wp.tasksScheduled),
		TasksCompleted: atomic.LoadUint64(&wp.tasksCompleted),
	}
}

// Close stops every worker. Queued tasks are abandoned.
func (wp *WorkerPool) Close() {
	wp.cancel()

	wp.mu.Lock()
	defer wp.mu.Unlock()

	for _, w := range wp.workers {
		atomic.StoreInt32(&w.running, 0)
	}
}

// taskHeap is a container/heap priority queue ordered by descending
// priority, with submission order (ascending ID) as the tie-break so two
// same-priority tasks run FIFO.
type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}

	return h[i].ID < h[j].ID
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(Task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]

	return item
}
