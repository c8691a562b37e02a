package scheduler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RunParallelLoop executes a TaskParallelLoop's LoopWork over every index in
// [Start, End), fanning the range out across up to runtime.NumCPU() goroutines
// via errgroup the same way the package manager parallelizes independent
// Find+Fetch calls: one errgroup.Group, one chunk of work per goroutine.
// LoopWork returns no error and the group's context is not passed on, so
// every chunk runs to completion; a panic in LoopWork is not recovered.
//
// WorkerPool.runTask calls this directly for TaskParallelLoop tasks instead
// of handing them to the pool's process callback, since splitting a loop's
// index range is a fixed concern every caller needs and shouldn't be
// reimplemented per process callback.
func RunParallelLoop(ctx context.Context, t Task) error {
	if t.Kind != TaskParallelLoop || t.LoopWork == nil {
		return nil
	}

	total := t.End - t.Start
	if total <= 0 {
		return nil
	}

	workers := runtime.NumCPU()
	if workers > total {
		workers = total
	}
	if workers < 1 {
		workers = 1
	}

	chunk := (total + workers - 1) / workers

	g, _ := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		start := t.Start + w*chunk
		end := start + chunk
		if end > t.End {
			end = t.End
		}
		if start >= end {
			continue
		}

		start, end := start, end

		g.Go(func() error {
			for i := start; i < end; i++ {
				t.LoopWork(i)
			}

			return nil
		})
	}

	return g.Wait()
}
