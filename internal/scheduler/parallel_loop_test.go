package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestRunParallelLoopCoversEveryIndex(t *testing.T) {
	const n = 137

	var seen [n]int32

	task := NewParallelLoopTask(0, n, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})

	if err := RunParallelLoop(context.Background(), task); err != nil {
		t.Fatalf("RunParallelLoop() error = %v", err)
	}

	for i, count := range seen {
		if count != 1 {
			t.Fatalf("index %d visited %d times, want exactly 1", i, count)
		}
	}
}

func TestRunParallelLoopEmptyRangeIsNoOp(t *testing.T) {
	called := false

	task := NewParallelLoopTask(5, 5, func(i int) { called = true })

	if err := RunParallelLoop(context.Background(), task); err != nil {
		t.Fatalf("RunParallelLoop() error = %v", err)
	}

	if called {
		t.Fatal("expected LoopWork never called for an empty range")
	}
}

func TestRunParallelLoopIgnoresNonLoopTasks(t *testing.T) {
	task := NewParallelTask(func() {})

	if err := RunParallelLoop(context.Background(), task); err != nil {
		t.Fatalf("RunParallelLoop() error = %v", err)
	}
}

func TestRunParallelLoopHandlesRangeSmallerThanCPUCount(t *testing.T) {
	var total int32

	task := NewParallelLoopTask(0, 1, func(i int) {
		atomic.AddInt32(&total, 1)
	})

	if err := RunParallelLoop(context.Background(), task); err != nil {
		t.Fatalf("RunParallelLoop() error = %v", err)
	}

	if total != 1 {
		t.Fatalf("expected LoopWork called once, got %d", total)
	}
}
