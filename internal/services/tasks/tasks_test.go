// tasks_test.go — Tests for the background task runner: execution,
// error containment, queue overflow, and graceful shutdown.
package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunnerExecutesJobs(t *testing.T) {
	r := NewRunner(2, 10)
	r.Start()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		err := r.Submit(Job{
			Name: "count",
			Run: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
		})
		if err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
	}

	r.Stop()

	if got := ran.Load(); got != 5 {
		t.Errorf("ran %d jobs, want 5", got)
	}
}

func TestRunnerContainsFailuresAndPanics(t *testing.T) {
	r := NewRunner(1, 10)
	r.Start()

	var after atomic.Bool
	r.Submit(Job{Name: "fails", Run: func(ctx context.Context) error {
		return errors.New("boom")
	}})
	r.Submit(Job{Name: "panics", Run: func(ctx context.Context) error {
		panic("worse boom")
	}})
	r.Submit(Job{Name: "still runs", Run: func(ctx context.Context) error {
		after.Store(true)
		return nil
	}})

	r.Stop()

	if !after.Load() {
		t.Error("a failing or panicking job must not take the worker down")
	}
}

func TestRunnerRejectsWhenQueueFull(t *testing.T) {
	// One worker, capacity one, and the worker is stuck on a blocker job:
	// the first submit fills the queue, the second must be dropped.
	r := NewRunner(1, 1)
	r.Start()
	defer r.Stop()

	block := make(chan struct{})
	defer close(block)
	r.Submit(Job{Name: "blocker", Run: func(ctx context.Context) error {
		<-block
		return nil
	}})

	// Give the worker a moment to pick up the blocker.
	deadline := time.After(time.Second)
	for r.QueueSize() != 0 {
		select {
		case <-deadline:
			t.Fatal("worker never picked up the blocker job")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := r.Submit(Job{Name: "fills queue", Run: func(ctx context.Context) error { return nil }}); err != nil {
		t.Fatalf("Submit() into empty queue failed: %v", err)
	}
	if err := r.Submit(Job{Name: "overflow", Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Error("Submit() into full queue should fail")
	}
}

func TestSubmitAfterStopIsRefused(t *testing.T) {
	r := NewRunner(1, 10)
	r.Start()
	r.Stop()

	// Late submissions get an error, never a send on a closed channel.
	err := r.Submit(Job{Name: "too late", Run: func(ctx context.Context) error { return nil }})
	if err == nil {
		t.Error("Submit() after Stop() should fail")
	}

	// Stop is idempotent.
	r.Stop()
}

func TestSubmitRacingStopNeverPanics(t *testing.T) {
	r := NewRunner(2, 4)
	r.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			r.Submit(Job{Name: "racer", Run: func(ctx context.Context) error { return nil }})
		}
	}()

	r.Stop()
	<-done
}

func TestStopDrainsQueuedJobs(t *testing.T) {
	r := NewRunner(1, 10)
	r.Start()

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		r.Submit(Job{Name: "queued", Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}})
	}

	r.Stop()

	if got := ran.Load(); got != 3 {
		t.Errorf("Stop() drained %d jobs, want 3", got)
	}
}
