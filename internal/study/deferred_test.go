package study

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDeferredRuns(t *testing.T) {
	var d Deferred
	done := make(chan struct{})
	d.Schedule(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not run")
	}
	if d.Pending() {
		t.Fatal("nothing should be pending after the callback ran")
	}
}

func TestDeferredSupersedes(t *testing.T) {
	var d Deferred
	var first, second atomic.Int32
	done := make(chan struct{})

	d.Schedule(20*time.Millisecond, func() { first.Add(1) })
	d.Schedule(40*time.Millisecond, func() {
		second.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second callback did not run")
	}
	time.Sleep(30 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatal("superseded callback ran")
	}
	if second.Load() != 1 {
		t.Fatalf("second callback ran %d times", second.Load())
	}
}

func TestDeferredCancel(t *testing.T) {
	var d Deferred
	var ran atomic.Bool
	d.Schedule(10*time.Millisecond, func() { ran.Store(true) })

	if !d.Cancel() {
		t.Fatal("expected a pending callback to cancel")
	}
	if d.Cancel() {
		t.Fatal("second cancel should report nothing pending")
	}
	time.Sleep(40 * time.Millisecond)
	if ran.Load() {
		t.Fatal("cancelled callback ran")
	}
}
