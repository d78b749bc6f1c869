package loop

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestLoop() *Loop {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDrain_FIFO(t *testing.T) {
	l := newTestLoop()
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		l.Post(func() { order = append(order, i) })
	}

	if n := l.Drain(); n != 3 {
		t.Fatalf("expected 3 tasks, ran %d", n)
	}
	if len(order) != 3 || order[0] != 1 || order[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", order)
	}
}

func TestDrain_TasksPostedWhileDraining(t *testing.T) {
	l := newTestLoop()
	var order []string
	l.Post(func() {
		order = append(order, "outer")
		l.Post(func() { order = append(order, "deferred") })
		order = append(order, "outer-end")
	})

	l.Drain()

	want := []string{"outer", "outer-end", "deferred"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestDrain_PanicDoesNotStopQueue(t *testing.T) {
	l := newTestLoop()
	ran := false
	l.Post(func() { panic("boom") })
	l.Post(func() { ran = true })

	l.Drain()

	if !ran {
		t.Fatal("task after a panicking task should still run")
	}
	if l.Pending() != 0 {
		t.Fatalf("expected empty queue, %d pending", l.Pending())
	}
}

func TestRun(t *testing.T) {
	l := newTestLoop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	got := make(chan int, 1)
	l.Post(func() { got <- 42 })

	select {
	case v := <-got:
		if v != 42 {
			t.Fatalf("unexpected value %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("posted task never ran")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
