package exec2

import (
	"context"
	"testing"
	"time"
)

type countingFuture struct {
	remaining int
}

func (f *countingFuture) Poll(w *Waker) Poll {
	if f.remaining <= 0 {
		return Ready
	}
	f.remaining--
	w.Wake()
	return Pending
}

func TestEverySpawnedTaskRunsExactlyOnce(t *testing.T) {
	ex := NewExecutor(4)
	const n = 50
	for i := 0; i < n; i++ {
		ex.Spawn(&countingFuture{remaining: i % 3})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go ex.Run(ctx)

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(ex.ExecLog()) == n {
			break
		}
		time.Sleep(time.Millisecond)
	}

	log := ex.ExecLog()
	if len(log) != n {
		t.Fatalf("ExecLog has %d entries, want %d", len(log), n)
	}
	seen := make(map[uint64]bool)
	for _, id := range log {
		if seen[uint64(id)] {
			t.Fatalf("task %d appears more than once in exec log", id)
		}
		seen[uint64(id)] = true
	}
}

func TestDequeStealing(t *testing.T) {
	d := newDeque(4)
	for i := 0; i < 10; i++ {
		d.pushBottom(i)
	}
	stolen, ok := d.steal()
	if !ok || stolen.(int) != 0 {
		t.Fatalf("steal() = (%v, %v), want (0, true) — oldest item first", stolen, ok)
	}
	popped, ok := d.popBottom()
	if !ok || popped.(int) != 9 {
		t.Fatalf("popBottom() = (%v, %v), want (9, true) — newest item first", popped, ok)
	}
}
