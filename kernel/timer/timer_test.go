package timer

import (
	"testing"
	"time"

	"github.com/axeberg/axebergos/kernel/ids"
)

func TestFireOrderNonDecreasing(t *testing.T) {
	q := NewQueue()
	base := time.Unix(0, 0)
	q.Set(base, 50*time.Millisecond, ids.TaskId(1)) // A
	q.Set(base, 10*time.Millisecond, ids.TaskId(2)) // B
	q.Set(base, 30*time.Millisecond, ids.TaskId(3)) // C

	fired := q.Tick(base.Add(60 * time.Millisecond))
	if len(fired) != 3 {
		t.Fatalf("fired = %d entries, want 3", len(fired))
	}
	want := []ids.TaskId{2, 3, 1} // B, C, A
	for i, f := range fired {
		if f.TaskId != want[i] {
			t.Errorf("fired[%d].TaskId = %v, want %v", i, f.TaskId, want[i])
		}
	}
}

func TestCancelledTimerNeverFires(t *testing.T) {
	q := NewQueue()
	base := time.Unix(0, 0)
	id := q.Set(base, 10*time.Millisecond, ids.TaskId(1))
	q.Cancel(id)

	fired := q.Tick(base.Add(time.Second))
	if len(fired) != 0 {
		t.Errorf("cancelled timer fired: %v", fired)
	}
}

func TestIntervalTimerReinserts(t *testing.T) {
	q := NewQueue()
	base := time.Unix(0, 0)
	q.Interval(base, 10*time.Millisecond, ids.TaskId(1))

	fired := q.Tick(base.Add(35 * time.Millisecond))
	if len(fired) != 3 {
		t.Fatalf("fired = %d, want 3 ticks in 35ms at 10ms period", len(fired))
	}
	if q.Len() != 1 {
		t.Errorf("interval timer should still have one pending entry, got %d", q.Len())
	}
}

func TestTickOnlyFiresDueEntries(t *testing.T) {
	q := NewQueue()
	base := time.Unix(0, 0)
	q.Set(base, 100*time.Millisecond, ids.TaskId(1))

	fired := q.Tick(base.Add(10 * time.Millisecond))
	if len(fired) != 0 {
		t.Error("a timer 90ms in the future should not fire yet")
	}
}
