package trace

import (
	"testing"
	"time"

	"github.com/axeberg/axebergos/kernel/ids"
)

func TestRecordRequiresEnable(t *testing.T) {
	r := NewRing(4)
	r.Record("open", ids.Pid(1), "path=/tmp", "", 5)
	if len(r.Events()) != 0 {
		t.Fatalf("Record before Enable should be a no-op")
	}
	r.Enable()
	r.Record("open", ids.Pid(1), "path=/tmp", "", 5)
	if len(r.Events()) != 1 {
		t.Fatalf("expected 1 event after Enable")
	}
}

func TestRingWrapsAtCapacity(t *testing.T) {
	r := NewRing(3)
	r.Enable()
	for i := 0; i < 5; i++ {
		r.Record("tick", ids.Pid(1), "", "", 0)
	}
	events := r.Events()
	if len(events) != 3 {
		t.Fatalf("expected ring capped at 3 events, got %d", len(events))
	}
	if events[0].Seq != 3 || events[2].Seq != 5 {
		t.Fatalf("expected oldest-to-newest seq 3..5, got %d..%d", events[0].Seq, events[2].Seq)
	}
}

func TestSummaryCounters(t *testing.T) {
	r := NewRing(16)
	r.Enable()
	r.Record("read", ids.Pid(1), "", "", 0)
	r.Record("read", ids.Pid(1), "", "", 0)
	r.Record("write", ids.Pid(1), "", "", 0)
	s := r.Summary()
	if s.Counters["read"] != 2 || s.Counters["write"] != 1 {
		t.Fatalf("unexpected counters: %+v", s.Counters)
	}
	if s.TotalEvents != 3 {
		t.Fatalf("TotalEvents = %d, want 3", s.TotalEvents)
	}
}

func TestBreakpointPausesUntilContinue(t *testing.T) {
	r := NewRing(16)
	r.Enable()
	r.SetBreakpoint("exit")

	done := make(chan struct{})
	go func() {
		r.Record("exit", ids.Pid(2), "", "", 0)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Record returned before Continue was called")
	case <-time.After(30 * time.Millisecond):
	}

	r.Continue()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Record did not unblock after Continue")
	}
}

func TestResetClearsEventsAndCounters(t *testing.T) {
	r := NewRing(16)
	r.Enable()
	r.Record("open", ids.Pid(1), "", "", 0)
	r.Reset()
	if len(r.Events()) != 0 {
		t.Fatalf("expected no events after Reset")
	}
	if r.Summary().TotalEvents != 0 {
		t.Fatalf("expected TotalEvents 0 after Reset")
	}
}
