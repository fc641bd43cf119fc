package exec1

import (
	"time"

	kerrors "github.com/axeberg/axebergos/errors"
)

// TimeoutFuture races inner against a deadline. If inner resolves first,
// its Ready value wins. If the deadline passes first, Poll returns Ready
// with Err set to a timeout error and inner is dropped — never polled
// again.
type TimeoutFuture struct {
	inner    Future
	deadline time.Time
	Err      error
}

// WithTimeout wraps inner so it will time out at deadline.
func WithTimeout(inner Future, deadline time.Time) *TimeoutFuture {
	return &TimeoutFuture{inner: inner, deadline: deadline}
}

// Poll implements Future.
func (t *TimeoutFuture) Poll(w *Waker) Poll {
	if time.Now().After(t.deadline) {
		t.Err = kerrors.New(kerrors.Interrupted, "timeout", "deadline exceeded")
		t.inner = nil
		return Ready
	}
	if t.inner == nil {
		return Ready
	}
	if t.inner.Poll(w) == Ready {
		return Ready
	}
	return Pending
}
