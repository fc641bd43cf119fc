package pipe

import (
	"testing"

	kerrors "github.com/axeberg/axebergos/errors"
)

func TestPipeReadWriteEOF(t *testing.T) {
	r, w := New(DefaultCapacity)

	n, err := w.Write([]byte("X"))
	if err != nil || n != 1 {
		t.Fatalf("Write = (%d, %v), want (1, nil)", n, err)
	}

	buf := make([]byte, 3)
	n, err = r.Read(buf)
	if err != nil || n != 1 || string(buf[:1]) != "X" {
		t.Fatalf("Read = (%d, %v), want (1, nil) with %q", n, err, buf[:n])
	}

	w.Destroy()
	n, err = r.Read(buf)
	if err != nil || n != 0 {
		t.Fatalf("Read after writer close = (%d, %v), want (0, nil) EOF", n, err)
	}
}

func TestPipeFullRingSuspendsThenResumes(t *testing.T) {
	r, w := New(4096)
	big := make([]byte, 4097)
	for i := range big {
		big[i] = byte(i)
	}

	n, err := w.Write(big)
	if n != 4096 || err != kerrors.ErrWouldBlock {
		t.Fatalf("Write of 4097B into 4KiB ring = (%d, %v), want (4096, WouldBlock)", n, err)
	}

	small := make([]byte, 1)
	if _, err := r.Read(small); err != nil {
		t.Fatalf("Read: %v", err)
	}

	n, err = w.Write(big[4096:])
	if n != 1 || err != nil {
		t.Fatalf("Write of remaining byte after drain = (%d, %v), want (1, nil)", n, err)
	}
}

func TestPipeBrokenPipeNoReaders(t *testing.T) {
	r, w := New(16)
	r.Destroy()
	if _, err := w.Write([]byte("hi")); err != kerrors.ErrBrokenPipe {
		t.Fatalf("Write with no readers = %v, want BrokenPipe", err)
	}
}

func TestFifoOpenOrdering(t *testing.T) {
	tbl := NewFifoTable()
	tbl.Create("/tmp/f")

	if _, err := tbl.OpenWrite("/tmp/f", true); err != kerrors.ErrWouldBlock {
		t.Fatalf("non-blocking OpenWrite with no reader = %v, want WouldBlock", err)
	}

	if _, err := tbl.OpenRead("/tmp/f", true); err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	if _, err := tbl.OpenWrite("/tmp/f", true); err != nil {
		t.Fatalf("OpenWrite after reader present: %v", err)
	}
}
