package shm

import "testing"

func TestAttachSyncRefresh(t *testing.T) {
	tbl := NewTable()
	id, err := tbl.Get(7, 16, true, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	a, err := tbl.Attach(id)
	if err != nil {
		t.Fatalf("Attach (a): %v", err)
	}
	b, err := tbl.Attach(id)
	if err != nil {
		t.Fatalf("Attach (b): %v", err)
	}

	copy(a, []byte("hello"))
	if err := tbl.Sync(id, a); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := tbl.Refresh(id, b); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if string(b[:5]) != "hello" {
		t.Fatalf("b after refresh = %q, want hello", b[:5])
	}

	if err := tbl.Detach(id); err != nil {
		t.Fatalf("Detach (a): %v", err)
	}
	if err := tbl.Detach(id); err != nil {
		t.Fatalf("Detach (b): %v", err)
	}
	if _, err := tbl.Size(id); err == nil {
		t.Fatal("segment should be destroyed once attach count reaches zero")
	}
}
