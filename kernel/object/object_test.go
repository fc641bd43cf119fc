package object

import (
	"testing"

	"github.com/axeberg/axebergos/kernel/ids"
)

type fakeObject struct {
	kind     Kind
	destroys *int
}

func (f *fakeObject) Kind() Kind { return f.kind }
func (f *fakeObject) Destroy()   { *f.destroys++ }

func TestInsertAndGet(t *testing.T) {
	tbl := NewTable()
	var destroys int
	obj := &fakeObject{kind: KindPipe, destroys: &destroys}

	h := tbl.Insert(obj)
	got, err := tbl.Get(h)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != obj {
		t.Error("Get did not return the inserted object")
	}
	if rc, ok := tbl.Refcount(h); !ok || rc != 1 {
		t.Errorf("Refcount = (%d, %v), want (1, true)", rc, ok)
	}
}

func TestRetainRelease(t *testing.T) {
	tbl := NewTable()
	var destroys int
	obj := &fakeObject{kind: KindFile, destroys: &destroys}
	h := tbl.Insert(obj)

	if err := tbl.Retain(h); err != nil {
		t.Fatalf("Retain: %v", err)
	}
	if rc, _ := tbl.Refcount(h); rc != 2 {
		t.Errorf("Refcount after retain = %d, want 2", rc)
	}

	destroyed, err := tbl.Release(h)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if destroyed {
		t.Error("object destroyed too early")
	}
	if destroys != 0 {
		t.Error("Destroy called before refcount reached zero")
	}

	destroyed, err = tbl.Release(h)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !destroyed {
		t.Error("object should be destroyed when refcount hits zero")
	}
	if destroys != 1 {
		t.Errorf("Destroy called %d times, want 1", destroys)
	}
}

func TestReleaseTwiceFails(t *testing.T) {
	tbl := NewTable()
	var destroys int
	obj := &fakeObject{kind: KindFile, destroys: &destroys}
	h := tbl.Insert(obj)

	if _, err := tbl.Release(h); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if _, err := tbl.Release(h); err == nil {
		t.Error("second release on a destroyed handle should fail with BadFd")
	}
}

func TestGetOnUnknownHandleFails(t *testing.T) {
	tbl := NewTable()
	if _, err := tbl.Get(ids.Handle(9999)); err == nil {
		t.Error("Get on unknown handle should fail")
	}
}

func TestHandlesNeverReused(t *testing.T) {
	tbl := NewTable()
	var destroys int
	obj1 := &fakeObject{kind: KindFile, destroys: &destroys}
	obj2 := &fakeObject{kind: KindFile, destroys: &destroys}

	h1 := tbl.Insert(obj1)
	tbl.Release(h1)
	h2 := tbl.Insert(obj2)

	if h1 == h2 {
		t.Error("handle was reused after release")
	}
}
