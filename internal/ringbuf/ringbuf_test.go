package ringbuf

import (
	"reflect"
	"testing"
)

func TestBufferWrapsAndPreservesOrder(t *testing.T) {
	b := New(3)
	b.Add(ErrorEntry{Message: "a"})
	b.Add(ErrorEntry{Message: "b"})
	if got := b.Entries(); len(got) != 2 {
		t.Fatalf("expected 2 entries before wrap, got %d", len(got))
	}

	b.Add(ErrorEntry{Message: "c"})
	b.Add(ErrorEntry{Message: "d"})

	got := b.Entries()
	want := []string{"b", "c", "d"}
	var gotMsgs []string
	for _, e := range got {
		gotMsgs = append(gotMsgs, e.Message)
	}
	if !reflect.DeepEqual(gotMsgs, want) {
		t.Errorf("expected oldest-evicted order %v, got %v", want, gotMsgs)
	}
}

func TestEmptyBufferReturnsNoEntries(t *testing.T) {
	b := New(4)
	if len(b.Entries()) != 0 {
		t.Error("expected no entries from a fresh buffer")
	}
}
