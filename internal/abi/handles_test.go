package abi

import "testing"

func TestHandleTableInsertGetRemove(t *testing.T) {
	ht := newHandleTable[string]()

	h1 := ht.insert("first")
	h2 := ht.insert("second")

	if h1 == h2 {
		t.Fatalf("expected distinct handles, got %d and %d", h1, h2)
	}

	if h1 == 0 || h2 == 0 {
		t.Fatalf("handle 0 must never be issued, got %d and %d", h1, h2)
	}

	v, ok := ht.get(h1)
	if !ok || v != "first" {
		t.Fatalf("get(%d) = %q, %v; want \"first\", true", h1, v, ok)
	}

	removed, ok := ht.remove(h1)
	if !ok || removed != "first" {
		t.Fatalf("remove(%d) = %q, %v; want \"first\", true", h1, removed, ok)
	}

	if _, ok := ht.get(h1); ok {
		t.Fatalf("get(%d) succeeded after remove", h1)
	}

	if _, ok := ht.get(h2); !ok {
		t.Fatalf("unrelated handle %d was disturbed by removing %d", h2, h1)
	}
}

func TestHandleTableUnknownHandleMisses(t *testing.T) {
	ht := newHandleTable[int]()

	if _, ok := ht.get(999); ok {
		t.Fatal("get on unknown handle reported ok")
	}

	if _, ok := ht.remove(999); ok {
		t.Fatal("remove on unknown handle reported ok")
	}
}
