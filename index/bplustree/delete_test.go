package bplustree

import "testing"

func TestRemoveOnEmptyTreeIsNoop(t *testing.T) {
	tree, _ := newTestTree(t, 10, 4, 5)
	if err := tree.Remove(keyFor(0)); err != nil {
		t.Fatalf("Remove on empty tree: %v", err)
	}
}

func TestRemoveMissingKeyIsNoop(t *testing.T) {
	tree, _ := newTestTree(t, 10, 4, 5)
	for i := 0; i < 5; i++ {
		if _, err := tree.Insert(keyFor(i), valueFor(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := tree.Remove(keyFor(99)); err != nil {
		t.Fatalf("Remove(missing): %v", err)
	}
	assertInOrder(t, tree, 0, 5)
}

func TestInsertThenRemoveSingleKeyEmptiesTree(t *testing.T) {
	tree, _ := newTestTree(t, 10, 4, 5)
	if _, err := tree.Insert(keyFor(1), valueFor(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Remove(keyFor(1)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !tree.IsEmpty() {
		t.Fatal("expected tree to be empty after removing its only key")
	}
	_, found, err := tree.GetValue(keyFor(1))
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if found {
		t.Fatal("expected key to be gone")
	}
}

// TestRemoveAllKeysOneByOne drives the tree through split, coalesce, and
// finally an empty root, checking every intermediate state stays
// internally consistent (spec §4.3.3's underflow handling end to end).
func TestRemoveAllKeysOneByOne(t *testing.T) {
	tree, _ := newTestTree(t, 20, 4, 5)

	const n = 40
	for i := 0; i < n; i++ {
		if _, err := tree.Insert(keyFor(i), valueFor(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		if err := tree.Remove(keyFor(i)); err != nil {
			t.Fatalf("Remove(%d): %v", i, err)
		}
		if _, found, err := tree.GetValue(keyFor(i)); err != nil || found {
			t.Fatalf("GetValue(%d) after remove: found=%v err=%v", i, found, err)
		}
		assertInOrder(t, tree, i+1, n)
	}

	if !tree.IsEmpty() {
		t.Fatal("expected tree to be empty after removing every key")
	}
}

// TestRemoveTriggersCoalesceAcrossSiblings inserts enough keys to build a
// multi-level tree, then removes a contiguous run in the middle so at
// least one leaf underflows and must coalesce or redistribute with a
// sibling, per coalesceOrRedistribute's two branches.
func TestRemoveTriggersCoalesceAcrossSiblings(t *testing.T) {
	tree, _ := newTestTree(t, 20, 4, 5)

	const n = 30
	for i := 0; i < n; i++ {
		if _, err := tree.Insert(keyFor(i), valueFor(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	// Remove a run from the middle, which forces the leaves that lose
	// most of their entries to either redistribute from a neighbor or
	// merge into one.
	for i := 10; i < 20; i++ {
		if err := tree.Remove(keyFor(i)); err != nil {
			t.Fatalf("Remove(%d): %v", i, err)
		}
	}

	for i := 0; i < 10; i++ {
		if _, found, err := tree.GetValue(keyFor(i)); err != nil || !found {
			t.Fatalf("GetValue(%d): found=%v err=%v", i, found, err)
		}
	}
	for i := 10; i < 20; i++ {
		if _, found, err := tree.GetValue(keyFor(i)); err != nil || found {
			t.Fatalf("GetValue(%d): expected gone, found=%v err=%v", i, found, err)
		}
	}
	for i := 20; i < n; i++ {
		if _, found, err := tree.GetValue(keyFor(i)); err != nil || !found {
			t.Fatalf("GetValue(%d): found=%v err=%v", i, found, err)
		}
	}

	it := tree.Begin()
	defer it.Close()
	for i := 0; i < 10; i++ {
		if !it.Valid() || string(it.Key()) != string(keyFor(i)) {
			t.Fatalf("expected %s at position %d, got valid=%v key=%s", keyFor(i), i, it.Valid(), it.Key())
		}
		it.Next()
	}
	for i := 20; i < n; i++ {
		if !it.Valid() || string(it.Key()) != string(keyFor(i)) {
			t.Fatalf("expected %s after the removed run, got valid=%v key=%s", keyFor(i), it.Valid(), it.Key())
		}
		it.Next()
	}
	if it.Valid() {
		t.Fatalf("expected iterator exhausted, got key %s", it.Key())
	}
}

// TestInsertRemoveInsertReusesTree makes sure a tree that has shrunk back
// to a single leaf (or empty) still accepts fresh inserts.
func TestInsertRemoveInsertReusesTree(t *testing.T) {
	tree, _ := newTestTree(t, 10, 4, 5)

	for i := 0; i < 8; i++ {
		if _, err := tree.Insert(keyFor(i), valueFor(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := 0; i < 8; i++ {
		if err := tree.Remove(keyFor(i)); err != nil {
			t.Fatalf("Remove(%d): %v", i, err)
		}
	}
	if !tree.IsEmpty() {
		t.Fatal("expected empty tree")
	}

	for i := 100; i < 105; i++ {
		if _, err := tree.Insert(keyFor(i), valueFor(i)); err != nil {
			t.Fatalf("Insert(%d) after drain: %v", i, err)
		}
	}
	assertInOrder(t, tree, 100, 105)
}
