package bplustree

import "testing"

func TestBeginOnEmptyTreeIsExhausted(t *testing.T) {
	tree, _ := newTestTree(t, 10, 4, 5)
	it := tree.Begin()
	defer it.Close()

	if it.Valid() {
		t.Fatal("expected an empty tree's iterator to be invalid")
	}
	if it.Next() {
		t.Fatal("expected Next on an exhausted iterator to stay false")
	}
	if it.Key() != nil {
		t.Fatalf("expected nil Key on exhausted iterator, got %v", it.Key())
	}
}

func TestSeekExactMatch(t *testing.T) {
	tree, _ := newTestTree(t, 20, 4, 5)
	const n = 20
	for i := 0; i < n; i++ {
		if _, err := tree.Insert(keyFor(i), valueFor(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	it := tree.Seek(keyFor(10))
	defer it.Close()
	if !it.Valid() || string(it.Key()) != string(keyFor(10)) {
		t.Fatalf("expected to land on key %s, got valid=%v key=%s", keyFor(10), it.Valid(), it.Key())
	}
}

// TestSeekBetweenKeysLandsOnNextGreater exercises the "target absent"
// path: Seek must return the first key >= target.
func TestSeekBetweenKeysLandsOnNextGreater(t *testing.T) {
	tree, _ := newTestTree(t, 20, 4, 5)
	for _, i := range []int{0, 2, 4, 6, 8, 10} {
		if _, err := tree.Insert(keyFor(i), valueFor(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	it := tree.Seek(keyFor(5))
	defer it.Close()
	if !it.Valid() || string(it.Key()) != string(keyFor(6)) {
		t.Fatalf("expected to land on key %s, got valid=%v key=%s", keyFor(6), it.Valid(), it.Key())
	}
}

// TestSeekPastLastKeyIsExhausted seeks a target greater than every key,
// so Seek lands past the tail of the last leaf, finds no sibling through
// nextID (Iterator.advanceLeaf), and returns an exhausted iterator.
func TestSeekPastLastKeyIsExhausted(t *testing.T) {
	tree, _ := newTestTree(t, 20, 4, 5)
	const n = 30
	for i := 0; i < n; i++ {
		if _, err := tree.Insert(keyFor(i), valueFor(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	it := tree.Seek(keyFor(n))
	defer it.Close()
	if it.Valid() {
		t.Fatalf("expected Seek past the last key to be exhausted, got key %s", it.Key())
	}
}

func TestNextAdvancesAcrossMultipleLeaves(t *testing.T) {
	tree, _ := newTestTree(t, 20, 4, 5)
	const n = 50
	for i := 0; i < n; i++ {
		if _, err := tree.Insert(keyFor(i), valueFor(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	it := tree.Begin()
	defer it.Close()
	count := 0
	for it.Valid() {
		if string(it.Key()) != string(keyFor(count)) {
			t.Fatalf("at position %d: expected %s, got %s", count, keyFor(count), it.Key())
		}
		count++
		it.Next()
	}
	if count != n {
		t.Fatalf("expected to iterate %d keys, got %d", n, count)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	tree, _ := newTestTree(t, 10, 4, 5)
	if _, err := tree.Insert(keyFor(1), valueFor(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	it := tree.Begin()
	it.Close()
	it.Close()
}
