package bplustree

import (
	"vaultdb/rid"
	"vaultdb/storage/page"
)

// Iterator is a forward-only range scan over the tree's leaves, grounded
// on the teacher's storage_engine/access/indexfile_manager/bplustree/
// iterator.go for its pin-the-current-leaf shape and on
// original_source/src/storage/index/index_iterator.cpp's operator++ for
// how it crosses leaf boundaries via the sibling pointer.
type Iterator struct {
	tree  *BPlusTree
	ref   *nodeRef
	index int
}

// Begin returns an iterator positioned at the tree's smallest key.
func (t *BPlusTree) Begin() *Iterator {
	t.dummyLatch.RLock()
	if t.rootID == page.InvalidID {
		t.dummyLatch.RUnlock()
		return &Iterator{tree: t}
	}
	cur, err := t.fetchNode(t.rootID)
	if err != nil {
		t.dummyLatch.RUnlock()
		return &Iterator{tree: t}
	}
	cur.page.RLock()
	t.dummyLatch.RUnlock()

	for !cur.node.isLeaf {
		child, err := t.fetchNode(cur.node.children[0])
		if err != nil {
			t.rUnlatch(cur)
			t.unpin(cur, false)
			return &Iterator{tree: t}
		}
		child.page.RLock()
		t.rUnlatch(cur)
		t.unpin(cur, false)
		cur = child
	}
	return &Iterator{tree: t, ref: cur, index: 0}
}

// Seek returns an iterator positioned at the first key >= target, or an
// exhausted iterator if none exists.
func (t *BPlusTree) Seek(target []byte) *Iterator {
	t.dummyLatch.RLock()
	if t.rootID == page.InvalidID {
		t.dummyLatch.RUnlock()
		return &Iterator{tree: t}
	}
	cur, err := t.fetchNode(t.rootID)
	if err != nil {
		t.dummyLatch.RUnlock()
		return &Iterator{tree: t}
	}
	cur.page.RLock()
	t.dummyLatch.RUnlock()

	for !cur.node.isLeaf {
		child, err := t.fetchNode(cur.node.lookupChild(target, t.cmp))
		if err != nil {
			t.rUnlatch(cur)
			t.unpin(cur, false)
			return &Iterator{tree: t}
		}
		child.page.RLock()
		t.rUnlatch(cur)
		t.unpin(cur, false)
		cur = child
	}

	idx := cur.node.keyIndex(target, t.cmp)
	it := &Iterator{tree: t, ref: cur, index: idx}
	if idx >= cur.node.size() {
		it.advanceLeaf()
	}
	return it
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool {
	return it.ref != nil && it.index < it.ref.node.size()
}

// Key returns the current entry's key, or nil if the iterator is
// exhausted.
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.ref.node.keys[it.index]
}

// Value returns the current entry's RID, or the zero RID if the
// iterator is exhausted.
func (it *Iterator) Value() rid.RID {
	if !it.Valid() {
		return rid.RID{}
	}
	return it.ref.node.values[it.index]
}

// Next advances the iterator, crossing into the following leaf via its
// nextID sibling pointer once the current one is exhausted. Returns
// false once no entries remain.
func (it *Iterator) Next() bool {
	if it.ref == nil {
		return false
	}
	it.index++
	if it.index < it.ref.node.size() {
		return true
	}
	it.advanceLeaf()
	return it.Valid()
}

// advanceLeaf releases the current leaf and latches the next one along
// the sibling chain, skipping past any leaf a concurrent delete has
// emptied but not yet coalesced away.
func (it *Iterator) advanceLeaf() {
	for {
		nextID := it.ref.node.nextID
		it.tree.rUnlatch(it.ref)
		it.tree.unpin(it.ref, false)
		it.ref = nil
		if nextID == page.InvalidID {
			return
		}

		next, err := it.tree.fetchNode(nextID)
		if err != nil {
			return
		}
		next.page.RLock()
		it.ref = next
		it.index = 0
		if next.node.size() > 0 {
			return
		}
	}
}

// Close releases the iterator's pinned leaf, if any. Safe to call more
// than once, and safe to skip once the iterator has run to exhaustion.
func (it *Iterator) Close() {
	if it.ref != nil {
		it.tree.rUnlatch(it.ref)
		it.tree.unpin(it.ref, false)
		it.ref = nil
	}
}
