package bplustree

import (
	"vaultdb/rid"
	"vaultdb/storage/page"
)

// Insert adds (key, value), returning false if key is already present.
// Tries the optimistic path first (spec §4.3.2 Phase A) and falls back
// to the pessimistic, write-latch-crabbed path (Phase B) when the target
// leaf turns out unsafe.
func (t *BPlusTree) Insert(key []byte, value rid.RID) (bool, error) {
	ok, retry, err := t.optimisticInsert(key, value)
	if err != nil || !retry {
		return ok, err
	}
	return t.pessimisticInsert(key, value)
}

// optimisticInsert descends holding only one ancestor's read latch at a
// time (release parent once the child is latched, per spec §4.3.1/§4.3.2),
// write-latches the leaf alone, and inserts if the leaf is safe. Returns
// retry=true when the leaf is unsafe and the caller must go pessimistic.
func (t *BPlusTree) optimisticInsert(key []byte, value rid.RID) (ok bool, retry bool, err error) {
	t.dummyLatch.RLock()
	if t.rootID == page.InvalidID {
		t.dummyLatch.RUnlock()
		return false, true, nil
	}

	cur, err := t.fetchNode(t.rootID)
	if err != nil {
		t.dummyLatch.RUnlock()
		return false, false, err
	}
	if cur.node.isLeaf {
		cur.page.Lock()
	} else {
		cur.page.RLock()
	}
	t.dummyLatch.RUnlock()

	for !cur.node.isLeaf {
		childID := cur.node.lookupChild(key, t.cmp)
		child, ferr := t.fetchNode(childID)
		if ferr != nil {
			t.rUnlatch(cur)
			t.unpin(cur, false)
			return false, false, ferr
		}
		if child.node.isLeaf {
			child.page.Lock()
		} else {
			child.page.RLock()
		}
		t.rUnlatch(cur)
		t.unpin(cur, false)
		cur = child
	}

	if !cur.node.isSafeForInsert() {
		t.wUnlatch(cur)
		t.unpin(cur, false)
		return false, true, nil
	}

	before := cur.node.size()
	after := cur.node.insertLeaf(key, value, t.cmp)
	dup := after == before
	t.wUnlatch(cur)
	t.unpin(cur, !dup)
	return !dup, false, nil
}

// pessimisticInsert write-latch-crabs from the dummy root latch down,
// releasing ancestors as soon as a node is proven safe, splitting on
// overflow and propagating up to a possible new root, per spec §4.3.2
// Phase B, grounded on original_source/src/storage/index/b_plus_tree.cpp's
// concurrentInsert/Split/InsertIntoParent.
func (t *BPlusTree) pessimisticInsert(key []byte, value rid.RID) (bool, error) {
	t.dummyLatch.Lock()
	dummyHeld := true
	releaseDummy := func() {
		if dummyHeld {
			t.dummyLatch.Unlock()
			dummyHeld = false
		}
	}

	if t.rootID == page.InvalidID {
		root, err := t.newNode(true, page.InvalidID)
		if err != nil {
			releaseDummy()
			return false, err
		}
		root.node.insertLeaf(key, value, t.cmp)
		t.rootID = root.page.ID
		if err := t.persistRoot(); err != nil {
			t.unpin(root, true)
			releaseDummy()
			return false, err
		}
		t.unpin(root, true)
		releaseDummy()
		return true, nil
	}

	root, err := t.fetchNode(t.rootID)
	if err != nil {
		releaseDummy()
		return false, err
	}
	root.page.Lock()
	held := []*nodeRef{root}
	if root.node.isSafeForInsert() {
		releaseDummy()
	}

	cur := root
	for !cur.node.isLeaf {
		childID := cur.node.lookupChild(key, t.cmp)
		child, ferr := t.fetchNode(childID)
		if ferr != nil {
			t.releaseHeld(held, false)
			releaseDummy()
			return false, ferr
		}
		child.page.Lock()
		if child.node.isSafeForInsert() {
			t.releaseHeld(held, false)
			held = held[:0]
			releaseDummy()
		}
		held = append(held, child)
		cur = child
	}

	leaf := cur
	before := leaf.node.size()
	after := leaf.node.insertLeaf(key, value, t.cmp)
	if after == before {
		t.releaseHeld(held, false)
		releaseDummy()
		return false, nil
	}

	var splitErr error
	if after >= leaf.node.maxSize {
		splitErr = t.propagateSplit(held)
	}
	t.releaseHeld(held, true)
	releaseDummy()
	return splitErr == nil, splitErr
}

func (t *BPlusTree) releaseHeld(held []*nodeRef, dirty bool) {
	for _, h := range held {
		t.wUnlatch(h)
		t.unpin(h, dirty)
	}
}

// splitNode allocates a right sibling for node, moves node's right half
// into it, and returns the separator key to insert into node's parent
// (spec §4.3.2 "Split").
func (t *BPlusTree) splitNode(node *nodeRef) (*nodeRef, []byte, error) {
	right, err := t.newNode(node.node.isLeaf, node.node.parentID)
	if err != nil {
		return nil, nil, err
	}
	sep := node.node.moveHalfTo(right.node)

	if !right.node.isLeaf {
		if err := t.reparentChildren(right); err != nil {
			t.unpin(right, true)
			return nil, nil, err
		}
	}
	return right, sep, nil
}

// reparentChildren rewrites parentID on every child of an internal node
// that just received a batch of moved children, per spec §4.3.2 step 4.
func (t *BPlusTree) reparentChildren(parent *nodeRef) error {
	for _, childID := range parent.node.children {
		if childID == page.InvalidID {
			continue
		}
		child, err := t.fetchNode(childID)
		if err != nil {
			return err
		}
		child.node.parentID = parent.page.ID
		t.unpin(child, true)
	}
	return nil
}

// propagateSplit walks held (root-to-leaf, all write-latched) from the
// leaf upward, splitting each overflowing node and inserting its
// separator into its parent, creating a new root if the split reaches
// the top of held. Every node in held is already latched by the caller;
// propagateSplit only allocates and unpins the new right siblings (and,
// when the split reaches the top of held, the new root) it creates.
func (t *BPlusTree) propagateSplit(held []*nodeRef) error {
	i := len(held) - 1
	node := held[i]
	for {
		right, sep, err := t.splitNode(node)
		if err != nil {
			return err
		}
		rightID := right.page.ID

		if i == 0 {
			newRoot, err := t.newNode(false, page.InvalidID)
			if err != nil {
				t.unpin(right, true)
				return err
			}
			newRoot.node.populateRoot(node.page.ID, sep, rightID)
			node.node.parentID = newRoot.page.ID
			right.node.parentID = newRoot.page.ID
			t.unpin(right, true)
			t.rootID = newRoot.page.ID
			if err := t.persistRoot(); err != nil {
				t.unpin(newRoot, true)
				return err
			}
			t.unpin(newRoot, true)
			return nil
		}

		t.unpin(right, true)
		parent := held[i-1]
		newSize := parent.node.insertChildAfter(node.page.ID, sep, rightID)
		if newSize <= parent.node.maxSize {
			return nil
		}
		i--
		node = held[i]
	}
}
