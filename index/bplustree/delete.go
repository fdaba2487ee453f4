package bplustree

import "vaultdb/storage/page"

// Remove deletes key if present; a no-op if absent, per spec §4.3.3.
func (t *BPlusTree) Remove(key []byte) error {
	handled, err := t.optimisticDelete(key)
	if err != nil || handled {
		return err
	}
	return t.pessimisticDelete(key)
}

// optimisticDelete mirrors optimisticInsert: single-ancestor read-latch
// crabbing, write-latch the target leaf alone, remove in place if safe.
// A leaf that is also the tree root always defers to the pessimistic
// path, since any underflow there mutates rootID under the dummy latch.
func (t *BPlusTree) optimisticDelete(key []byte) (handled bool, err error) {
	t.dummyLatch.RLock()
	if t.rootID == page.InvalidID {
		t.dummyLatch.RUnlock()
		return true, nil
	}

	cur, err := t.fetchNode(t.rootID)
	if err != nil {
		t.dummyLatch.RUnlock()
		return false, err
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
			return false, ferr
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

	if cur.node.parentID == page.InvalidID || !cur.node.isSafeForDelete() {
		t.wUnlatch(cur)
		t.unpin(cur, false)
		return false, nil
	}

	cur.node.removeLeaf(key, t.cmp)
	t.wUnlatch(cur)
	t.unpin(cur, true)
	return true, nil
}

// pessimisticDelete write-latch-crabs from the dummy latch down,
// releasing ancestors once a node proves safe-for-delete, then removes
// from the leaf and runs CoalesceOrRedistribute up the retained chain,
// per spec §4.3.3, grounded on original_source's concurrentDelete/
// CoalesceOrRedistribute/Coalesce/Redistribute/AdjustRoot.
func (t *BPlusTree) pessimisticDelete(key []byte) error {
	t.dummyLatch.Lock()
	dummyHeld := true
	release := func() {
		if dummyHeld {
			t.dummyLatch.Unlock()
			dummyHeld = false
		}
	}
	if t.rootID == page.InvalidID {
		release()
		return nil
	}

	root, err := t.fetchNode(t.rootID)
	if err != nil {
		release()
		return err
	}
	root.page.Lock()
	held := []*nodeRef{root}
	if root.node.isSafeForDelete() {
		release()
	}

	cur := root
	for !cur.node.isLeaf {
		childID := cur.node.lookupChild(key, t.cmp)
		child, ferr := t.fetchNode(childID)
		if ferr != nil {
			t.releaseHeld(held, false)
			release()
			return ferr
		}
		child.page.Lock()
		if child.node.isSafeForDelete() {
			t.releaseHeld(held, false)
			held = held[:0]
			release()
		}
		held = append(held, child)
		cur = child
	}

	leaf := cur
	leaf.node.removeLeaf(key, t.cmp)

	var deleted []page.ID
	if leaf.node.size() < leaf.node.minSize() {
		t.coalesceOrRedistribute(held, len(held)-1, &deleted)
	}
	t.releaseHeld(held, true)
	release()

	// Deferred deletion (spec §4.3.3, §9): DeletePage only after every
	// latch this operation held has been released, so it never competes
	// with the buffer pool mutex while a caller is blocked on a latch.
	for _, id := range deleted {
		if err := t.bpm.DeletePage(id); err != nil {
			t.logger.Warn("bplustree: deferred page delete failed", "page", int64(id), "err", err)
		}
	}
	return nil
}

// coalesceOrRedistribute fixes an underflowed node at held[idx], merging
// it into a sibling or borrowing one entry from a sibling, recursing
// into the parent if the merge underflows it in turn.
func (t *BPlusTree) coalesceOrRedistribute(held []*nodeRef, idx int, deleted *[]page.ID) {
	node := held[idx]
	if node.node.size() >= node.node.minSize() {
		return
	}
	if idx == 0 {
		t.adjustRoot(node, deleted)
		return
	}

	parent := held[idx-1]
	pos := parent.node.childIndex(node.page.ID)
	maxEntries := node.node.maxSize
	if node.node.isLeaf {
		maxEntries--
	}

	if pos-1 >= 0 {
		left, err := t.fetchNode(parent.node.children[pos-1])
		if err != nil {
			t.logger.Error("bplustree: fetch left sibling failed", "err", err)
			return
		}
		left.page.Lock()
		if left.node.size()+node.node.size() <= maxEntries {
			sep := parent.node.keys[pos]
			node.node.moveAllTo(left.node, sep)
			*deleted = append(*deleted, node.page.ID)
			parent.node.removeAt(pos)
			if parent.node.size() < parent.node.minSize() {
				t.coalesceOrRedistribute(held, idx-1, deleted)
			}
		} else if node.node.isLeaf {
			left.node.moveLastToFrontOf(node.node)
			parent.node.keys[pos] = append([]byte(nil), node.node.keys[0]...)
		} else {
			parent.node.keys[pos] = left.node.moveLastChildToFrontOf(node.node, parent.node.keys[pos])
		}
		t.wUnlatch(left)
		t.unpin(left, true)
		return
	}

	if pos+1 < len(parent.node.children) {
		right, err := t.fetchNode(parent.node.children[pos+1])
		if err != nil {
			t.logger.Error("bplustree: fetch right sibling failed", "err", err)
			return
		}
		right.page.Lock()
		if right.node.size()+node.node.size() <= maxEntries {
			sep := parent.node.keys[pos+1]
			right.node.moveAllTo(node.node, sep)
			*deleted = append(*deleted, right.page.ID)
			parent.node.removeAt(pos + 1)
			if parent.node.size() < parent.node.minSize() {
				t.coalesceOrRedistribute(held, idx-1, deleted)
			}
		} else if node.node.isLeaf {
			right.node.moveFirstToEndOf(node.node)
			parent.node.keys[pos+1] = append([]byte(nil), right.node.keys[0]...)
		} else {
			parent.node.keys[pos+1] = right.node.moveFirstChildToEndOf(node.node, parent.node.keys[pos+1])
		}
		t.wUnlatch(right)
		t.unpin(right, true)
	}
}

// adjustRoot implements spec §4.3.3's AdjustRoot: an emptied leaf root
// clears rootID; an internal root left with a single child promotes that
// child to root.
func (t *BPlusTree) adjustRoot(node *nodeRef, deleted *[]page.ID) {
	if node.node.isLeaf {
		if node.node.size() == 0 {
			*deleted = append(*deleted, node.page.ID)
			t.rootID = page.InvalidID
			if err := t.persistRoot(); err != nil {
				t.logger.Error("bplustree: persist root failed", "err", err)
			}
		}
		return
	}
	if node.node.size() != 1 {
		return
	}

	newRootID := node.node.children[0]
	child, err := t.fetchNode(newRootID)
	if err != nil {
		t.logger.Error("bplustree: adjust root fetch failed", "err", err)
		return
	}
	child.node.parentID = page.InvalidID
	t.unpin(child, true)

	*deleted = append(*deleted, node.page.ID)
	t.rootID = newRootID
	if err := t.persistRoot(); err != nil {
		t.logger.Error("bplustree: persist root failed", "err", err)
	}
}
