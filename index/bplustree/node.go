// Package bplustree implements the concurrent B+Tree index of spec §4.3:
// leaf/internal page layouts over buffer-pool pages, latch-crabbed
// search/insert/delete, and forward iteration.
package bplustree

import (
	"encoding/binary"
	"fmt"
	"sort"

	"vaultdb/rid"
	"vaultdb/storage/page"
)

// Comparator orders two encoded keys the way bytes.Compare does.
type Comparator func(a, b []byte) int

const (
	typeInternal byte = 0
	typeLeaf     byte = 1

	// maxKeyLen bounds an individual key's encoded length, matching the
	// teacher's node_to_index_page.go MaxKeyLen bound so a single
	// pathological key cannot overflow a page.
	maxKeyLen = 512
)

// node layout, grounded on storage_engine/access/indexfile_manager/
// bplustree/node_to_index_page.go's fixed header + length-prefixed body
// scheme, extended with a runtime maxSize field since spec §8's end-to-end
// scenarios parameterize leaf_max/internal_max per test rather than fixing
// them as page-capacity constants.
//
//	offset 0:  pageType   byte
//	offset 1:  reserved   byte
//	offset 2:  numKeys    uint16
//	offset 4:  maxSize    uint16
//	offset 6:  reserved   [2]byte
//	offset 8:  parentID   int64  (-1 = none)
//	offset 16: nextID     int64  (leaf only, -1 = none)
//	offset 24: body...
//
// Body: numKeys * (uint16 keyLen, key bytes), then either
//   - leaf: numKeys * rid.Size-byte RID values
//   - internal: numKeys * int64 child page ids (children[i] pairs with
//     keys[i]; keys[0] is unused)
const headerSize = 24

// node is the in-memory decoding of a B+Tree page.
type node struct {
	pageID   page.ID
	isLeaf   bool
	maxSize  int
	parentID page.ID
	nextID   page.ID // leaf only

	keys     [][]byte
	values   []rid.RID  // leaf only, len(values) == len(keys)
	children []page.ID // internal only, parallel to keys: len(children) == len(keys), keys[0] unused
}

func newLeaf(id, parent page.ID, maxSize int) *node {
	return &node{pageID: id, isLeaf: true, maxSize: maxSize, parentID: parent, nextID: page.InvalidID}
}

func newInternal(id, parent page.ID, maxSize int) *node {
	return &node{pageID: id, isLeaf: false, maxSize: maxSize, parentID: parent, children: []page.ID{page.InvalidID}}
}

func (n *node) size() int { return len(n.keys) }

// minSize implements spec §3's per-variant floor: leaf
// ceil((max_size-1)/2), internal ceil(max_size/2). Exempt for the root,
// which callers must check separately.
func (n *node) minSize() int {
	if n.isLeaf {
		return (n.maxSize - 1 + 1) / 2
	}
	return (n.maxSize + 1) / 2
}

// isSafeForInsert reports whether inserting one more entry cannot
// overflow this node.
func (n *node) isSafeForInsert() bool { return n.size()+1 < n.maxSize }

// isSafeForDelete reports whether removing one entry cannot underflow
// this node.
func (n *node) isSafeForDelete() bool { return n.size()-1 >= n.minSize() }

// keyIndex returns the index of the first key >= target (leaf lookup /
// insertion point), via binary search.
func (n *node) keyIndex(target []byte, cmp Comparator) int {
	return sort.Search(len(n.keys), func(i int) bool { return cmp(n.keys[i], target) >= 0 })
}

// lookup returns (value, true) if target is present in a leaf node.
func (n *node) lookup(target []byte, cmp Comparator) (rid.RID, bool) {
	i := n.keyIndex(target, cmp)
	if i < len(n.keys) && cmp(n.keys[i], target) == 0 {
		return n.values[i], true
	}
	return rid.RID{}, false
}

// insertLeaf inserts (key, value) in sorted position. Returns the new
// size; an unchanged size relative to before the call signals a
// duplicate (caller compares before/after, matching the teacher's
// pre/post-size duplicate check).
func (n *node) insertLeaf(key []byte, value rid.RID, cmp Comparator) int {
	i := n.keyIndex(key, cmp)
	if i < len(n.keys) && cmp(n.keys[i], key) == 0 {
		return n.size()
	}
	n.keys = append(n.keys, nil)
	n.values = append(n.values, rid.RID{})
	copy(n.keys[i+1:], n.keys[i:])
	copy(n.values[i+1:], n.values[i:])
	n.keys[i] = append([]byte(nil), key...)
	n.values[i] = value
	return n.size()
}

// removeLeaf deletes key if present. Returns the new size.
func (n *node) removeLeaf(key []byte, cmp Comparator) int {
	i := n.keyIndex(key, cmp)
	if i >= len(n.keys) || cmp(n.keys[i], key) != 0 {
		return n.size()
	}
	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	n.values = append(n.values[:i], n.values[i+1:]...)
	return n.size()
}

// lookupChild returns the child page id to descend into for key: the
// pointer just past the largest separator <= key (array[0].key is
// unused per spec §3).
func (n *node) lookupChild(key []byte, cmp Comparator) page.ID {
	i := sort.Search(len(n.keys)-1, func(i int) bool { return cmp(n.keys[i+1], key) > 0 })
	return n.children[i]
}

// populateRoot sets this freshly-allocated internal node up as a new
// root with exactly two children and one separator, per spec §4.3.2's
// InsertIntoParent-on-root case.
func (n *node) populateRoot(left page.ID, sep []byte, right page.ID) {
	n.keys = [][]byte{nil, append([]byte(nil), sep...)}
	n.children = []page.ID{left, right}
}

// insertChildAfter inserts (sep, child) immediately after the entry for
// afterChild. Returns the new size.
func (n *node) insertChildAfter(afterChild page.ID, sep []byte, child page.ID) int {
	idx := -1
	for i, c := range n.children {
		if c == afterChild {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic("bplustree: insertChildAfter: child not found")
	}
	n.keys = append(n.keys, nil)
	copy(n.keys[idx+2:], n.keys[idx+1:])
	n.keys[idx+1] = append([]byte(nil), sep...)

	n.children = append(n.children, page.InvalidID)
	copy(n.children[idx+2:], n.children[idx+1:])
	n.children[idx+1] = child
	return n.size()
}

// removeAt removes the entry at index i. Internal nodes keep keys and
// children as parallel arrays of equal length (spec §3: "array[0].key
// unused"), so removing entry i drops keys[i] and children[i] together.
func (n *node) removeAt(i int) {
	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	if !n.isLeaf {
		n.children = append(n.children[:i], n.children[i+1:]...)
	} else {
		n.values = append(n.values[:i], n.values[i+1:]...)
	}
}

// childIndex returns the index of child within n.children.
func (n *node) childIndex(child page.ID) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// moveHalfTo moves this node's right half of entries into right and
// returns the key the parent must store as the separator between n and
// right, grounded on the teacher's MoveHalfTo split step (spec §4.3.2
// step 2). For an internal split the separator is promoted out of
// right's array entirely, so right.keys[0] is left as the usual unused
// placeholder rather than a copy of it.
func (n *node) moveHalfTo(right *node) []byte {
	mid := n.size() / 2
	if n.isLeaf {
		right.keys = append(right.keys, n.keys[mid:]...)
		right.values = append(right.values, n.values[mid:]...)
		n.keys = n.keys[:mid]
		n.values = n.values[:mid]
		right.nextID = n.nextID
		n.nextID = right.pageID
		return append([]byte(nil), right.keys[0]...)
	}

	sep := append([]byte(nil), n.keys[mid]...)
	right.keys = append(right.keys, n.keys[mid:]...)
	right.keys[0] = nil // promoted to the parent; slot 0 is unused
	right.children = append(right.children[:0], n.children[mid:]...)
	n.keys = n.keys[:mid]
	n.children = n.children[:mid]
	return sep
}

// moveAllTo merges this node's entries onto the end of left (used during
// coalesce; node is always merged rightward into its left sibling per
// spec §4.3.3). parentSep is the separator the parent stored between
// left and n; for internal nodes it replaces n's unused keys[0] slot so
// the promoted boundary survives the merge.
func (n *node) moveAllTo(left *node, parentSep []byte) {
	if n.isLeaf {
		left.keys = append(left.keys, n.keys...)
		left.values = append(left.values, n.values...)
		left.nextID = n.nextID
	} else {
		keys := append([][]byte{append([]byte(nil), parentSep...)}, n.keys[1:]...)
		left.keys = append(left.keys, keys...)
		left.children = append(left.children, n.children...)
	}
}

// moveFirstToEndOf moves n's first leaf entry onto the end of dst
// (redistribute when the non-deficient sibling is to the right).
func (n *node) moveFirstToEndOf(dst *node) {
	dst.keys = append(dst.keys, n.keys[0])
	dst.values = append(dst.values, n.values[0])
	n.keys = n.keys[1:]
	n.values = n.values[1:]
}

// moveLastToFrontOf moves n's last leaf entry onto the front of dst
// (redistribute when the non-deficient sibling is to the left).
func (n *node) moveLastToFrontOf(dst *node) {
	last := n.size() - 1
	dst.keys = append([][]byte{n.keys[last]}, dst.keys...)
	dst.values = append([]rid.RID{n.values[last]}, dst.values...)
	n.keys = n.keys[:last]
	n.values = n.values[:last]
}

// moveLastChildToFrontOf moves sibling n's last child (with parentSep as
// the separator that used to sit between n and dst) onto the front of
// dst, an internal redistribute. Returns the new separator the parent
// must store between n and dst.
func (n *node) moveLastChildToFrontOf(dst *node, parentSep []byte) []byte {
	lastIdx := len(n.children) - 1
	movedChild := n.children[lastIdx]
	newSep := append([]byte(nil), n.keys[lastIdx]...)

	n.keys = n.keys[:lastIdx]
	n.children = n.children[:lastIdx]

	dst.keys = append([][]byte{nil, append([]byte(nil), parentSep...)}, dst.keys[1:]...)
	dst.children = append([]page.ID{movedChild}, dst.children...)
	return newSep
}

// moveFirstChildToEndOf moves sibling n's first child (with parentSep as
// the separator that used to sit between dst and n) onto the end of
// dst, an internal redistribute. Returns the new separator the parent
// must store between dst and n.
func (n *node) moveFirstChildToEndOf(dst *node, parentSep []byte) []byte {
	movedChild := n.children[0]
	newSep := append([]byte(nil), n.keys[1]...)

	n.keys = append([][]byte{nil}, n.keys[2:]...)
	n.children = n.children[1:]

	dst.keys = append(dst.keys, append([]byte(nil), parentSep...))
	dst.children = append(dst.children, movedChild)
	return newSep
}

// serialize encodes n into p's data buffer.
func (n *node) serialize(p *page.Page) error {
	buf := p.Data[:]
	for i := range buf {
		buf[i] = 0
	}

	if n.isLeaf {
		buf[0] = typeLeaf
	} else {
		buf[0] = typeInternal
	}
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(n.keys)))
	binary.LittleEndian.PutUint16(buf[4:], uint16(n.maxSize))
	binary.LittleEndian.PutUint64(buf[8:], uint64(n.parentID))
	binary.LittleEndian.PutUint64(buf[16:], uint64(n.nextID))

	offset := headerSize
	for _, k := range n.keys {
		if len(k) > maxKeyLen {
			return fmt.Errorf("bplustree: key too long (%d bytes, max %d)", len(k), maxKeyLen)
		}
		if offset+2+len(k) > page.Size {
			return fmt.Errorf("bplustree: page overflow writing keys")
		}
		binary.LittleEndian.PutUint16(buf[offset:], uint16(len(k)))
		offset += 2
		copy(buf[offset:], k)
		offset += len(k)
	}

	if n.isLeaf {
		for _, v := range n.values {
			if offset+rid.Size > page.Size {
				return fmt.Errorf("bplustree: page overflow writing values")
			}
			v.Encode(buf[offset:])
			offset += rid.Size
		}
	} else {
		for _, c := range n.children {
			if offset+8 > page.Size {
				return fmt.Errorf("bplustree: page overflow writing children")
			}
			binary.LittleEndian.PutUint64(buf[offset:], uint64(c))
			offset += 8
		}
	}
	p.ID = n.pageID
	return nil
}

// deserializeNode decodes p's data buffer into a node.
func deserializeNode(p *page.Page) (*node, error) {
	buf := p.Data[:]
	n := &node{pageID: p.ID, isLeaf: buf[0] == typeLeaf}
	numKeys := int(binary.LittleEndian.Uint16(buf[2:]))
	n.maxSize = int(binary.LittleEndian.Uint16(buf[4:]))
	n.parentID = page.ID(binary.LittleEndian.Uint64(buf[8:]))
	n.nextID = page.ID(binary.LittleEndian.Uint64(buf[16:]))

	offset := headerSize
	n.keys = make([][]byte, 0, numKeys)
	for i := 0; i < numKeys; i++ {
		if offset+2 > page.Size {
			return nil, fmt.Errorf("bplustree: corrupt page %d: key %d length overflow", p.ID, i)
		}
		keyLen := int(binary.LittleEndian.Uint16(buf[offset:]))
		offset += 2
		if offset+keyLen > page.Size {
			return nil, fmt.Errorf("bplustree: corrupt page %d: key %d data overflow", p.ID, i)
		}
		key := make([]byte, keyLen)
		copy(key, buf[offset:offset+keyLen])
		offset += keyLen
		n.keys = append(n.keys, key)
	}

	if n.isLeaf {
		n.values = make([]rid.RID, 0, numKeys)
		for i := 0; i < numKeys; i++ {
			if offset+rid.Size > page.Size {
				return nil, fmt.Errorf("bplustree: corrupt page %d: value %d overflow", p.ID, i)
			}
			n.values = append(n.values, rid.Decode(buf[offset:]))
			offset += rid.Size
		}
	} else {
		n.children = make([]page.ID, 0, numKeys)
		for i := 0; i < numKeys; i++ {
			if offset+8 > page.Size {
				return nil, fmt.Errorf("bplustree: corrupt page %d: child %d overflow", p.ID, i)
			}
			n.children = append(n.children, page.ID(binary.LittleEndian.Uint64(buf[offset:])))
			offset += 8
		}
	}
	return n, nil
}
