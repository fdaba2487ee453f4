// Package bufferpool implements the fixed-size page cache described in
// spec.md §4.2: every page access is bracketed by FetchPage/NewPage
// (returns pinned) and UnpinPage (releases the pin). A single mutex
// serializes the page table, free list, pin counts, and replacer;
// per-page latches are separate and owned by callers (the B+Tree).
package bufferpool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"vaultdb/logging"
	"vaultdb/storage/disk"
	"vaultdb/storage/page"
	"vaultdb/storage/replacer"
)

// BufferPool mediates all page access over a fixed number of frames,
// grounded on storage_engine/bufferpool/bufferpool.go's FetchPage/NewPage/
// UnpinPage/FlushPage/DeletePage shape, generalized from the teacher's
// growable map + linear-scan LRU to the fixed frame array + free list +
// replacer.LRU spec §3 describes, so the invariants in spec §8 (no frame
// in both free list and page table; O(1) replacer ops) hold by
// construction rather than by scanning.
type BufferPool struct {
	mu sync.Mutex

	frames    []*page.Page
	pageTable map[page.ID]replacer.FrameID
	freeList  []replacer.FrameID
	replacer  *replacer.LRU
	disk      disk.Manager
	logger    logging.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a buffer pool of poolSize frames backed by dm.
func New(poolSize int, dm disk.Manager, logger logging.Logger) *BufferPool {
	if logger == nil {
		logger = logging.Discard{}
	}

	bp := &BufferPool{
		frames:    make([]*page.Page, poolSize),
		pageTable: make(map[page.ID]replacer.FrameID, poolSize),
		freeList:  make([]replacer.FrameID, poolSize),
		replacer:  replacer.New(poolSize),
		disk:      dm,
		logger:    logger,
	}
	for i := range bp.frames {
		bp.frames[i] = page.New(page.InvalidID)
		bp.freeList[i] = replacer.FrameID(poolSize - 1 - i)
	}
	return bp
}

// FetchPage returns the page for id, pinned, loading it from disk if it
// is not already resident. Returns ErrOutOfMemory if every frame is
// pinned and none can be evicted.
func (bp *BufferPool) FetchPage(id page.ID) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frameID, ok := bp.pageTable[id]; ok {
		bp.hits.Add(1)
		bp.replacer.Pin(frameID)
		frame := bp.frames[frameID]
		frame.PinCount++
		bp.logger.Debug("bufferpool fetch hit", "page", int64(id), "pin", frame.PinCount)
		return frame, nil
	}

	bp.misses.Add(1)
	frameID, err := bp.evictVictimLocked()
	if err != nil {
		return nil, err
	}

	loaded, err := bp.disk.ReadPage(id)
	if err != nil {
		bp.freeList = append(bp.freeList, frameID)
		return nil, fmt.Errorf("bufferpool: fetch page %d: %w", id, err)
	}

	frame := bp.frames[frameID]
	frame.Reset(id)
	frame.Data = loaded.Data
	frame.PinCount = 1
	bp.pageTable[id] = frameID
	bp.logger.Debug("bufferpool fetch miss", "page", int64(id), "frame", int(frameID))
	return frame, nil
}

// NewPage allocates a fresh page id from the disk manager, pins it, and
// returns it zeroed with its dirty flag clear (the caller must serialize
// its own contents into it and mark it dirty through UnpinPage). Returns
// ErrOutOfMemory if no frame is free.
func (bp *BufferPool) NewPage() (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, err := bp.evictVictimLocked()
	if err != nil {
		return nil, err
	}

	id, err := bp.disk.AllocatePage()
	if err != nil {
		bp.freeList = append(bp.freeList, frameID)
		return nil, fmt.Errorf("bufferpool: allocate page: %w", err)
	}

	frame := bp.frames[frameID]
	frame.Reset(id)
	frame.PinCount = 1
	frame.Dirty = false
	bp.pageTable[id] = frameID
	bp.logger.Debug("bufferpool new page", "page", int64(id), "frame", int(frameID))
	return frame, nil
}

// UnpinPage decrements id's pin count. isDirty latches the dirty flag on
// (never off — a page written dirty earlier in the same pin period stays
// dirty). Returns false if id is not resident or already at pin count
// zero (a protocol violation, per spec §7 kind 5).
func (bp *BufferPool) UnpinPage(id page.ID, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[id]
	if !ok {
		return false
	}
	frame := bp.frames[frameID]
	if frame.PinCount <= 0 {
		return false
	}

	if isDirty {
		frame.Dirty = true
	}
	frame.PinCount--
	if frame.PinCount == 0 {
		bp.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes id's bytes to disk regardless of pin count and clears
// the dirty flag. It does not evict.
func (bp *BufferPool) FlushPage(id page.ID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[id]
	if !ok {
		return false
	}
	frame := bp.frames[frameID]
	if err := bp.disk.WritePage(id, frame); err != nil {
		bp.logger.Error("bufferpool flush failed", "page", int64(id), "err", err)
		return false
	}
	frame.Dirty = false
	return true
}

// FlushAllPages writes every resident page to disk.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for id, frameID := range bp.pageTable {
		frame := bp.frames[frameID]
		if err := bp.disk.WritePage(id, frame); err != nil {
			return fmt.Errorf("bufferpool: flush page %d: %w", id, err)
		}
		frame.Dirty = false
	}
	return nil
}

// DeletePage removes id from the buffer pool and deallocates it on disk.
// Succeeds immediately if id is not resident. Fails if resident and
// pinned.
func (bp *BufferPool) DeletePage(id page.ID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[id]
	if !ok {
		return nil
	}
	frame := bp.frames[frameID]
	if frame.PinCount > 0 {
		return fmt.Errorf("bufferpool: delete page %d: %w", id, ErrPagePinned)
	}

	bp.replacer.Pin(frameID)
	delete(bp.pageTable, id)
	frame.Reset(page.InvalidID)
	bp.freeList = append(bp.freeList, frameID)

	if err := bp.disk.DeallocatePage(id); err != nil {
		return fmt.Errorf("bufferpool: deallocate page %d: %w", id, err)
	}
	return nil
}

// evictVictimLocked picks a frame for reuse, preferring the free list
// over the replacer, flushing a dirty victim first. Caller must hold
// bp.mu.
func (bp *BufferPool) evictVictimLocked() (replacer.FrameID, error) {
	if n := len(bp.freeList); n > 0 {
		frameID := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return frameID, nil
	}

	frameID, ok := bp.replacer.Victim()
	if !ok {
		return 0, ErrOutOfMemory
	}

	victim := bp.frames[frameID]
	if victim.Dirty {
		if err := bp.disk.WritePage(victim.ID, victim); err != nil {
			// Put the frame back into the replacer; it is still holding
			// a valid, if unflushed, page.
			bp.replacer.Unpin(frameID)
			return 0, fmt.Errorf("bufferpool: evict page %d: %w", victim.ID, err)
		}
	}
	bp.evictions.Add(1)
	delete(bp.pageTable, victim.ID)
	return frameID, nil
}
