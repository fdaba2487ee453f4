package bufferpool

// Stats is a point-in-time snapshot of buffer pool activity, grounded on
// storage_engine/bufferpool/helpers.go's hit/miss bookkeeping.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Resident  int
	Free      int
}

// Stats returns a snapshot of the pool's counters.
func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	return Stats{
		Hits:      bp.hits.Load(),
		Misses:    bp.misses.Load(),
		Evictions: bp.evictions.Load(),
		Resident:  len(bp.pageTable),
		Free:      len(bp.freeList),
	}
}
