// Package disk implements the external Disk Manager contract the buffer
// pool depends on: fixed-size page-addressed I/O plus page id allocation.
// Everything above this package addresses pages only by ID and never
// touches the file directly.
package disk

import "vaultdb/storage/page"

// Manager is the narrow contract spec.md §6 requires of a Disk Manager.
// FileManager backs it with a real file; MemManager backs it with a map,
// for tests that don't want file descriptors.
type Manager interface {
	// ReadPage reads page id into a fresh *page.Page.
	ReadPage(id page.ID) (*page.Page, error)
	// WritePage writes p's bytes to page id, synchronously.
	WritePage(id page.ID, p *page.Page) error
	// AllocatePage returns a fresh positive page id, reusing a
	// deallocated one when available.
	AllocatePage() (page.ID, error)
	// DeallocatePage marks id free for reuse.
	DeallocatePage(id page.ID) error
	// GetRoot reads the root page id vaultdb has associated with the
	// named index, out of the reserved header page (spec §6,
	// HEADER_PAGE_ID = 0). Returns page.InvalidID if unset.
	GetRoot(indexName string) (page.ID, error)
	// SetRoot persists indexName's root page id into the header page.
	SetRoot(indexName string, root page.ID) error
	// Close flushes and releases any OS resources.
	Close() error
}

// HeaderPageID is the reserved page holding the index-name -> root-page-id
// directory, per spec §6.
const HeaderPageID page.ID = 0
