package disk

import (
	"sync"

	"vaultdb/storage/page"
)

var _ Manager = (*MemManager)(nil)

// MemManager implements Manager entirely in memory. Grounded on
// alexhholmes-fredb/pagemanager.go's InMemoryPageManager: same
// copy-in/copy-out semantics (so a caller mutating a page it fetched
// earlier can't corrupt what's "on disk" without a WritePage), used the
// same way here — as the fast test double for buffer pool and B+Tree
// tests that don't want real file descriptors.
type MemManager struct {
	mu       sync.Mutex
	pages    map[page.ID]*page.Page
	nextID   page.ID
	freeList []page.ID
	roots    map[string]page.ID
}

// NewMemManager returns an empty in-memory Disk Manager.
func NewMemManager() *MemManager {
	return &MemManager{
		pages:  make(map[page.ID]*page.Page),
		nextID: HeaderPageID + 1,
		roots:  make(map[string]page.ID),
	}
}

func (m *MemManager) ReadPage(id page.ID) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.pages[id]
	if !ok {
		return nil, ErrPageNotOnDisk
	}
	cp := page.New(id)
	cp.Data = stored.Data
	return cp, nil
}

func (m *MemManager) WritePage(id page.ID, p *page.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := page.New(id)
	cp.Data = p.Data
	m.pages[id] = cp
	return nil
}

func (m *MemManager) AllocatePage() (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.freeList); n > 0 {
		id := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		m.pages[id] = page.New(id)
		return id, nil
	}

	id := m.nextID
	m.nextID++
	m.pages[id] = page.New(id)
	return id, nil
}

func (m *MemManager) DeallocatePage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, id)
	m.freeList = append(m.freeList, id)
	return nil
}

func (m *MemManager) GetRoot(indexName string) (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if root, ok := m.roots[indexName]; ok {
		return root, nil
	}
	return page.InvalidID, nil
}

func (m *MemManager) SetRoot(indexName string, root page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots[indexName] = root
	return nil
}

func (m *MemManager) Close() error { return nil }
