//go:build !unix

package disk

import (
	"fmt"
	"os"
	"sync"

	"vaultdb/storage/page"
)

var _ Manager = (*FileManager)(nil)

// FileManager on non-unix platforms drops the advisory flock and
// Fdatasync calls file_manager_unix.go makes via golang.org/x/sys/unix,
// falling back to file.Sync(). Mirrors fredb's mmap_unix.go/
// mmap_unsupported.go split for the same reason: the syscall package
// vaultdb otherwise depends on is unix-only.
type FileManager struct {
	mu       sync.Mutex
	file     *os.File
	nextFree []page.ID
	numPages int64
	header   *header
}

func OpenFileManager(path string) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}

	fm := &FileManager{file: f}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size() == 0 {
		fm.numPages = 1
		fm.header = newHeader()
		if err := fm.writeHeaderLocked(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		fm.numPages = info.Size() / page.Size
		hp, err := fm.readAt(HeaderPageID)
		if err != nil {
			f.Close()
			return nil, err
		}
		h, err := deserializeHeader(hp)
		if err != nil {
			f.Close()
			return nil, err
		}
		fm.header = h
	}

	return fm, nil
}

func (fm *FileManager) ReadPage(id page.ID) (*page.Page, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.readAt(id)
}

func (fm *FileManager) readAt(id page.ID) (*page.Page, error) {
	p := page.New(id)
	n, err := fm.file.ReadAt(p.Data[:], int64(id)*page.Size)
	if err != nil {
		return nil, fmt.Errorf("disk: read page %d: %w", id, err)
	}
	if n != page.Size {
		return nil, fmt.Errorf("disk: short read on page %d: got %d bytes", id, n)
	}
	return p, nil
}

func (fm *FileManager) WritePage(id page.ID, p *page.Page) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.writeAt(id, p)
}

func (fm *FileManager) writeAt(id page.ID, p *page.Page) error {
	n, err := fm.file.WriteAt(p.Data[:], int64(id)*page.Size)
	if err != nil {
		return fmt.Errorf("disk: write page %d: %w", id, err)
	}
	if n != page.Size {
		return fmt.Errorf("disk: short write on page %d: wrote %d bytes", id, n)
	}
	return fm.file.Sync()
}

func (fm *FileManager) AllocatePage() (page.ID, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if n := len(fm.nextFree); n > 0 {
		id := fm.nextFree[n-1]
		fm.nextFree = fm.nextFree[:n-1]
		return id, nil
	}

	id := page.ID(fm.numPages)
	fm.numPages++
	if err := fm.writeAt(id, page.New(id)); err != nil {
		fm.numPages--
		return page.InvalidID, err
	}
	return id, nil
}

func (fm *FileManager) DeallocatePage(id page.ID) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.nextFree = append(fm.nextFree, id)
	return nil
}

func (fm *FileManager) GetRoot(indexName string) (page.ID, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if root, ok := fm.header.roots[indexName]; ok {
		return root, nil
	}
	return page.InvalidID, nil
}

func (fm *FileManager) SetRoot(indexName string, root page.ID) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.header.roots[indexName] = root
	return fm.writeHeaderLocked()
}

func (fm *FileManager) writeHeaderLocked() error {
	hp, err := fm.header.serialize()
	if err != nil {
		return err
	}
	return fm.writeAt(HeaderPageID, hp)
}

func (fm *FileManager) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.file.Close()
}
