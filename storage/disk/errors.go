package disk

import "errors"

var (
	errCorruptHeader = errors.New("corrupt header page")

	// ErrPageNotOnDisk is returned by MemManager.ReadPage for a page id
	// that was never allocated or was deallocated.
	ErrPageNotOnDisk = errors.New("disk: page not found")
)
