package bufferpool

import "errors"

var (
	// ErrOutOfMemory is returned by FetchPage/NewPage when every frame is
	// pinned and the replacer has nothing left to evict.
	ErrOutOfMemory = errors.New("bufferpool: no free frames")

	// ErrPagePinned is returned by DeletePage when the page is resident
	// and still pinned.
	ErrPagePinned = errors.New("bufferpool: page is pinned")
)
