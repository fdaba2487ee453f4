package disk

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"vaultdb/storage/page"
)

// headerMagic identifies a valid header page.
const headerMagic uint32 = 0x5661756c // "Vaul"

// header is the in-memory form of the header page: a small directory
// mapping index name to persisted root page id, keyed by name so multiple
// B+Trees can share one Disk Manager and header page. This is the "opaque
// except for enumerated fields" layout spec §6 allows.
type header struct {
	roots map[string]page.ID
}

func newHeader() *header {
	return &header{roots: make(map[string]page.ID)}
}

// serialize writes the header directory into a page-sized buffer, with an
// xxhash64 checksum over the payload so a corrupted header page is
// detected on load rather than silently misread.
func (h *header) serialize() (*page.Page, error) {
	p := page.New(HeaderPageID)
	buf := p.Data[:]

	// Reserve: magic(4) checksum(8) count(2) = 14 bytes, then entries.
	offset := 14
	binary.LittleEndian.PutUint16(buf[12:], uint16(len(h.roots)))

	for name, root := range h.roots {
		nameLen := len(name)
		if offset+2+nameLen+8 > page.Size {
			return nil, fmt.Errorf("disk: header page overflow, too many indexes")
		}
		binary.LittleEndian.PutUint16(buf[offset:], uint16(nameLen))
		offset += 2
		copy(buf[offset:], name)
		offset += nameLen
		binary.LittleEndian.PutUint64(buf[offset:], uint64(root))
		offset += 8
	}

	binary.LittleEndian.PutUint32(buf[0:], headerMagic)
	checksum := xxhash.Sum64(buf[12:offset])
	binary.LittleEndian.PutUint64(buf[4:], checksum)

	return p, nil
}

// deserializeHeader reconstructs a header from a page previously written by
// serialize. An all-zero page (a brand-new file) deserializes to an empty
// header rather than an error.
func deserializeHeader(p *page.Page) (*header, error) {
	buf := p.Data[:]
	magic := binary.LittleEndian.Uint32(buf[0:])
	if magic == 0 {
		return newHeader(), nil
	}
	if magic != headerMagic {
		return nil, fmt.Errorf("disk: %w: bad header magic", errCorruptHeader)
	}

	storedChecksum := binary.LittleEndian.Uint64(buf[4:])
	count := binary.LittleEndian.Uint16(buf[12:])

	offset := 14
	h := newHeader()
	for i := uint16(0); i < count; i++ {
		if offset+2 > page.Size {
			return nil, fmt.Errorf("disk: %w: truncated header entry", errCorruptHeader)
		}
		nameLen := int(binary.LittleEndian.Uint16(buf[offset:]))
		offset += 2
		if offset+nameLen+8 > page.Size {
			return nil, fmt.Errorf("disk: %w: truncated header entry", errCorruptHeader)
		}
		name := string(buf[offset : offset+nameLen])
		offset += nameLen
		root := page.ID(binary.LittleEndian.Uint64(buf[offset:]))
		offset += 8
		h.roots[name] = root
	}

	if xxhash.Sum64(buf[12:offset]) != storedChecksum {
		return nil, fmt.Errorf("disk: %w: checksum mismatch", errCorruptHeader)
	}

	return h, nil
}
