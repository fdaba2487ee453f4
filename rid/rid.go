// Package rid defines the record identifier shared by the B+Tree index
// (as its value type) and the lock manager (as its lock granule), per
// spec §3's "(page_id, slot) pair naming one tuple".
package rid

import (
	"encoding/binary"
	"fmt"

	"vaultdb/storage/page"
)

// Size is the fixed on-disk encoding width of an RID.
const Size = 10 // 8 bytes page id + 2 bytes slot

// RID names one tuple by the page it lives on and its slot within that
// page.
type RID struct {
	PageID page.ID
	Slot   uint16
}

// Invalid is the sentinel for "no such record" (PageID is
// page.InvalidID); it is not the zero value of RID.
var Invalid = RID{PageID: page.InvalidID, Slot: 0}

func (r RID) String() string {
	return fmt.Sprintf("%d:%d", r.PageID, r.Slot)
}

// Encode writes r's binary form into dst, which must be at least Size
// bytes.
func (r RID) Encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst, uint64(r.PageID))
	binary.LittleEndian.PutUint16(dst[8:], r.Slot)
}

// Decode reads an RID from its binary form.
func Decode(src []byte) RID {
	return RID{
		PageID: page.ID(binary.LittleEndian.Uint64(src)),
		Slot:   binary.LittleEndian.Uint16(src[8:]),
	}
}
