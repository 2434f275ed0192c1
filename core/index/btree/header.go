package btree

import (
	"encoding/binary"

	"github.com/foliostore/foliodb/core/storage/page"
)

// The header page (page.HeaderPageID) holds a sequence of
// (name, root_page_id) records. It is not a B+ tree page: it carries no
// common header of its own, just a count followed by fixed-width records.
const (
	headerCountOff    = 0
	headerRecordsOff  = 4
	headerNameLen     = 32
	headerRecordLen   = headerNameLen + 4
	headerMaxRecords  = (page.Size - headerRecordsOff) / headerRecordLen
)

func headerCount(pg *page.Page) int {
	return int(binary.LittleEndian.Uint32(pg.Data()[headerCountOff:]))
}

func setHeaderCount(pg *page.Page, n int) {
	binary.LittleEndian.PutUint32(pg.Data()[headerCountOff:], uint32(n))
}

func headerRecordName(pg *page.Page, i int) string {
	base := headerRecordsOff + i*headerRecordLen
	raw := pg.Data()[base : base+headerNameLen]
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}

func headerRecordRoot(pg *page.Page, i int) page.ID {
	base := headerRecordsOff + i*headerRecordLen + headerNameLen
	return page.ID(int32(binary.LittleEndian.Uint32(pg.Data()[base:])))
}

func setHeaderRecord(pg *page.Page, i int, name string, root page.ID) {
	base := headerRecordsOff + i*headerRecordLen
	nameBuf := pg.Data()[base : base+headerNameLen]
	for j := range nameBuf {
		nameBuf[j] = 0
	}
	copy(nameBuf, name)
	binary.LittleEndian.PutUint32(pg.Data()[base+headerNameLen:], uint32(int32(root)))
}

// lookupRoot returns the root page id recorded for name, or InvalidID if
// no record exists.
func lookupRoot(pg *page.Page, name string) page.ID {
	for i := 0; i < headerCount(pg); i++ {
		if headerRecordName(pg, i) == name {
			return headerRecordRoot(pg, i)
		}
	}
	return page.InvalidID
}

// storeRoot inserts or updates name's root record.
func storeRoot(pg *page.Page, name string, root page.ID) {
	n := headerCount(pg)
	for i := 0; i < n; i++ {
		if headerRecordName(pg, i) == name {
			setHeaderRecord(pg, i, name, root)
			return
		}
	}
	if n >= headerMaxRecords {
		corrupt("header page has no room for another index record")
	}
	setHeaderRecord(pg, n, name, root)
	setHeaderCount(pg, n+1)
}
