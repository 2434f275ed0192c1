package btree

import (
	"encoding/binary"

	"github.com/foliostore/foliodb/core/storage/page"
)

// PageType discriminates a B+ tree page's payload layout.
type PageType int32

const (
	invalidPageType PageType = 0
	leafPageType    PageType = 1
	internalPageType PageType = 2
)

// Key is the ordered key type this tree indexes on. Arbitrary key/value
// type plumbing is not this engine's concern; a fixed concrete key keeps
// the on-disk layout and the comparator unambiguous.
type Key int64

// RID is an opaque, fixed-size record identifier: the value half of every
// leaf entry.
type RID struct {
	PageID  int32
	SlotNum int32
}

const ridSize = 8 // two int32 fields, no padding by construction.

// Common header, present on every B+ tree page (not the header page):
//
//	page_type:i32 lsn:i32 size:i32 max_size:i32 parent_page_id:i32 page_id:i32
const (
	offPageType   = 0
	offLSN        = 4
	offSize       = 8
	offMaxSize    = 12
	offParentID   = 16
	offPageID     = 20
	commonHdrLen  = 24
)

// leaf-only header field, immediately after the common header.
const (
	offNextPageID  = commonHdrLen
	leafEntriesOff = offNextPageID + 4
	leafEntryLen   = 8 + ridSize // Key + RID
)

// internal-only layout: entries start right after the common header.
// Entry 0's key is unused (sentinel); entries 1..size-1 carry a real key.
const (
	internalEntriesOff = commonHdrLen
	internalEntryLen   = 8 + 4 // Key + child page id
)

// commonHeader is embedded (by convention, not Go struct embedding) in
// both node views: both read and write the same six leading fields of a
// page's byte buffer.
type commonHeader struct{ pg *page.Page }

func (h commonHeader) pageType() PageType {
	return PageType(binary.LittleEndian.Uint32(h.pg.Data()[offPageType:]))
}
func (h commonHeader) setPageType(t PageType) {
	binary.LittleEndian.PutUint32(h.pg.Data()[offPageType:], uint32(t))
}
func (h commonHeader) lsn() page.LSN {
	return page.LSN(int32(binary.LittleEndian.Uint32(h.pg.Data()[offLSN:])))
}
func (h commonHeader) setLSN(l page.LSN) {
	binary.LittleEndian.PutUint32(h.pg.Data()[offLSN:], uint32(int32(l)))
}
func (h commonHeader) size() int {
	return int(int32(binary.LittleEndian.Uint32(h.pg.Data()[offSize:])))
}
func (h commonHeader) setSize(n int) {
	binary.LittleEndian.PutUint32(h.pg.Data()[offSize:], uint32(int32(n)))
}
func (h commonHeader) maxSize() int {
	return int(int32(binary.LittleEndian.Uint32(h.pg.Data()[offMaxSize:])))
}
func (h commonHeader) setMaxSize(n int) {
	binary.LittleEndian.PutUint32(h.pg.Data()[offMaxSize:], uint32(int32(n)))
}
func (h commonHeader) parentPageID() page.ID {
	return page.ID(int32(binary.LittleEndian.Uint32(h.pg.Data()[offParentID:])))
}
func (h commonHeader) setParentPageID(id page.ID) {
	binary.LittleEndian.PutUint32(h.pg.Data()[offParentID:], uint32(int32(id)))
}
func (h commonHeader) pageID() page.ID {
	return page.ID(int32(binary.LittleEndian.Uint32(h.pg.Data()[offPageID:])))
}
func (h commonHeader) setPageID(id page.ID) {
	binary.LittleEndian.PutUint32(h.pg.Data()[offPageID:], uint32(int32(id)))
}

func getKeyAt(buf []byte, off int) Key {
	return Key(int64(binary.LittleEndian.Uint64(buf[off:])))
}
func putKeyAt(buf []byte, off int, k Key) {
	binary.LittleEndian.PutUint64(buf[off:], uint64(int64(k)))
}
func getRIDAt(buf []byte, off int) RID {
	return RID{
		PageID:  int32(binary.LittleEndian.Uint32(buf[off:])),
		SlotNum: int32(binary.LittleEndian.Uint32(buf[off+4:])),
	}
}
func putRIDAt(buf []byte, off int, v RID) {
	binary.LittleEndian.PutUint32(buf[off:], uint32(v.PageID))
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(v.SlotNum))
}
func getPageIDAt(buf []byte, off int) page.ID {
	return page.ID(int32(binary.LittleEndian.Uint32(buf[off:])))
}
func putPageIDAt(buf []byte, off int, id page.ID) {
	binary.LittleEndian.PutUint32(buf[off:], uint32(int32(id)))
}

// Leaf is a typed view over a leaf page's byte buffer: it never copies the
// frame's bytes, it reads and writes them in place under whatever latch
// the caller already holds.
type Leaf struct {
	commonHeader
}

func asLeaf(pg *page.Page) Leaf { return Leaf{commonHeader{pg}} }

// initLeaf formats a freshly allocated page as an empty leaf.
func initLeaf(pg *page.Page, maxSize int, parent page.ID) Leaf {
	l := asLeaf(pg)
	l.setPageType(leafPageType)
	l.setLSN(page.InvalidLSN)
	l.setSize(0)
	l.setMaxSize(maxSize)
	l.setParentPageID(parent)
	l.setPageID(pg.ID())
	l.setNextPageID(page.InvalidID)
	return l
}

func (l Leaf) isLeaf() bool { return true }

func (l Leaf) nextPageID() page.ID {
	return getPageIDAt(l.pg.Data(), offNextPageID)
}
func (l Leaf) setNextPageID(id page.ID) {
	putPageIDAt(l.pg.Data(), offNextPageID, id)
}

func (l Leaf) keyAt(i int) Key {
	return getKeyAt(l.pg.Data(), leafEntriesOff+i*leafEntryLen)
}
func (l Leaf) valueAt(i int) RID {
	return getRIDAt(l.pg.Data(), leafEntriesOff+i*leafEntryLen+8)
}
func (l Leaf) setEntryAt(i int, k Key, v RID) {
	base := leafEntriesOff + i*leafEntryLen
	putKeyAt(l.pg.Data(), base, k)
	putRIDAt(l.pg.Data(), base+8, v)
}

// insertAt makes room at index i (shifting entries right) and writes k/v.
func (l Leaf) insertAt(i int, k Key, v RID) {
	n := l.size()
	for j := n; j > i; j-- {
		prevKey, prevVal := l.keyAt(j-1), l.valueAt(j-1)
		l.setEntryAt(j, prevKey, prevVal)
	}
	l.setEntryAt(i, k, v)
	l.setSize(n + 1)
}

// removeAt deletes the entry at index i, shifting later entries left.
func (l Leaf) removeAt(i int) {
	n := l.size()
	for j := i; j < n-1; j++ {
		nextKey, nextVal := l.keyAt(j+1), l.valueAt(j+1)
		l.setEntryAt(j, nextKey, nextVal)
	}
	l.setSize(n - 1)
}

// findKey returns the index of key within the leaf's ordered entries via
// binary search, and whether it was found.
func (l Leaf) findKey(key Key) (int, bool) {
	n := l.size()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if l.keyAt(mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n && l.keyAt(lo) == key {
		return lo, true
	}
	return lo, false
}

// Internal is a typed view over an internal page's byte buffer. Entry 0's
// key is a sentinel (never compared); entries 1..size-1 carry a real key
// and the id of the child subtree whose keys are >= that key.
type Internal struct {
	commonHeader
}

func asInternal(pg *page.Page) Internal { return Internal{commonHeader{pg}} }

func initInternal(pg *page.Page, maxSize int, parent page.ID) Internal {
	in := asInternal(pg)
	in.setPageType(internalPageType)
	in.setLSN(page.InvalidLSN)
	in.setSize(0)
	in.setMaxSize(maxSize)
	in.setParentPageID(parent)
	in.setPageID(pg.ID())
	return in
}

func (in Internal) keyAt(i int) Key {
	return getKeyAt(in.pg.Data(), internalEntriesOff+i*internalEntryLen)
}
func (in Internal) childAt(i int) page.ID {
	return getPageIDAt(in.pg.Data(), internalEntriesOff+i*internalEntryLen+8)
}
func (in Internal) setEntryAt(i int, k Key, child page.ID) {
	base := internalEntriesOff + i*internalEntryLen
	putKeyAt(in.pg.Data(), base, k)
	putPageIDAt(in.pg.Data(), base+8, child)
}

// insertAt makes room at index i (shifting entries right) and writes the
// (key, child) pair.
func (in Internal) insertAt(i int, k Key, child page.ID) {
	n := in.size()
	for j := n; j > i; j-- {
		pk, pc := in.keyAt(j-1), in.childAt(j-1)
		in.setEntryAt(j, pk, pc)
	}
	in.setEntryAt(i, k, child)
	in.setSize(n + 1)
}

func (in Internal) removeAt(i int) {
	n := in.size()
	for j := i; j < n-1; j++ {
		nk, nc := in.keyAt(j+1), in.childAt(j+1)
		in.setEntryAt(j, nk, nc)
	}
	in.setSize(n - 1)
}

// lookup returns the index of the child subtree that must contain key:
// the largest i such that i == 0 or keyAt(i) <= key.
func (in Internal) lookup(key Key) int {
	n := in.size()
	lo, hi := 1, n
	for lo < hi {
		mid := (lo + hi) / 2
		if in.keyAt(mid) <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// valueIndex returns the ordinal position of child among in's children, or
// -1 if child is not one of them. Used by CoalesceOrRedistribute to find a
// node's left/right siblings under its parent.
func (in Internal) valueIndex(child page.ID) int {
	for i := 0; i < in.size(); i++ {
		if in.childAt(i) == child {
			return i
		}
	}
	return -1
}
