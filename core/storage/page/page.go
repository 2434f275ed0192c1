// Package page defines the fixed-size frame contents shared by the buffer
// pool and the B+ tree index: the physical page abstraction, its identity
// types, and the per-page reader/writer latch.
package page

import (
	"sync"

	commonutils "github.com/foliostore/foliodb/internal/common_utils"
)

// Debug, when set, makes every latch acquisition/release on every page
// print its caller. It is off by default; flip it on a single test run to
// trace a latch-crabbing bug, not in production.
var Debug bool

// Size is the fixed size, in bytes, of every page on disk and in memory.
const Size = 4096

// ID identifies a page across the lifetime of the database file. Negative
// values are reserved; InvalidID marks "no page".
type ID int32

// InvalidID is the sentinel page id meaning "no page".
const InvalidID ID = -1

// LSN is carried in every page's header for on-disk layout compatibility.
// This engine has no log manager, so it is always InvalidLSN.
type LSN int32

// InvalidLSN is the LSN value written by an engine with no log manager.
const InvalidLSN LSN = 0

// HeaderPageID is the reserved id of the guard/header page: it maps index
// names to their current root page id and is latched at the start of every
// tree operation to serialize root changes.
const HeaderPageID ID = 0

// Page is an in-memory frame: fixed-size bytes plus buffer-pool bookkeeping
// and a latch used exclusively by callers above the buffer pool (the B+
// tree's crabbing protocol). The latch is orthogonal to pinCount and to the
// buffer pool's own mutex.
type Page struct {
	id       ID
	data     [Size]byte
	pinCount int32
	dirty    bool

	latch sync.RWMutex
}

// New returns a zeroed page frame with no identity.
func New() *Page {
	return &Page{id: InvalidID}
}

// Reset clears identity and bookkeeping and zeroes the frame's bytes,
// preparing it to be recycled for a different page id.
func (p *Page) Reset() {
	p.id = InvalidID
	p.pinCount = 0
	p.dirty = false
	for i := range p.data {
		p.data[i] = 0
	}
}

// Data returns the raw bytes of the frame. Callers holding at least a read
// latch may read it; callers holding a write latch may mutate it in place.
func (p *Page) Data() []byte { return p.data[:] }

// ID returns the page's identity, or InvalidID if the frame is free.
func (p *Page) ID() ID { return p.id }

// SetID assigns the frame's identity. Used only by the buffer pool.
func (p *Page) SetID(id ID) { p.id = id }

// IsDirty reports whether the frame has unflushed modifications.
func (p *Page) IsDirty() bool { return p.dirty }

// SetDirty ORs dirty into the sticky dirty flag; it is cleared only by a
// successful flush.
func (p *Page) SetDirty(dirty bool) {
	if dirty {
		p.dirty = true
	}
}

// ClearDirty is used by the buffer pool immediately after a successful
// flush to disk.
func (p *Page) ClearDirty() { p.dirty = false }

// Pin increments the reference count preventing eviction.
func (p *Page) Pin() { p.pinCount++ }

// Unpin decrements the reference count. It is a no-op below zero.
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

// PinCount returns the current pin count.
func (p *Page) PinCount() int32 { return p.pinCount }

// SetPinCount is used by the buffer pool when materializing a page.
func (p *Page) SetPinCount(n int32) { p.pinCount = n }

// RLock acquires a shared latch on the page's contents.
func (p *Page) RLock() {
	p.latch.RLock()
	if Debug {
		commonutils.PrintCaller("page rlock", int32(p.id), 2)
	}
}

// RUnlock releases a shared latch.
func (p *Page) RUnlock() {
	if Debug {
		commonutils.PrintCaller("page runlock", int32(p.id), 2)
	}
	p.latch.RUnlock()
}

// Lock acquires an exclusive latch on the page's contents.
func (p *Page) Lock() {
	p.latch.Lock()
	if Debug {
		commonutils.PrintCaller("page lock", int32(p.id), 2)
	}
}

// Unlock releases an exclusive latch.
func (p *Page) Unlock() {
	if Debug {
		commonutils.PrintCaller("page unlock", int32(p.id), 2)
	}
	p.latch.Unlock()
}
