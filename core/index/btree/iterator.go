package btree

import (
	"github.com/foliostore/foliodb/core/storage/page"
	"github.com/foliostore/foliodb/core/txn"
)

// Iterator is a stateful cursor over a leaf chain. It holds a pin on its
// current leaf for its entire lifetime; advancing past a leaf's last entry
// fetches the next leaf and unpins the previous one.
type Iterator struct {
	t     *Tree
	leaf  *page.Page
	index int
}

// IsEnd reports whether the cursor has advanced past the last entry of
// the last leaf.
func (it *Iterator) IsEnd() bool {
	if it.leaf == nil {
		return true
	}
	l := asLeaf(it.leaf)
	return it.index == l.size() && l.nextPageID() == page.InvalidID
}

// Key returns the key at the cursor. Calling it at IsEnd is a programming
// error.
func (it *Iterator) Key() Key {
	return asLeaf(it.leaf).keyAt(it.index)
}

// Value returns the value at the cursor. Calling it at IsEnd is a
// programming error.
func (it *Iterator) Value() RID {
	return asLeaf(it.leaf).valueAt(it.index)
}

// Next advances the cursor by one entry, crossing into the next leaf if
// the current one is exhausted.
func (it *Iterator) Next() {
	l := asLeaf(it.leaf)
	it.index++
	if it.index < l.size() {
		return
	}
	next := l.nextPageID()
	if next == page.InvalidID {
		return // stays at IsEnd
	}
	nextPage, err := it.t.bpm.FetchPage(next)
	if err != nil {
		corrupt("failed to fetch next leaf during iteration")
	}
	it.t.bpm.UnpinPage(it.leaf.ID(), false)
	it.leaf = nextPage
	it.index = 0
}

// Close releases the cursor's pin on its current leaf. Safe to call more
// than once.
func (it *Iterator) Close() {
	if it.leaf == nil {
		return
	}
	it.t.bpm.UnpinPage(it.leaf.ID(), false)
	it.leaf = nil
}

// Begin returns an iterator positioned at the first entry of the tree in
// key order.
func (t *Tree) Begin() *Iterator {
	return t.beginAt(true, false)
}

// BeginAt returns an iterator positioned at the first entry >= key.
func (t *Tree) BeginAt(key Key) *Iterator {
	return t.beginAtKey(key)
}

// End returns an iterator already positioned one past the last entry.
func (t *Tree) End() *Iterator {
	it := t.beginAt(false, true)
	if it.leaf != nil {
		it.index = asLeaf(it.leaf).size()
	}
	return it
}

func (t *Tree) beginAtKey(key Key) *Iterator {
	c := txn.New(txn.Read, nil)
	defer c.ReleaseAndUnpin(t.bpm)

	hp, err := t.fetchHeaderGuard(c)
	if err != nil {
		return &Iterator{t: t}
	}
	root := lookupRoot(hp, t.name)
	if root == page.InvalidID {
		return &Iterator{t: t}
	}
	leaf, err := t.descend(c, root, key, false, false)
	if err != nil {
		return &Iterator{t: t}
	}
	pinned, err := t.bpm.FetchPage(leaf.ID())
	if err != nil {
		corrupt("failed to re-pin leaf for iterator")
	}
	return (&Iterator{t: t, leaf: pinned}).seek(key)
}

func (t *Tree) beginAt(leftmost, rightmost bool) *Iterator {
	c := txn.New(txn.Read, nil)
	defer c.ReleaseAndUnpin(t.bpm)

	hp, err := t.fetchHeaderGuard(c)
	if err != nil {
		return &Iterator{t: t}
	}
	root := lookupRoot(hp, t.name)
	if root == page.InvalidID {
		return &Iterator{t: t}
	}

	leaf, err := t.descend(c, root, 0, leftmost, rightmost)
	if err != nil {
		return &Iterator{t: t}
	}
	// The iterator owns the pin independent of the operation context: pin
	// again before the context's sweep unpins its tracked copy.
	pinned, err := t.bpm.FetchPage(leaf.ID())
	if err != nil {
		corrupt("failed to re-pin leaf for iterator")
	}
	return &Iterator{t: t, leaf: pinned}
}

func (it *Iterator) seek(key Key) *Iterator {
	if it.leaf == nil {
		return it
	}
	l := asLeaf(it.leaf)
	idx, _ := l.findKey(key)
	it.index = idx
	if idx == l.size() && l.nextPageID() != page.InvalidID {
		// key falls in the gap between this leaf's last entry and the
		// next leaf's first: cross over so Key()/Value() don't read past
		// the entry array.
		next, err := it.t.bpm.FetchPage(l.nextPageID())
		if err != nil {
			corrupt("failed to fetch next leaf while seeking")
		}
		it.t.bpm.UnpinPage(it.leaf.ID(), false)
		it.leaf = next
		it.index = 0
	}
	return it
}
