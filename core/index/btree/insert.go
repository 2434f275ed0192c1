package btree

import (
	"time"

	"go.uber.org/zap"

	"github.com/foliostore/foliodb/core/storage/page"
	"github.com/foliostore/foliodb/core/txn"
)

// Insert adds key/value if key is not already present, returning true on
// success and false if key was a duplicate.
func (t *Tree) Insert(key Key, value RID) bool {
	defer t.observe(time.Now())
	c := txn.New(txn.Insert, nil)
	defer c.ReleaseAndUnpin(t.bpm)

	hp, err := t.fetchHeaderGuard(c)
	if err != nil {
		return false
	}

	root := lookupRoot(hp, t.name)
	if root == page.InvalidID {
		return t.startTree(c, hp, key, value)
	}

	leaf, err := t.descend(c, root, key, false, false)
	if err != nil {
		return false
	}
	l := asLeaf(leaf)
	idx, found := l.findKey(key)
	if found {
		return false
	}
	l.insertAt(idx, key, value)

	if l.size() == t.leafMaxSize {
		t.splitLeaf(c, leaf)
	}
	return true
}

// startTree handles the empty-tree case: allocate the first leaf, make it
// root, insert the pair, and record the root in the header page. The
// header guard is already held exclusively by the caller.
func (t *Tree) startTree(c *txn.Context, hp *page.Page, key Key, value RID) bool {
	leafPage, err := t.bpm.NewPage()
	if err != nil {
		return false
	}
	leaf := initLeaf(leafPage, t.leafMaxSize, page.InvalidID)
	leaf.insertAt(0, key, value)
	t.lockPage(c, leafPage)

	storeRoot(hp, t.name, leafPage.ID())
	t.log.Debug("tree started", zap.String("index", t.name), zap.Int32("root", int32(leafPage.ID())))
	return true
}

// splitLeaf moves the upper half of left's entries into a new right
// sibling and propagates the separator into the parent.
func (t *Tree) splitLeaf(c *txn.Context, leftPage *page.Page) {
	left := asLeaf(leftPage)
	rightPage, err := t.bpm.NewPage()
	if err != nil {
		corrupt("failed to allocate page for leaf split")
	}
	right := initLeaf(rightPage, t.leafMaxSize, left.parentPageID())
	t.lockPage(c, rightPage)

	n := left.size()
	mid := n / 2
	for i := mid; i < n; i++ {
		right.insertAt(i-mid, left.keyAt(i), left.valueAt(i))
	}
	left.setSize(mid)

	right.setNextPageID(left.nextPageID())
	left.setNextPageID(rightPage.ID())

	if t.metrics != nil {
		t.metrics.TreeSplitCounter.Add(c.GoContext(), 1)
	}
	t.insertIntoParent(c, leftPage, right.keyAt(0), rightPage)
}

// splitInternal moves the upper half of left's entries (re-parenting the
// moved children) into a new right sibling and propagates the separator,
// which is removed from the children rather than copied.
func (t *Tree) splitInternal(c *txn.Context, leftPage *page.Page) {
	left := asInternal(leftPage)
	rightPage, err := t.bpm.NewPage()
	if err != nil {
		corrupt("failed to allocate page for internal split")
	}
	right := initInternal(rightPage, t.internalMaxSize, left.parentPageID())
	t.lockPage(c, rightPage)

	n := left.size()
	mid := (n + 1) / 2
	for i := mid; i < n; i++ {
		right.insertAt(i-mid, left.keyAt(i), left.childAt(i))
		t.reparent(right.childAt(i-mid), rightPage.ID())
	}
	left.setSize(mid)

	separator := right.keyAt(0)

	if t.metrics != nil {
		t.metrics.TreeSplitCounter.Add(c.GoContext(), 1)
	}
	t.insertIntoParent(c, leftPage, separator, rightPage)
}

// reparent fetches child just long enough to update its parent pointer.
// child is not part of the crabbing chain (it was already write-latched
// by an ancestor's descent or is being moved as part of an SMO the caller
// already holds exclusively), so a bare fetch/unpin is sufficient.
func (t *Tree) reparent(child page.ID, parent page.ID) {
	pg, err := t.bpm.FetchPage(child)
	if err != nil {
		corrupt("failed to fetch child during re-parenting")
	}
	commonHeader{pg}.setParentPageID(parent)
	t.bpm.UnpinPage(child, true)
}

// insertIntoParent installs a newly split child's separator: if left has
// no parent, a new internal root is allocated above it; otherwise the
// separator is inserted into the already-held parent, splitting it if it
// overflows.
func (t *Tree) insertIntoParent(c *txn.Context, left *page.Page, key Key, right *page.Page) {
	leftHdr := commonHeader{left}
	parentID := leftHdr.parentPageID()

	if parentID == page.InvalidID {
		rootPage, err := t.bpm.NewPage()
		if err != nil {
			corrupt("failed to allocate new root during split")
		}
		root := initInternal(rootPage, t.internalMaxSize, page.InvalidID)
		t.lockPage(c, rootPage)

		root.insertAt(0, 0, left.ID())
		root.insertAt(1, key, right.ID())

		leftHdr.setParentPageID(rootPage.ID())
		commonHeader{right}.setParentPageID(rootPage.ID())

		hp := t.findHeaderInSet(c)
		storeRoot(hp, t.name, rootPage.ID())
		return
	}

	parentPage := t.findInSet(c, parentID)
	if parentPage == nil {
		corrupt("parent page not held during InsertIntoParent")
	}
	parent := asInternal(parentPage)
	idx := parent.valueIndex(left.ID())
	if idx < 0 {
		corrupt("left child not found in parent during InsertIntoParent")
	}
	parent.insertAt(idx+1, key, right.ID())
	commonHeader{right}.setParentPageID(parentID)

	if parent.size() > t.internalMaxSize {
		t.splitInternal(c, parentPage)
	}
}

// findInSet returns the already-latched page with the given id from c's
// page set, or nil if it is not held.
func (t *Tree) findInSet(c *txn.Context, id page.ID) *page.Page {
	for _, pg := range c.GetPageSet() {
		if pg.ID() == id {
			return pg
		}
	}
	return nil
}

// findHeaderInSet returns the header page, which is always first in the
// set for the duration of an insert/delete operation.
func (t *Tree) findHeaderInSet(c *txn.Context) *page.Page {
	set := c.GetPageSet()
	if len(set) == 0 || set[0].ID() != page.HeaderPageID {
		corrupt("header guard not held during root update")
	}
	return set[0]
}
