package btree

import (
	"time"

	"github.com/foliostore/foliodb/core/storage/page"
	"github.com/foliostore/foliodb/core/txn"
)

// Remove deletes key if present. It is a no-op if key is absent or the
// tree is empty.
func (t *Tree) Remove(key Key) {
	defer t.observe(time.Now())
	c := txn.New(txn.Delete, nil)
	defer c.ReleaseAndUnpin(t.bpm)

	hp, err := t.fetchHeaderGuard(c)
	if err != nil {
		return
	}
	root := lookupRoot(hp, t.name)
	if root == page.InvalidID {
		return
	}

	leaf, err := t.descend(c, root, key, false, false)
	if err != nil {
		return
	}
	l := asLeaf(leaf)
	idx, found := l.findKey(key)
	if !found {
		return
	}
	l.removeAt(idx)

	if l.size() < minSize(t.leafMaxSize) {
		t.coalesceOrRedistribute(c, leaf)
	}
}

// coalesceOrRedistribute repairs an underflowed node: the root is handled
// by adjustRoot; otherwise the node is merged into a sibling if that keeps
// the sibling within capacity, else entries are redistributed with a
// sibling, updating the parent separator.
func (t *Tree) coalesceOrRedistribute(c *txn.Context, nodePage *page.Page) {
	nodeHdr := commonHeader{nodePage}
	parentID := nodeHdr.parentPageID()
	if parentID == page.InvalidID {
		if t.adjustRoot(c, nodePage) {
			c.AddIntoDeletedPageSet(nodePage.ID())
		}
		return
	}

	parentPage := t.findInSet(c, parentID)
	if parentPage == nil {
		corrupt("parent page not held during CoalesceOrRedistribute")
	}
	parent := asInternal(parentPage)
	i := parent.valueIndex(nodePage.ID())
	if i < 0 {
		corrupt("node not found in parent during CoalesceOrRedistribute")
	}

	maxSize := t.leafMaxSize
	isLeaf := nodeHdr.pageType() == leafPageType
	if !isLeaf {
		maxSize = t.internalMaxSize
	}

	var leftPage, rightPage *page.Page
	if i > 0 {
		leftPage = t.fetchSibling(parent.childAt(i - 1))
		defer t.unpinSibling(leftPage)
		leftSize := commonHeader{leftPage}.size()
		if leftSize+nodeHdr.size() < maxSize {
			t.coalesce(c, leftPage, nodePage, parentPage, i)
			if parent.size() < minSize(t.internalMaxSize) {
				t.coalesceOrRedistribute(c, parentPage)
			}
			if t.metrics != nil {
				t.metrics.TreeCoalesceCounter.Add(c.GoContext(), 1)
			}
			return
		}
	}
	if i < parent.size()-1 {
		rightPage = t.fetchSibling(parent.childAt(i + 1))
		defer t.unpinSibling(rightPage)
		rightSize := commonHeader{rightPage}.size()
		if nodeHdr.size()+rightSize < maxSize {
			t.coalesce(c, nodePage, rightPage, parentPage, i+1)
			if parent.size() < minSize(t.internalMaxSize) {
				t.coalesceOrRedistribute(c, parentPage)
			}
			if t.metrics != nil {
				t.metrics.TreeCoalesceCounter.Add(c.GoContext(), 1)
			}
			return
		}
	}

	// Neither sibling can absorb node: redistribute instead, with the
	// sibling latched above.
	if leftPage != nil {
		t.redistributeFromLeft(leftPage, nodePage, parentPage, i)
		return
	}
	t.redistributeFromRight(nodePage, rightPage, parentPage, i+1)
}

// fetchSibling and coalesce/redistribute acquire sibling latches only
// while the parent is still held, always in parent order (left before
// right), matching the deadlock-avoidance rule in the latching protocol.
func (t *Tree) fetchSibling(id page.ID) *page.Page {
	pg, err := t.bpm.FetchPage(id)
	if err != nil {
		corrupt("failed to fetch sibling during SMO")
	}
	pg.Lock()
	return pg
}

func (t *Tree) unpinSibling(pg *page.Page) {
	pg.Unlock()
	t.bpm.UnpinPage(pg.ID(), true)
}

// coalesce merges right into left and removes the parent's separator
// entry at index rightIdx (the entry pointing at right).
func (t *Tree) coalesce(c *txn.Context, leftPage, rightPage, parentPage *page.Page, rightIdx int) {
	if (commonHeader{leftPage}).pageType() == leafPageType {
		left, right := asLeaf(leftPage), asLeaf(rightPage)
		n := right.size()
		base := left.size()
		for i := 0; i < n; i++ {
			left.insertAt(base+i, right.keyAt(i), right.valueAt(i))
		}
		left.setNextPageID(right.nextPageID())
	} else {
		left, right := asInternal(leftPage), asInternal(rightPage)
		parent := asInternal(parentPage)
		bridgeKey := parent.keyAt(rightIdx)
		n := right.size()
		base := left.size()
		for i := 0; i < n; i++ {
			k := right.keyAt(i)
			if i == 0 {
				k = bridgeKey
			}
			left.insertAt(base+i, k, right.childAt(i))
			t.reparent(right.childAt(i), leftPage.ID())
		}
	}
	asInternal(parentPage).removeAt(rightIdx)
	c.AddIntoDeletedPageSet(rightPage.ID())
}

// redistributeFromLeft moves left's last entry to the front of node,
// updating the parent separator at nodeIdx.
func (t *Tree) redistributeFromLeft(leftPage, nodePage, parentPage *page.Page, nodeIdx int) {
	parent := asInternal(parentPage)
	if (commonHeader{nodePage}).pageType() == leafPageType {
		left, node := asLeaf(leftPage), asLeaf(nodePage)
		li := left.size() - 1
		k, v := left.keyAt(li), left.valueAt(li)
		left.removeAt(li)
		node.insertAt(0, k, v)
		parent.setEntryAt(nodeIdx, k, parent.childAt(nodeIdx))
	} else {
		left, node := asInternal(leftPage), asInternal(nodePage)
		li := left.size() - 1
		child := left.childAt(li)
		bridgeUp := left.keyAt(li)
		left.removeAt(li)
		movedDown := parent.keyAt(nodeIdx)
		node.insertAt(0, 0, child)
		node.setEntryAt(1, movedDown, node.childAt(1))
		t.reparent(child, nodePage.ID())
		parent.setEntryAt(nodeIdx, bridgeUp, parent.childAt(nodeIdx))
	}
}

// redistributeFromRight moves right's first entry to the end of node,
// updating the parent separator at rightIdx.
func (t *Tree) redistributeFromRight(nodePage, rightPage, parentPage *page.Page, rightIdx int) {
	parent := asInternal(parentPage)
	if (commonHeader{nodePage}).pageType() == leafPageType {
		node, right := asLeaf(nodePage), asLeaf(rightPage)
		k, v := right.keyAt(0), right.valueAt(0)
		right.removeAt(0)
		node.insertAt(node.size(), k, v)
		parent.setEntryAt(rightIdx, right.keyAt(0), parent.childAt(rightIdx))
	} else {
		node, right := asInternal(nodePage), asInternal(rightPage)
		child := right.childAt(0)
		bridgeDown := parent.keyAt(rightIdx)
		var newSeparator Key
		if right.size() > 1 {
			newSeparator = right.keyAt(1)
		}
		right.removeAt(0)
		node.insertAt(node.size(), bridgeDown, child)
		t.reparent(child, nodePage.ID())
		parent.setEntryAt(rightIdx, newSeparator, parent.childAt(rightIdx))
	}
}

// adjustRoot shrinks the tree when the root underflows: an empty leaf root
// empties the tree, and an internal root with a single child is replaced
// by that child. It reports whether root should be deleted.
func (t *Tree) adjustRoot(c *txn.Context, rootPage *page.Page) bool {
	hdr := commonHeader{rootPage}
	hp := t.findHeaderInSet(c)

	if hdr.pageType() == leafPageType {
		if hdr.size() == 0 {
			storeRoot(hp, t.name, page.InvalidID)
			return true
		}
		return false
	}

	in := asInternal(rootPage)
	if in.size() == 1 {
		onlyChild := in.childAt(0)
		t.reparent(onlyChild, page.InvalidID)
		storeRoot(hp, t.name, onlyChild)
		return true
	}
	return false
}
