// Package txn provides the per-operation context the B+ tree threads
// through a single Search/Insert/Delete/iterator call: the ordered set of
// latched pages it is holding, and the set of page ids it has queued for
// deletion, both released in one sweep at the end of the operation.
package txn

import (
	"context"

	"github.com/google/uuid"

	"github.com/foliostore/foliodb/core/storage/buffer"
	"github.com/foliostore/foliodb/core/storage/page"
)

// Intent distinguishes a read-only descent (shared latches, early release
// once a child is reached) from the two write descents, which differ in
// their safe-node predicate: an insert-safe node has room for one more
// entry before it would split; a delete-safe node has more than the
// minimum before it would underflow.
type Intent int

const (
	// Read acquires shared latches.
	Read Intent = iota
	// Insert acquires exclusive latches; a child is safe once its size is
	// below the split threshold.
	Insert
	// Delete acquires exclusive latches; a child is safe once its size is
	// above the underflow threshold.
	Delete
)

// IsWrite reports whether the intent takes exclusive latches.
func (i Intent) IsWrite() bool { return i != Read }

// Context is a single tree operation's latch/delete-page bookkeeping. It
// is not safe for concurrent use by more than one goroutine — each
// concurrent caller into the tree constructs its own.
type Context struct {
	ID     uuid.UUID
	Intent Intent

	pageSet        []*page.Page
	deletedPageSet []page.ID

	ctx context.Context
}

// New returns a fresh operation context. ctx may be nil; it is carried
// only for log/metric correlation, never consulted for cancellation (the
// engine does not support cancelling an in-flight operation).
func New(intent Intent, ctx context.Context) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{ID: uuid.New(), Intent: intent, ctx: ctx}
}

// GoContext returns the context.Context carried for log/metric
// correlation.
func (c *Context) GoContext() context.Context { return c.ctx }

// AddIntoPageSet records pg as latched by this operation, preserving
// acquisition order.
func (c *Context) AddIntoPageSet(pg *page.Page) {
	c.pageSet = append(c.pageSet, pg)
}

// GetPageSet returns the pages latched so far, in acquisition order.
func (c *Context) GetPageSet() []*page.Page {
	return c.pageSet
}

// ReplacePageSet overwrites the tracked page set. Used by the tree's
// latch-crabbing descent to drop released ancestors while preserving
// acquisition order of what remains.
func (c *Context) ReplacePageSet(set []*page.Page) {
	c.pageSet = set
}

// AddIntoDeletedPageSet queues id for removal once latches are released.
func (c *Context) AddIntoDeletedPageSet(id page.ID) {
	c.deletedPageSet = append(c.deletedPageSet, id)
}

// GetDeletedPageSet returns the page ids queued for deletion.
func (c *Context) GetDeletedPageSet() []page.ID {
	return c.deletedPageSet
}

// ReleaseAndUnpin releases every latch in the page set in acquisition
// order, unpinning each with dirtiness set according to the operation's
// intent, deletes every page id queued for deletion, and clears both sets.
func (c *Context) ReleaseAndUnpin(bpm *buffer.PoolManager) {
	dirty := c.Intent.IsWrite()
	for _, pg := range c.pageSet {
		if dirty {
			pg.Unlock()
		} else {
			pg.RUnlock()
		}
		bpm.UnpinPage(pg.ID(), dirty)
	}
	c.pageSet = nil

	for _, id := range c.deletedPageSet {
		bpm.DeletePage(id)
	}
	c.deletedPageSet = nil
}
