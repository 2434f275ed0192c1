// Package btree implements a disk-resident B+ tree index on top of a
// buffer pool, with fine-grained concurrency via latch crabbing.
package btree

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/foliostore/foliodb/core/storage/buffer"
	"github.com/foliostore/foliodb/core/storage/page"
	"github.com/foliostore/foliodb/core/txn"
	internaltelemetry "github.com/foliostore/foliodb/internal/telemetry"
)

// Tree is a named B+ tree index. Its root is recorded in the header page
// rather than held as an in-memory pointer, so every root change is
// durable through the same page the guard latch protects.
type Tree struct {
	name            string
	bpm             *buffer.PoolManager
	leafMaxSize     int
	internalMaxSize int

	log     *zap.Logger
	metrics *internaltelemetry.StorageMetrics
}

// Config configures a Tree's page capacities. Zero fields take the
// defaults (leaf 254, internal 255), which fit inside one 4096-byte page
// even at the transient size a node reaches just before it splits.
type Config struct {
	LeafMaxSize     int
	InternalMaxSize int
	Logger          *zap.Logger
	Metrics         *internaltelemetry.StorageMetrics
}

const (
	defaultLeafMaxSize     = (page.Size - leafEntriesOff) / leafEntryLen // 254
	defaultInternalMaxSize = 255
)

// New returns a Tree named name over bpm. Multiple trees may share one
// buffer pool; each is distinguished in the header page by name.
func New(name string, bpm *buffer.PoolManager, cfg Config) *Tree {
	if cfg.LeafMaxSize == 0 {
		cfg.LeafMaxSize = defaultLeafMaxSize
	}
	if cfg.InternalMaxSize == 0 {
		cfg.InternalMaxSize = defaultInternalMaxSize
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Tree{
		name:            name,
		bpm:             bpm,
		leafMaxSize:     cfg.LeafMaxSize,
		internalMaxSize: cfg.InternalMaxSize,
		log:             log,
		metrics:         cfg.Metrics,
	}
}

func minSize(maxSize int) int { return (maxSize + 1) / 2 }

func (t *Tree) observe(start time.Time) {
	if t.metrics == nil {
		return
	}
	t.metrics.TreeOperationLatency.Record(context.Background(), time.Since(start).Microseconds())
}

// lockPage acquires the latch appropriate to intent and tracks pg in c's
// page set so the end-of-operation sweep releases it.
func (t *Tree) lockPage(c *txn.Context, pg *page.Page) {
	if c.Intent == txn.Read {
		pg.RLock()
	} else {
		pg.Lock()
	}
	c.AddIntoPageSet(pg)
}

// fetchHeaderGuard fetches and latches the header page: it is always the
// first page in the operation's set, serializing root changes.
func (t *Tree) fetchHeaderGuard(c *txn.Context) (*page.Page, error) {
	hp, err := t.bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		return nil, ErrBufferExhausted
	}
	t.lockPage(c, hp)
	return hp, nil
}

// releaseAncestorsOf releases and unpins every page in c's set before
// keep, which itself remains tracked.
func (t *Tree) releaseAncestorsOf(c *txn.Context, keep *page.Page) {
	set := c.GetPageSet()
	cut := len(set) - 1
	for cut >= 0 && set[cut] != keep {
		cut--
	}
	for i := 0; i < cut; i++ {
		pg := set[i]
		if c.Intent == txn.Read {
			pg.RUnlock()
		} else {
			pg.Unlock()
		}
		t.bpm.UnpinPage(pg.ID(), c.Intent.IsWrite())
	}
	remaining := append([]*page.Page{}, set[cut:]...)
	c.ReplacePageSet(remaining)
}

func isSafeNode(pg *page.Page, intent txn.Intent, leafMax, internalMax int) bool {
	ch := commonHeader{pg}
	size := ch.size()
	if intent == txn.Insert {
		max := leafMax
		if ch.pageType() == internalPageType {
			max = internalMax
		}
		return size < max-1
	}
	// txn.Delete
	max := leafMax
	if ch.pageType() == internalPageType {
		max = internalMax
	}
	return size > minSize(max)
}

// descend walks from the header-recorded root to the leaf that would
// contain key, crabbing latches per c.Intent, and returns that leaf (still
// held in c's page set). root must already be valid (tree non-empty).
func (t *Tree) descend(c *txn.Context, root page.ID, key Key, leftmost, rightmost bool) (*page.Page, error) {
	cur, err := t.bpm.FetchPage(root)
	if err != nil {
		return nil, ErrBufferExhausted
	}
	t.lockPage(c, cur)

	for (commonHeader{cur}).pageType() != leafPageType {
		in := asInternal(cur)
		var idx int
		switch {
		case leftmost:
			idx = 0
		case rightmost:
			idx = in.size() - 1
		default:
			idx = in.lookup(key)
		}
		childID := in.childAt(idx)
		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			return nil, ErrBufferExhausted
		}
		t.lockPage(c, child)

		if c.Intent == txn.Read || isSafeNode(child, c.Intent, t.leafMaxSize, t.internalMaxSize) {
			t.releaseAncestorsOf(c, child)
		}
		cur = child
	}
	return cur, nil
}

// IsEmpty reports whether the tree currently has no root.
func (t *Tree) IsEmpty() bool {
	c := txn.New(txn.Read, nil)
	hp, err := t.fetchHeaderGuard(c)
	defer c.ReleaseAndUnpin(t.bpm)
	if err != nil {
		return true
	}
	return lookupRoot(hp, t.name) == page.InvalidID
}

// GetValue looks up key and reports whether it is present, along with its
// value if so.
func (t *Tree) GetValue(key Key) (RID, bool) {
	defer t.observe(time.Now())
	c := txn.New(txn.Read, nil)
	defer c.ReleaseAndUnpin(t.bpm)

	hp, err := t.fetchHeaderGuard(c)
	if err != nil {
		return RID{}, false
	}
	root := lookupRoot(hp, t.name)
	if root == page.InvalidID {
		return RID{}, false
	}

	leaf, err := t.descend(c, root, key, false, false)
	if err != nil {
		return RID{}, false
	}
	l := asLeaf(leaf)
	idx, found := l.findKey(key)
	if !found {
		return RID{}, false
	}
	return l.valueAt(idx), true
}
