// Package buffer implements the buffer pool manager: a fixed-size cache of
// page frames backed by disk.Manager, with pin/unpin semantics and LRU
// eviction via replacer.LRU.
package buffer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/foliostore/foliodb/core/storage/disk"
	"github.com/foliostore/foliodb/core/storage/page"
	"github.com/foliostore/foliodb/core/storage/replacer"
	internaltelemetry "github.com/foliostore/foliodb/internal/telemetry"
)

// PoolManager maps page ids to frames, services page faults from disk, and
// tracks eviction candidacy through an LRU replacer. One mutex serializes
// all page-table, free-list, replacer, and frame-metadata mutations; the
// per-page latches callers acquire after FetchPage are orthogonal to it.
type PoolManager struct {
	mu sync.Mutex

	disk      *disk.Manager
	poolSize  int
	pages     []*page.Page
	pageTable map[page.ID]int
	freeList  []int
	replacer  *replacer.LRU

	log     *zap.Logger
	metrics *internaltelemetry.StorageMetrics
}

// New creates a pool of poolSize frames backed by dm. log and metrics may
// be nil.
func New(poolSize int, dm *disk.Manager, log *zap.Logger, metrics *internaltelemetry.StorageMetrics) *PoolManager {
	if log == nil {
		log = zap.NewNop()
	}
	pm := &PoolManager{
		disk:      dm,
		poolSize:  poolSize,
		pages:     make([]*page.Page, poolSize),
		pageTable: make(map[page.ID]int, poolSize),
		freeList:  make([]int, poolSize),
		replacer:  replacer.NewLRU(poolSize),
		log:       log,
		metrics:   metrics,
	}
	for i := 0; i < poolSize; i++ {
		pm.pages[i] = page.New()
		pm.freeList[i] = poolSize - 1 - i
	}
	return pm
}

// FetchPage returns the page for id, pinned. It loads the page from disk
// if it is not already resident, evicting a victim frame if necessary.
func (pm *PoolManager) FetchPage(id page.ID) (*page.Page, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.metrics != nil {
		pm.metrics.PageFetchCounter.Add(context.Background(), 1)
	}

	if frameIdx, ok := pm.pageTable[id]; ok {
		pg := pm.pages[frameIdx]
		if pg.PinCount() == 0 {
			pm.replacer.Pin(frameIdx)
			if pm.metrics != nil {
				pm.metrics.PinnedPagesGauge.Add(context.Background(), 1)
			}
		}
		pg.Pin()
		if pm.metrics != nil {
			pm.metrics.PageHitCounter.Add(context.Background(), 1)
		}
		return pg, nil
	}

	if pm.metrics != nil {
		pm.metrics.PageMissCounter.Add(context.Background(), 1)
	}

	frameIdx, evicted, err := pm.victimFrame()
	if err != nil {
		return nil, err
	}
	if evicted && pm.metrics != nil {
		pm.metrics.PageEvictionCounter.Add(context.Background(), 1)
	}

	victim := pm.pages[frameIdx]
	if err := pm.writeBackIfDirty(victim); err != nil {
		return nil, err
	}
	if victim.ID() != page.InvalidID {
		delete(pm.pageTable, victim.ID())
	}
	victim.Reset()

	if err := pm.disk.ReadPage(id, victim.Data()); err != nil {
		return nil, err
	}
	victim.SetID(id)
	victim.SetPinCount(1)
	pm.pageTable[id] = frameIdx
	if pm.metrics != nil {
		pm.metrics.PinnedPagesGauge.Add(context.Background(), 1)
	}

	pm.log.Debug("page fetched", zap.Int32("page_id", int32(id)), zap.Int("frame", frameIdx))
	return victim, nil
}

// victimFrame selects a frame to (re)use, preferring the free list over
// the replacer, and reports whether the frame was evicted from a resident
// page (as opposed to being genuinely free).
func (pm *PoolManager) victimFrame() (frameIdx int, evicted bool, err error) {
	if n := len(pm.freeList); n > 0 {
		frameIdx = pm.freeList[n-1]
		pm.freeList = pm.freeList[:n-1]
		return frameIdx, false, nil
	}
	frameIdx, err = pm.replacer.Victim()
	if err != nil {
		return 0, false, ErrExhausted
	}
	return frameIdx, true, nil
}

func (pm *PoolManager) writeBackIfDirty(pg *page.Page) error {
	if !pg.IsDirty() || pg.ID() == page.InvalidID {
		return nil
	}
	if err := pm.disk.WritePage(pg.ID(), pg.Data()); err != nil {
		return err
	}
	pg.ClearDirty()
	return nil
}

// UnpinPage decrements id's pin count and ORs isDirty into its dirty flag.
// It reports false if id is not resident or its pin count is already zero.
func (pm *PoolManager) UnpinPage(id page.ID, isDirty bool) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	frameIdx, ok := pm.pageTable[id]
	if !ok {
		return false
	}
	pg := pm.pages[frameIdx]
	if pg.PinCount() <= 0 {
		pm.log.Warn("unpin on zero pin count", zap.Int32("page_id", int32(id)))
		return false
	}
	pg.SetDirty(isDirty)
	pg.Unpin()
	if pg.PinCount() == 0 {
		pm.replacer.Unpin(frameIdx)
		if pm.metrics != nil {
			pm.metrics.PinnedPagesGauge.Add(context.Background(), -1)
		}
	}
	return true
}

// FlushPage writes id's contents to disk if dirty and clears the dirty
// flag. It does not unpin. It reports false if id is invalid or unknown.
func (pm *PoolManager) FlushPage(id page.ID) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if id == page.InvalidID {
		return false
	}
	frameIdx, ok := pm.pageTable[id]
	if !ok {
		return false
	}
	pg := pm.pages[frameIdx]
	if pg.IsDirty() {
		if err := pm.disk.WritePage(pg.ID(), pg.Data()); err != nil {
			pm.log.Error("flush failed", zap.Int32("page_id", int32(id)), zap.Error(err))
			return false
		}
		pg.ClearDirty()
	}
	return true
}

// NewPage allocates a fresh page id via the disk manager, takes a frame
// (free list first, then eviction), and returns a pinned, zeroed page.
func (pm *PoolManager) NewPage() (*page.Page, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	frameIdx, evicted, err := pm.victimFrame()
	if err != nil {
		return nil, err
	}
	victim := pm.pages[frameIdx]
	if evicted {
		if pm.metrics != nil {
			pm.metrics.PageEvictionCounter.Add(context.Background(), 1)
		}
		if err := pm.writeBackIfDirty(victim); err != nil {
			return nil, err
		}
		if victim.ID() != page.InvalidID {
			delete(pm.pageTable, victim.ID())
		}
	}

	id, err := pm.disk.AllocatePage()
	if err != nil {
		// Return the frame to the free list; nothing was mutated on it.
		pm.freeList = append(pm.freeList, frameIdx)
		return nil, err
	}

	victim.Reset()
	victim.SetID(id)
	victim.SetPinCount(1)
	pm.pageTable[id] = frameIdx
	if pm.metrics != nil {
		pm.metrics.PinnedPagesGauge.Add(context.Background(), 1)
	}

	pm.log.Debug("page allocated", zap.Int32("page_id", int32(id)), zap.Int("frame", frameIdx))
	return victim, nil
}

// DeletePage removes id from the pool and tells the disk manager the id is
// reusable. It reports true (no-op) if id is unknown, and false without
// modifying state if id is still pinned.
func (pm *PoolManager) DeletePage(id page.ID) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	frameIdx, ok := pm.pageTable[id]
	if !ok {
		return true
	}
	pg := pm.pages[frameIdx]
	if pg.PinCount() > 0 {
		return false
	}

	pm.replacer.Pin(frameIdx)
	if pg.IsDirty() {
		_ = pm.disk.WritePage(pg.ID(), pg.Data())
	}
	delete(pm.pageTable, id)
	pg.Reset()
	pm.freeList = append(pm.freeList, frameIdx)

	if err := pm.disk.DeallocatePage(id); err != nil {
		pm.log.Warn("deallocate failed", zap.Int32("page_id", int32(id)), zap.Error(err))
	}
	return true
}

// FlushAllPages writes every resident dirty page to disk and clears its
// dirty flag.
func (pm *PoolManager) FlushAllPages() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for id, frameIdx := range pm.pageTable {
		pg := pm.pages[frameIdx]
		if pg.IsDirty() {
			if err := pm.disk.WritePage(id, pg.Data()); err != nil {
				pm.log.Error("flush-all write failed", zap.Int32("page_id", int32(id)), zap.Error(err))
				continue
			}
			pg.ClearDirty()
		}
	}
}
