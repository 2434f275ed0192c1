package btree

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foliostore/foliodb/core/storage/buffer"
	"github.com/foliostore/foliodb/core/storage/disk"
	"github.com/foliostore/foliodb/core/storage/page"
)

func newTestTree(t *testing.T, leafMax, internalMax, poolSize int) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	dm, err := disk.Open(path, true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })

	pm := buffer.New(poolSize, dm, nil, nil)
	hp, err := pm.NewPage()
	require.NoError(t, err)
	require.Equal(t, page.HeaderPageID, hp.ID())
	pm.UnpinPage(hp.ID(), true)

	return New("default", pm, Config{LeafMaxSize: leafMax, InternalMaxSize: internalMax})
}

func TestTree_EmptyHasNoValue(t *testing.T) {
	tr := newTestTree(t, 4, 4, 32)
	require.True(t, tr.IsEmpty())
	_, ok := tr.GetValue(1)
	require.False(t, ok)
}

func TestTree_InsertAndGet(t *testing.T) {
	tr := newTestTree(t, 4, 4, 32)
	require.True(t, tr.Insert(10, RID{PageID: 10, SlotNum: 0}))
	require.False(t, tr.IsEmpty())

	v, ok := tr.GetValue(10)
	require.True(t, ok)
	require.Equal(t, RID{PageID: 10, SlotNum: 0}, v)
}

func TestTree_InsertDuplicateFails(t *testing.T) {
	tr := newTestTree(t, 4, 4, 32)
	require.True(t, tr.Insert(1, RID{PageID: 1}))
	require.False(t, tr.Insert(1, RID{PageID: 2}))

	v, ok := tr.GetValue(1)
	require.True(t, ok)
	require.Equal(t, int32(1), v.PageID, "duplicate insert must not overwrite")
}

func TestTree_ManyInsertsSurviveSplits(t *testing.T) {
	tr := newTestTree(t, 4, 4, 64)
	const n = 200
	for i := Key(0); i < n; i++ {
		require.True(t, tr.Insert(i, RID{PageID: int32(i)}))
	}
	for i := Key(0); i < n; i++ {
		v, ok := tr.GetValue(i)
		require.True(t, ok, "key %d missing after splits", i)
		require.Equal(t, int32(i), v.PageID)
	}
}

func TestTree_InsertOutOfOrderSurvivesSplits(t *testing.T) {
	tr := newTestTree(t, 4, 4, 64)
	keys := []Key{50, 10, 90, 30, 70, 20, 80, 40, 60, 5, 95, 15, 25, 35, 45, 55, 65, 75, 85, 1}
	for _, k := range keys {
		require.True(t, tr.Insert(k, RID{PageID: int32(k)}))
	}
	for _, k := range keys {
		v, ok := tr.GetValue(k)
		require.True(t, ok, "key %d missing", k)
		require.Equal(t, int32(k), v.PageID)
	}
}

func TestTree_RemoveMissingIsNoop(t *testing.T) {
	tr := newTestTree(t, 4, 4, 32)
	require.True(t, tr.Insert(1, RID{PageID: 1}))
	tr.Remove(99)
	v, ok := tr.GetValue(1)
	require.True(t, ok)
	require.Equal(t, int32(1), v.PageID)
}

func TestTree_RemoveEmptiesTree(t *testing.T) {
	tr := newTestTree(t, 4, 4, 32)
	require.True(t, tr.Insert(1, RID{PageID: 1}))
	tr.Remove(1)
	require.True(t, tr.IsEmpty())
	_, ok := tr.GetValue(1)
	require.False(t, ok)
}

func TestTree_InsertThenRemoveAllSurvivesMerges(t *testing.T) {
	tr := newTestTree(t, 4, 4, 64)
	const n = 200
	for i := Key(0); i < n; i++ {
		require.True(t, tr.Insert(i, RID{PageID: int32(i)}))
	}
	for i := Key(0); i < n; i++ {
		tr.Remove(i)
	}
	require.True(t, tr.IsEmpty())
}

func TestTree_InsertThenRemoveHalfKeepsRemainder(t *testing.T) {
	tr := newTestTree(t, 4, 4, 64)
	const n = 100
	for i := Key(0); i < n; i++ {
		require.True(t, tr.Insert(i, RID{PageID: int32(i)}))
	}
	for i := Key(0); i < n; i += 2 {
		tr.Remove(i)
	}
	for i := Key(0); i < n; i++ {
		v, ok := tr.GetValue(i)
		if i%2 == 0 {
			require.False(t, ok, "key %d should have been removed", i)
		} else {
			require.True(t, ok, "key %d should remain", i)
			require.Equal(t, int32(i), v.PageID)
		}
	}
}

func TestTree_BulkLoadAndRemoveFromFile(t *testing.T) {
	tr := newTestTree(t, 4, 4, 64)
	dir := t.TempDir()
	insertPath := filepath.Join(dir, "insert.txt")
	require.NoError(t, writeLines(insertPath, []string{"1", "2", "3", "4", "5"}))
	require.NoError(t, tr.InsertFromFile(insertPath))

	for _, k := range []Key{1, 2, 3, 4, 5} {
		_, ok := tr.GetValue(k)
		require.True(t, ok)
	}

	removePath := filepath.Join(dir, "remove.txt")
	require.NoError(t, writeLines(removePath, []string{"2", "4"}))
	require.NoError(t, tr.RemoveFromFile(removePath))

	_, ok := tr.GetValue(2)
	require.False(t, ok)
	_, ok = tr.GetValue(4)
	require.False(t, ok)
	_, ok = tr.GetValue(1)
	require.True(t, ok)
}

func writeLines(path string, lines []string) error {
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}
