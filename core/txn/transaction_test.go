package txn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foliostore/foliodb/core/storage/buffer"
	"github.com/foliostore/foliodb/core/storage/disk"
	"github.com/foliostore/foliodb/core/storage/page"
)

func TestIntent_IsWrite(t *testing.T) {
	require.False(t, Read.IsWrite())
	require.True(t, Insert.IsWrite())
	require.True(t, Delete.IsWrite())
}

func TestNew_NilContextDefaultsToBackground(t *testing.T) {
	c := New(Read, nil)
	require.NotNil(t, c.GoContext())
}

func newTestPool(t *testing.T) *buffer.PoolManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	dm, err := disk.Open(path, true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return buffer.New(4, dm, nil, nil)
}

func TestContext_PageSetTracksAcquisitionOrder(t *testing.T) {
	c := New(Insert, nil)
	require.Empty(t, c.GetPageSet())

	pm := newTestPool(t)
	p1, err := pm.NewPage()
	require.NoError(t, err)
	p2, err := pm.NewPage()
	require.NoError(t, err)

	c.AddIntoPageSet(p1)
	c.AddIntoPageSet(p2)
	require.Equal(t, []*page.Page{p1, p2}, c.GetPageSet())

	c.ReplacePageSet([]*page.Page{p2})
	require.Equal(t, []*page.Page{p2}, c.GetPageSet())
}

func TestContext_ReleaseAndUnpinClearsBothSets(t *testing.T) {
	pm := newTestPool(t)

	c := New(Insert, nil)
	pg, err := pm.NewPage()
	require.NoError(t, err)
	pg.Lock()
	c.AddIntoPageSet(pg)

	extra, err := pm.NewPage()
	require.NoError(t, err)
	pm.UnpinPage(extra.ID(), false)
	c.AddIntoDeletedPageSet(extra.ID())

	c.ReleaseAndUnpin(pm)
	require.Empty(t, c.GetPageSet())
	require.Empty(t, c.GetDeletedPageSet())
}
