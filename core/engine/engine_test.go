package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foliostore/foliodb/core/index/btree"
)

func TestOpen_CreateThenReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	eng, err := Open(Config{DataFile: path, Create: true, PoolSize: 8, LeafMaxSize: 4, InternalMaxSize: 4})
	require.NoError(t, err)

	require.True(t, eng.Tree.Insert(1, btree.RID{PageID: 1}))
	require.True(t, eng.Tree.Insert(2, btree.RID{PageID: 2}))
	require.NoError(t, eng.Close())

	reopened, err := Open(Config{DataFile: path, Create: false, PoolSize: 8, LeafMaxSize: 4, InternalMaxSize: 4})
	require.NoError(t, err)
	defer reopened.Close()

	v, ok := reopened.Tree.GetValue(1)
	require.True(t, ok)
	require.Equal(t, int32(1), v.PageID)
}

func TestOpen_RequiresCreateForMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	_, err := Open(Config{DataFile: path, Create: false})
	require.Error(t, err)
}

func TestFlush_WritesDirtyPagesToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	eng, err := Open(Config{DataFile: path, Create: true, PoolSize: 8})
	require.NoError(t, err)
	defer eng.Close()

	require.True(t, eng.Tree.Insert(42, btree.RID{PageID: 42}))
	require.NoError(t, eng.Flush())
}
