package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foliostore/foliodb/core/storage/page"
)

func TestOpen_CreateRequiresFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	_, err := Open(path, false, nil)
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestOpen_ExistsRejectsCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	m, err := Open(path, true, nil)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = Open(path, true, nil)
	require.ErrorIs(t, err, ErrFileExists)
}

func TestAllocateReadWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	m, err := Open(path, true, nil)
	require.NoError(t, err)
	defer m.Close()

	id, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, page.ID(0), id)

	var buf [page.Size]byte
	copy(buf[:], "hello world")
	require.NoError(t, m.WritePage(id, buf[:]))

	var out [page.Size]byte
	require.NoError(t, m.ReadPage(id, out[:]))
	require.Equal(t, buf, out)
}

func TestAllocatePage_Monotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	m, err := Open(path, true, nil)
	require.NoError(t, err)
	defer m.Close()

	first, err := m.AllocatePage()
	require.NoError(t, err)
	second, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, page.ID(0), first)
	require.Equal(t, page.ID(1), second)
}

func TestDeallocateThenAllocate_Recycles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	m, err := Open(path, true, nil)
	require.NoError(t, err)
	defer m.Close()

	id, err := m.AllocatePage()
	require.NoError(t, err)

	var buf [page.Size]byte
	buf[0] = 0xFF
	require.NoError(t, m.WritePage(id, buf[:]))

	require.NoError(t, m.DeallocatePage(id))

	recycled, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, id, recycled)

	var out [page.Size]byte
	require.NoError(t, m.ReadPage(recycled, out[:]))
	require.Zero(t, out[0], "recycled page bytes must be zeroed before reuse")
}

func TestReadWrite_WrongBufferSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	m, err := Open(path, true, nil)
	require.NoError(t, err)
	defer m.Close()

	id, err := m.AllocatePage()
	require.NoError(t, err)

	require.ErrorIs(t, m.ReadPage(id, make([]byte, 10)), ErrIO)
	require.ErrorIs(t, m.WritePage(id, make([]byte, 10)), ErrIO)
}

func TestClose_RejectsFurtherIO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	m, err := Open(path, true, nil)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "Close must be idempotent")

	_, err = m.AllocatePage()
	require.ErrorIs(t, err, ErrClosed)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	m, err := Open(path, true, nil)
	require.NoError(t, err)

	id1, err := m.AllocatePage()
	require.NoError(t, err)
	id2, err := m.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, m.Close())

	reopened, err := Open(path, false, nil)
	require.NoError(t, err)
	defer reopened.Close()

	id3, err := reopened.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, page.ID(2), id3)
	_ = id1
	_ = id2
}

func TestOpen_RejectsPageSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	m, err := Open(path, true, nil)
	require.NoError(t, err)

	require.NoError(t, m.writeHeader(&fileHeader{Magic: magic, Version: fileVersion, PageSize: page.Size + 1}))
	require.NoError(t, m.Close())

	_, err = Open(path, false, nil)
	require.ErrorIs(t, err, ErrPageSizeMismatch)
}
