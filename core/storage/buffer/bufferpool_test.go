package buffer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/foliostore/foliodb/core/storage/disk"
	"github.com/foliostore/foliodb/core/storage/page"
	internaltelemetry "github.com/foliostore/foliodb/internal/telemetry"
)

func newTestPool(t *testing.T, poolSize int) *PoolManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	dm, err := disk.Open(path, true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return New(poolSize, dm, nil, nil)
}

func TestNewPage_ReturnsPinnedPage(t *testing.T) {
	pm := newTestPool(t, 4)
	pg, err := pm.NewPage()
	require.NoError(t, err)
	require.Equal(t, int32(1), pg.PinCount())
}

func TestFetchPage_IncrementsPinCount(t *testing.T) {
	pm := newTestPool(t, 4)
	pg, err := pm.NewPage()
	require.NoError(t, err)
	id := pg.ID()
	pm.UnpinPage(id, false)

	fetched, err := pm.FetchPage(id)
	require.NoError(t, err)
	require.Equal(t, int32(1), fetched.PinCount())

	fetched2, err := pm.FetchPage(id)
	require.NoError(t, err)
	require.Equal(t, int32(2), fetched2.PinCount())
	require.Same(t, fetched, fetched2)
}

func TestUnpinPage_UnknownOrZeroPinCount(t *testing.T) {
	pm := newTestPool(t, 4)
	require.False(t, pm.UnpinPage(page.ID(999), false))

	pg, err := pm.NewPage()
	require.NoError(t, err)
	require.True(t, pm.UnpinPage(pg.ID(), false))
	require.False(t, pm.UnpinPage(pg.ID(), false), "unpin below zero must fail")
}

func TestFetchPage_DirtyVictimIsWrittenBack(t *testing.T) {
	pm := newTestPool(t, 1)

	pg1, err := pm.NewPage()
	require.NoError(t, err)
	id1 := pg1.ID()
	copy(pg1.Data(), []byte("dirty-data"))
	pm.UnpinPage(id1, true)

	pg2, err := pm.NewPage()
	require.NoError(t, err)
	id2 := pg2.ID()
	pm.UnpinPage(id2, false)

	refetched, err := pm.FetchPage(id1)
	require.NoError(t, err)
	require.Equal(t, byte('d'), refetched.Data()[0])
	_ = id2
}

func TestNewPage_ExhaustedWhenAllPinned(t *testing.T) {
	pm := newTestPool(t, 2)
	_, err := pm.NewPage()
	require.NoError(t, err)
	_, err = pm.NewPage()
	require.NoError(t, err)

	_, err = pm.NewPage()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestDeletePage_RefusesWhilePinned(t *testing.T) {
	pm := newTestPool(t, 2)
	pg, err := pm.NewPage()
	require.NoError(t, err)

	require.False(t, pm.DeletePage(pg.ID()))

	pm.UnpinPage(pg.ID(), false)
	require.True(t, pm.DeletePage(pg.ID()))
}

func TestDeletePage_UnknownIsNoop(t *testing.T) {
	pm := newTestPool(t, 2)
	require.True(t, pm.DeletePage(page.ID(42)))
}

func TestFlushPage_ClearsDirtyFlag(t *testing.T) {
	pm := newTestPool(t, 2)
	pg, err := pm.NewPage()
	require.NoError(t, err)
	pg.SetDirty(true)

	require.True(t, pm.FlushPage(pg.ID()))
	require.False(t, pg.IsDirty())
}

func TestPinnedPagesGauge_TracksFramesWithNonZeroPinCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	dm, err := disk.Open(path, true, nil)
	require.NoError(t, err)
	defer dm.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := internaltelemetry.NewStorageMetrics(provider.Meter("test"))
	require.NoError(t, err)

	pm := New(4, dm, nil, metrics)

	pg, err := pm.NewPage()
	require.NoError(t, err)
	require.Equal(t, int64(1), pinnedGaugeValue(t, reader))

	pm.UnpinPage(pg.ID(), false)
	require.Equal(t, int64(0), pinnedGaugeValue(t, reader))
}

func pinnedGaugeValue(t *testing.T, reader sdkmetric.Reader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "foliodb.bufferpool.pinned_pages" {
				continue
			}
			sum := m.Data.(metricdata.Sum[int64])
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("pinned_pages metric not found")
	return 0
}

func TestNewPage_AllocatesDistinctIDs(t *testing.T) {
	pm := newTestPool(t, 2)

	pg1, err := pm.NewPage()
	require.NoError(t, err)
	pg2, err := pm.NewPage()
	require.NoError(t, err)
	require.NotEqual(t, pg1.ID(), pg2.ID())
}
