package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_StartsWithNoIdentity(t *testing.T) {
	p := New()
	require.Equal(t, InvalidID, p.ID())
	require.False(t, p.IsDirty())
	require.Zero(t, p.PinCount())
}

func TestSetDirty_IsSticky(t *testing.T) {
	p := New()
	p.SetDirty(true)
	p.SetDirty(false)
	require.True(t, p.IsDirty(), "SetDirty(false) must not clear the flag")

	p.ClearDirty()
	require.False(t, p.IsDirty())
}

func TestPinUnpin_NeverGoesNegative(t *testing.T) {
	p := New()
	p.Unpin()
	require.Zero(t, p.PinCount())

	p.Pin()
	p.Pin()
	require.Equal(t, int32(2), p.PinCount())
	p.Unpin()
	require.Equal(t, int32(1), p.PinCount())
}

func TestReset_ClearsIdentityAndBytes(t *testing.T) {
	p := New()
	p.SetID(ID(5))
	p.Pin()
	p.SetDirty(true)
	copy(p.Data(), []byte("stale"))

	p.Reset()

	require.Equal(t, InvalidID, p.ID())
	require.Zero(t, p.PinCount())
	require.False(t, p.IsDirty())
	require.Zero(t, p.Data()[0])
}
