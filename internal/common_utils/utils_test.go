package commonutils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoID_ReturnsPositiveID(t *testing.T) {
	id := GoID()
	require.Greater(t, id, int64(0))
}

func TestPrintCaller_DoesNotPanic(t *testing.T) {
	PrintCaller("test", 7, 0)
}
