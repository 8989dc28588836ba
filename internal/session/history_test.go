package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/maskbatch/internal/domain"
)

func maskWithPixel(x, y int) domain.BinaryMask {
	m := domain.NewBinaryMask(4, 4)
	m.Set(x, y, 1)
	return m
}

func TestHistoryLinearUndo(t *testing.T) {
	h := NewHistory(domain.NewBinaryMask(4, 4))

	h.Push(maskWithPixel(0, 0))
	h.Push(maskWithPixel(1, 1))
	require.Equal(t, 3, h.Len())
	assert.Equal(t, uint8(1), h.Current().At(1, 1))

	require.True(t, h.Undo())
	assert.Equal(t, uint8(1), h.Current().At(0, 0))
	assert.Equal(t, uint8(0), h.Current().At(1, 1))

	require.True(t, h.Redo())
	assert.Equal(t, uint8(1), h.Current().At(1, 1))
}

func TestHistoryBoundariesAreNoOps(t *testing.T) {
	h := NewHistory(domain.NewBinaryMask(4, 4))

	assert.False(t, h.Undo(), "undo on seed entry")
	assert.False(t, h.Redo(), "redo with no tail")

	h.Push(maskWithPixel(0, 0))
	require.True(t, h.Undo())
	assert.False(t, h.Undo(), "undo past the seed")
	require.True(t, h.Redo())
	assert.False(t, h.Redo(), "redo past the newest")
}

func TestHistoryPushAfterUndoTruncatesRedoTail(t *testing.T) {
	h := NewHistory(domain.NewBinaryMask(4, 4))
	h.Push(maskWithPixel(0, 0))
	h.Push(maskWithPixel(1, 1))

	require.True(t, h.Undo())
	h.Push(maskWithPixel(2, 2))

	assert.Equal(t, 3, h.Len())
	assert.False(t, h.Redo(), "redo tail should be gone")
	assert.Equal(t, uint8(1), h.Current().At(2, 2))

	require.True(t, h.Undo())
	assert.Equal(t, uint8(1), h.Current().At(0, 0))
	assert.Equal(t, uint8(0), h.Current().At(2, 2))
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(domain.NewBinaryMask(4, 4))
	for i := 0; i < historyLimit+20; i++ {
		h.Push(maskWithPixel(i%4, (i/4)%4))
	}
	assert.Equal(t, historyLimit, h.Len())
}
