package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackPairDeliversBytesInBothDirections(t *testing.T) {
	a, b := NewLoopbackPair("a", "b")
	defer a.Close()
	defer b.Close()

	n, err := a.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.Eventually(t, func() bool { return b.BytesAvailable() == 5 }, time.Second, time.Millisecond)
	got, err := b.Read(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	_, err = b.Write([]byte("world"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.BytesAvailable() == 5 }, time.Second, time.Millisecond)
	got, err = a.Read(5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
}

func TestLoopbackReadReturnsPartialBufferWithoutBlocking(t *testing.T) {
	a, b := NewLoopbackPair("a", "b")
	defer a.Close()
	defer b.Close()

	_, err := a.Write([]byte("ab"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.BytesAvailable() == 2 }, time.Second, time.Millisecond)

	got, err := b.Read(10)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(got))
	assert.Equal(t, 0, b.BytesAvailable())
}

func TestLoopbackCloseUnblocksPeer(t *testing.T) {
	a, b := NewLoopbackPair("a", "b")
	defer b.Close()

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.readErr != nil
	}, time.Second, time.Millisecond)
}
