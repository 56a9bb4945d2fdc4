package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBuffer_AppendAndRetrieve(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.ReadableBytes())

	b.AppendString("hello")
	assert.Equal(t, 5, b.ReadableBytes())
	assert.Equal(t, "hello", string(b.Peek()))

	got := b.RetrieveAsString(3)
	assert.Equal(t, "hel", got)
	assert.Equal(t, "lo", string(b.Peek()))

	rest := b.RetrieveAllString()
	assert.Equal(t, "lo", rest)
	assert.Equal(t, 0, b.ReadableBytes())
}

func TestBuffer_RetrieveMoreThanAvailableDrainsAll(t *testing.T) {
	b := New()
	b.AppendString("abc")
	b.Retrieve(100)
	assert.Equal(t, 0, b.ReadableBytes())
}

func TestBuffer_GrowsPastInitialCapacity(t *testing.T) {
	b := New()
	big := make([]byte, initialSize*3)
	for i := range big {
		big[i] = byte(i)
	}
	b.Append(big)
	assert.Equal(t, len(big), b.ReadableBytes())
	assert.Equal(t, big, b.Peek())
}

func TestBuffer_PrependableSpaceIsReclaimed(t *testing.T) {
	b := New()
	b.AppendString("0123456789")
	b.Retrieve(8)
	before := b.PrependableBytes()
	assert.Greater(t, before, prependSize)

	// Appending enough to require makeSpace, but not enough to need a
	// fresh allocation, should slide the readable region back down
	// rather than growing the slice.
	oldCap := cap(b.buf)
	b.Append(make([]byte, b.WritableBytes()+4))
	assert.Equal(t, oldCap, cap(b.buf))
}

func TestBuffer_ReadFDSmallRead(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	payload := []byte("ping")
	_, err := unix.Write(fds[1], payload)
	require.NoError(t, err)

	b := New()
	n, err := b.ReadFD(fds[0])
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, "ping", string(b.Peek()))
}

func TestBuffer_ReadFDLargerThanWritableSpillsIntoExtra(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	payload := make([]byte, initialSize+4096)
	for i := range payload {
		payload[i] = byte(i)
	}

	written := 0
	for written < len(payload) {
		n, err := unix.Write(fds[1], payload[written:])
		require.NoError(t, err)
		written += n
	}
	unix.Close(fds[1])

	b := New()
	total := 0
	for total < len(payload) {
		n, err := b.ReadFD(fds[0])
		require.NoError(t, err)
		if n == 0 {
			break
		}
		total += n
	}
	assert.Equal(t, len(payload), total)
	assert.Equal(t, payload, b.Peek())
}

func TestBuffer_ReadFDEOFReturnsZero(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	unix.Close(fds[1])

	b := New()
	n, err := b.ReadFD(fds[0])
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
