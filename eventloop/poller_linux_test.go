//go:build linux

package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestEPollPoller_EndToEndReadiness drives a real loop: a channel on a
// pipe's read end is registered, a write on the other end should wake
// the poll and dispatch the read callback exactly once per write.
func TestEPollPoller_EndToEndReadiness(t *testing.T) {
	loop := spawnLoop(t)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	require.NoError(t, unix.SetNonblock(fds[0], true))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	got := make(chan []byte, 1)
	loop.RunInLoop(func() {
		c := NewChannel(loop, fds[0])
		c.SetReadCallback(func(time.Time) {
			buf := make([]byte, 16)
			n, _ := unix.Read(fds[0], buf)
			got <- buf[:n]
		})
		c.EnableReading()
	})

	_, err := unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	select {
	case b := <-got:
		assert.Equal(t, "ping", string(b))
	case <-time.After(2 * time.Second):
		t.Fatal("read callback never fired for a writable pipe")
	}
}

// TestEPollPoller_UpdateAndRemoveChannelIndexStates exercises the
// index state machine directly: new -> added (ADD), added -> deleted
// (DEL on empty interest), deleted -> added (ADD again), then Remove
// resets to new and drops the map entry.
func TestEPollPoller_UpdateAndRemoveChannelIndexStates(t *testing.T) {
	p, err := newEPollPoller()
	require.NoError(t, err)
	defer p.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	loop := &EventLoop{threadID: currentThreadID(), poller: p}
	c := NewChannel(loop, fds[0])
	assert.Equal(t, int(indexNew), c.Index())

	c.events = EventRead
	require.NoError(t, p.UpdateChannel(c))
	assert.Equal(t, int(indexAdded), c.Index())
	assert.True(t, p.HasChannel(c))

	c.events = EventNone
	require.NoError(t, p.UpdateChannel(c))
	assert.Equal(t, int(indexDeleted), c.Index())

	c.events = EventRead
	require.NoError(t, p.UpdateChannel(c))
	assert.Equal(t, int(indexAdded), c.Index())

	c.events = EventNone
	require.NoError(t, p.RemoveChannel(c))
	assert.Equal(t, int(indexNew), c.Index())
	assert.False(t, p.HasChannel(c))
}

// TestEPollPoller_PollReturnsErrAfterClose verifies the closed guard on
// all three mutating operations.
func TestEPollPoller_PollReturnsErrAfterClose(t *testing.T) {
	p, err := newEPollPoller()
	require.NoError(t, err)
	require.NoError(t, p.Close())

	var active []*Channel
	_, err = p.Poll(time.Millisecond, &active)
	assert.ErrorIs(t, err, ErrPollerClosed)

	loop := &EventLoop{threadID: currentThreadID(), poller: p}
	c := NewChannel(loop, 0)
	assert.ErrorIs(t, p.UpdateChannel(c), ErrPollerClosed)
	assert.ErrorIs(t, p.RemoveChannel(c), ErrPollerClosed)
}
