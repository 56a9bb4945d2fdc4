package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestChannel_DispatchOrder verifies the fixed callback order within a
// single HandleEvent: close (hangup without read), then error, then
// read, then write. A readable bit suppresses close, so no one event
// carries all four; the order is checked over two events.
func TestChannel_DispatchOrder(t *testing.T) {
	var order []string

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	loop := &EventLoop{threadID: currentThreadID()}
	c := NewChannel(loop, fds[0])
	c.SetCloseCallback(func() { order = append(order, "close") })
	c.SetErrorCallback(func() { order = append(order, "error") })
	c.SetReadCallback(func(time.Time) { order = append(order, "read") })
	c.SetWriteCallback(func() { order = append(order, "write") })

	c.SetRevents(EventHangup | EventError | EventWrite)
	c.HandleEvent(time.Now())

	assert.Equal(t, []string{"close", "error", "write"}, order)

	order = nil
	c.SetRevents(EventError | EventRead | EventWrite)
	c.HandleEvent(time.Now())

	assert.Equal(t, []string{"error", "read", "write"}, order)
}

// TestChannel_HangupWithReadSkipsClose verifies that a hangup reported
// alongside a readable payload does not fire the close callback —
// the final bytes get read first, and close only fires on a later,
// read-less hangup.
func TestChannel_HangupWithReadSkipsClose(t *testing.T) {
	var order []string

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	loop := &EventLoop{threadID: currentThreadID()}
	c := NewChannel(loop, fds[0])
	c.SetCloseCallback(func() { order = append(order, "close") })
	c.SetReadCallback(func(time.Time) { order = append(order, "read") })

	c.SetRevents(EventHangup | EventRead)
	c.HandleEvent(time.Now())

	assert.Equal(t, []string{"read"}, order)
}

// TestChannel_TieGuardsDispatch verifies that once a tied owner
// reports not-alive, HandleEvent skips dispatch entirely.
func TestChannel_TieGuardsDispatch(t *testing.T) {
	fired := false
	alive := true

	loop := &EventLoop{threadID: currentThreadID()}
	c := NewChannel(loop, 0)
	c.SetReadCallback(func(time.Time) { fired = true })
	c.SetTie(func() bool { return alive })
	c.SetRevents(EventRead)

	c.HandleEvent(time.Now())
	assert.True(t, fired)

	fired = false
	alive = false
	c.HandleEvent(time.Now())
	assert.False(t, fired)
}

// TestChannel_IsReadingIsWriting verifies the interest-bit queries
// without exercising EnableReading/EnableWriting, which would need a
// live poller behind the loop.
func TestChannel_IsReadingIsWriting(t *testing.T) {
	c := &Channel{}
	assert.False(t, c.IsReading())
	assert.False(t, c.IsWriting())

	c.events |= EventRead
	assert.True(t, c.IsReading())
	assert.False(t, c.IsWriting())

	c.events |= EventWrite
	assert.True(t, c.IsWriting())

	c.events = EventNone
	assert.True(t, c.IsNoneEvent())
}
