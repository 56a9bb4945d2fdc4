package eventloop

import "time"

// Events is a bitmask of readiness conditions reported by a Poller. It
// adds Hangup to the usual read/write/error trio since dispatch order
// (see Channel.HandleEvent) needs to distinguish hangup-without-readable
// from hangup-with-readable.
type Events uint32

const EventNone Events = 0

const (
	EventRead  Events = 1 << iota // a read from the fd would not block
	EventWrite                    // a write to the fd would not block
	EventError                    // the fd has an error condition pending
	EventHangup                   // the peer closed its end (EPOLLHUP/EPOLLRDHUP)
)

func (e Events) has(bit Events) bool { return e&bit != 0 }

// index records a Channel's registration status in its loop's Poller.
type index int

const (
	indexNew     index = -1 // never registered
	indexAdded   index = 1  // currently registered with the kernel
	indexDeleted index = 2  // previously registered, removed from the kernel
	// but its map entry survives so re-adding does not need a fresh insert.
)

// ReadCallback is invoked when a Channel's fd becomes readable. ts is the
// timestamp the Poller observed readiness at.
type ReadCallback func(ts time.Time)

// Callback is invoked for write-ready, close (hangup), and error events.
type Callback func()

// Channel binds one file descriptor (not owned by the Channel) to an
// interest set and up to four event callbacks. A Channel is owned by
// exactly one EventLoop for its entire lifetime and must only be mutated
// from that loop's thread.
type Channel struct {
	loop *EventLoop
	fd   int

	events  Events // interest set requested of the poller
	revents Events // last events reported by the poller
	idx     index

	readCallback  ReadCallback
	writeCallback Callback
	closeCallback Callback
	errorCallback Callback

	tie     Tie
	tied    bool
	eventHandling bool
}

// NewChannel creates a Channel for fd, bound to loop. The Channel starts
// with an empty interest set; call EnableReading/EnableWriting to arm it
// and EventLoop.updateChannel (done implicitly by those calls) to register it
// with the poller.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, idx: indexNew}
}

// Fd returns the bound file descriptor.
func (c *Channel) Fd() int { return c.fd }

// Events returns the currently requested interest set.
func (c *Channel) Events() Events { return c.events }

// SetRevents records the events the poller most recently reported for this
// channel. Called only by the Poller implementation ahead of dispatch.
func (c *Channel) SetRevents(revents Events) { c.revents = revents }

// Index returns the channel's current poller registration state.
func (c *Channel) Index() int { return int(c.idx) }

// SetIndex updates the channel's poller registration state. Called only by
// the Poller implementation.
func (c *Channel) SetIndex(i int) { c.idx = index(i) }

// IsNoneEvent reports whether the channel currently requests no events.
func (c *Channel) IsNoneEvent() bool { return c.events == EventNone }

func (c *Channel) update() {
	c.loop.updateChannel(c)
}

// EnableReading arms the read interest bit and pushes the update to the
// owning loop's poller.
func (c *Channel) EnableReading() {
	c.events |= EventRead
	c.update()
}

// DisableReading clears the read interest bit.
func (c *Channel) DisableReading() {
	c.events &^= EventRead
	c.update()
}

// EnableWriting arms the write interest bit.
func (c *Channel) EnableWriting() {
	c.events |= EventWrite
	c.update()
}

// DisableWriting clears the write interest bit.
func (c *Channel) DisableWriting() {
	c.events &^= EventWrite
	c.update()
}

// DisableAll clears every interest bit.
func (c *Channel) DisableAll() {
	c.events = EventNone
	c.update()
}

// IsWriting reports whether write interest is currently armed.
func (c *Channel) IsWriting() bool { return c.events.has(EventWrite) }

// IsReading reports whether read interest is currently armed.
func (c *Channel) IsReading() bool { return c.events.has(EventRead) }

// Remove detaches the channel from its loop's poller entirely. Must be
// called from the owning loop's thread, and only when the channel requests
// no events.
func (c *Channel) Remove() {
	c.loop.removeChannel(c)
}

// SetReadCallback installs the read event callback.
func (c *Channel) SetReadCallback(cb ReadCallback) { c.readCallback = cb }

// SetWriteCallback installs the write-ready callback.
func (c *Channel) SetWriteCallback(cb Callback) { c.writeCallback = cb }

// SetCloseCallback installs the hangup/close callback.
func (c *Channel) SetCloseCallback(cb Callback) { c.closeCallback = cb }

// SetErrorCallback installs the error callback.
func (c *Channel) SetErrorCallback(cb Callback) { c.errorCallback = cb }

// SetTie installs a liveness check for the channel's logical owner
// (typically a Connection). Once tied, HandleEvent consults alive before
// dispatching; once it reports false, dispatch is skipped silently. See
// Tie for why this is a plain closure rather than a weak pointer.
func (c *Channel) SetTie(alive AliveFunc) {
	c.tie = MakeTie(alive)
	c.tied = true
}

// HandleEvent is the loop's entry point for a channel whose revents the
// poller has just set. Dispatch order is significant and tested: hangup
// (without readable) closes; then error; then readable (draining any final
// payload that arrived alongside a hangup); then writable.
func (c *Channel) HandleEvent(ts time.Time) {
	if c.tied {
		if !c.tie.Alive() {
			return
		}
	}
	c.handleEventWithGuard(ts)
}

func (c *Channel) handleEventWithGuard(ts time.Time) {
	c.eventHandling = true
	defer func() { c.eventHandling = false }()

	if c.revents.has(EventHangup) && !c.revents.has(EventRead) {
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}
	if c.revents.has(EventError) {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if c.revents.has(EventRead) {
		if c.readCallback != nil {
			c.readCallback(ts)
		}
	}
	if c.revents.has(EventWrite) {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
