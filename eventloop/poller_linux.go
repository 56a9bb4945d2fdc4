//go:build linux

package eventloop

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// ErrPollerClosed is returned by Poll/UpdateChannel/RemoveChannel once
// Close has run.
var ErrPollerClosed = errors.New("eventloop: poller closed")

// initEventListSize is the active-event buffer's starting capacity.
const initEventListSize = 16

// newPoller constructs the platform default Poller. On Linux this is
// always the epoll-backed implementation; the factory stays free of
// variant-specific types so an alternative (select/poll) could be added
// behind another build tag without touching EventLoop.
func newPoller() (Poller, error) {
	return newEPollPoller()
}

// epollPoller implements Poller on Linux using golang.org/x/sys/unix for
// the raw epoll syscalls.
type epollPoller struct {
	epfd     int
	events   []unix.EpollEvent // active-event buffer; doubles, never shrinks
	channels map[int]*Channel  // fd -> Channel currently registered
	closed   bool
}

// newEPollPoller creates a poller backed by a fresh epoll instance.
// Failure here is treated as a fatal construction error by EventLoop.New.
func newEPollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventloop: epoll_create1: %w", err)
	}
	return &epollPoller{
		epfd:     epfd,
		events:   make([]unix.EpollEvent, initEventListSize),
		channels: make(map[int]*Channel),
	}, nil
}

func (p *epollPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}

// Poll blocks in epoll_wait for up to timeout, translating ready events
// back onto their Channels and appending each to active.
func (p *epollPoller) Poll(timeout time.Duration, active *[]*Channel) (time.Time, error) {
	if p.closed {
		return time.Time{}, ErrPollerClosed
	}

	timeoutMs := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, fmt.Errorf("eventloop: epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := p.events[i]
		c, ok := p.channels[int(ev.Fd)]
		if !ok {
			continue
		}
		c.SetRevents(epollToEvents(ev.Events))
		*active = append(*active, c)
	}

	// The active-event array is doubled, never shrunk, exactly when it
	// fills in a single cycle.
	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}

	return now, nil
}

// UpdateChannel implements the channel index state machine: a channel
// never registered, or previously registered and then deleted, is
// ADDed; one already registered is MODified to its new interest set, or
// DELeted once that set becomes empty.
func (p *epollPoller) UpdateChannel(c *Channel) error {
	if p.closed {
		return ErrPollerClosed
	}

	idx := index(c.Index())
	switch idx {
	case indexNew, indexDeleted:
		if idx == indexNew {
			p.channels[c.Fd()] = c
		}
		c.SetIndex(int(indexAdded))
		if err := p.ctl(unix.EPOLL_CTL_ADD, c); err != nil {
			// ADD failure is fatal: the added-iff-registered invariant
			// would otherwise be violated.
			return fmt.Errorf("eventloop: epoll_ctl(ADD) fd=%d: %w", c.Fd(), err)
		}
	default: // indexAdded
		if c.IsNoneEvent() {
			if err := p.ctl(unix.EPOLL_CTL_DEL, c); err != nil {
				return fmt.Errorf("eventloop: epoll_ctl(DEL) fd=%d: %w", c.Fd(), err)
			}
			c.SetIndex(int(indexDeleted))
		} else {
			if err := p.ctl(unix.EPOLL_CTL_MOD, c); err != nil {
				return fmt.Errorf("eventloop: epoll_ctl(MOD) fd=%d: %w", c.Fd(), err)
			}
		}
	}
	return nil
}

// RemoveChannel erases the map entry, DELs from the kernel if the channel
// was still registered, and resets its index to New.
func (p *epollPoller) RemoveChannel(c *Channel) error {
	if p.closed {
		return ErrPollerClosed
	}

	delete(p.channels, c.Fd())

	idx := index(c.Index())
	var err error
	if idx == indexAdded {
		err = p.ctl(unix.EPOLL_CTL_DEL, c)
	}
	c.SetIndex(int(indexNew))
	if err != nil {
		// DEL failures are logged, non-fatal: the fd may already be closed.
		return fmt.Errorf("eventloop: epoll_ctl(DEL) fd=%d: %w", c.Fd(), err)
	}
	return nil
}

func (p *epollPoller) HasChannel(c *Channel) bool {
	got, ok := p.channels[c.Fd()]
	return ok && got == c
}

func (p *epollPoller) ctl(op int, c *Channel) error {
	ev := unix.EpollEvent{
		Events: eventsToEpoll(c.Events()),
		Fd:     int32(c.Fd()),
	}
	if op == unix.EPOLL_CTL_DEL {
		return unix.EpollCtl(p.epfd, op, c.Fd(), nil)
	}
	return unix.EpollCtl(p.epfd, op, c.Fd(), &ev)
}

func eventsToEpoll(events Events) uint32 {
	var e uint32
	if events.has(EventRead) {
		e |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if events.has(EventWrite) {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(epollEvents uint32) Events {
	var e Events
	if epollEvents&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		e |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		e |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		e |= EventError
	}
	if epollEvents&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		e |= EventHangup
	}
	return e
}
