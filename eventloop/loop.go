package eventloop

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lanbao2021/simpleMuduo/logging"
)

// pollTimeout bounds how long a single poll can block purely on idleness,
// so that a Quit racing with a just-started poll still terminates in
// bounded time.
const pollTimeout = 10 * time.Second

// Task is a zero-argument unit of work submitted to a loop, either from
// the loop's own thread or from a foreign one.
type Task func()

// loopRegistry enforces "exactly one EventLoop per OS thread". Go has no
// thread-local storage, but a goroutine locked to an OS thread via
// runtime.LockOSThread has a stable goroutine id for its lifetime, so a
// registry keyed by that id gives the same guarantee a __thread pointer
// would.
type loopRegistry struct {
	mu   sync.Mutex
	byID map[uint64]*EventLoop
}

var loops = loopRegistry{byID: make(map[uint64]*EventLoop)}

func (r *loopRegistry) bind(id uint64, l *EventLoop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[id]; ok && existing != nil {
		return ErrLoopAlreadyBound
	}
	r.byID[id] = l
	return nil
}

func (r *loopRegistry) unbind(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// EventLoop drives exactly one OS thread through poll -> dispatch active
// channels -> run deferred tasks, forever, until Quit is observed.
type EventLoop struct {
	threadID uint64 // goroutine id bound to this loop, set at New

	poller         Poller
	activeChannels []*Channel

	mu             sync.Mutex
	pendingTasks   []Task
	callingPending atomic.Bool

	running  atomic.Bool
	quitting atomic.Bool

	wakeFD      int
	wakeChannel *Channel
}

// New constructs an EventLoop bound to the calling goroutine's thread
// identity. The caller is expected to have called runtime.LockOSThread
// (or to be the process's initial goroutine/thread) before calling New,
// and to drive the returned loop's Loop method from that same goroutine
// for the remainder of its life; see package thread for the usual way to
// arrange this. New fails (ErrLoopAlreadyBound) if a loop is already
// bound to the current thread.
func New() (*EventLoop, error) {
	id := currentThreadID()

	poller, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("eventloop: construct poller: %w", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = poller.Close()
		return nil, fmt.Errorf("eventloop: create eventfd: %w", err)
	}

	l := &EventLoop{
		threadID: id,
		poller:   poller,
		wakeFD:   wakeFD,
	}

	if err := loops.bind(id, l); err != nil {
		_ = unix.Close(wakeFD)
		_ = poller.Close()
		return nil, err
	}

	l.wakeChannel = NewChannel(l, wakeFD)
	l.wakeChannel.SetReadCallback(l.handleWakeRead)
	l.wakeChannel.EnableReading()

	return l, nil
}

// IsInLoopThread reports whether the calling goroutine is the one this
// loop is bound to.
func (l *EventLoop) IsInLoopThread() bool {
	return currentThreadID() == l.threadID
}

func (l *EventLoop) assertInLoopThread() {
	if !l.IsInLoopThread() {
		logging.Fatal("eventloop: operation requires the owning loop's thread", "op", "assertInLoopThread")
	}
}

// Loop blocks, driving the reactor, until Quit has been observed. Each
// iteration: clear the active-channel list, poll up to pollTimeout,
// dispatch every reported channel's HandleEvent in poller-reported order,
// then drain pendingTasks under callingPending.
//
// Must be called from the loop's bound thread.
func (l *EventLoop) Loop() {
	l.assertInLoopThread()
	l.running.Store(true)
	logging.Debug("eventloop: loop starting")

	for !l.quitting.Load() {
		l.activeChannels = l.activeChannels[:0]
		ts, err := l.poller.Poll(pollTimeout, &l.activeChannels)
		if err != nil {
			logging.Error("eventloop: poll failed", "err", err)
			continue
		}
		for _, c := range l.activeChannels {
			c.HandleEvent(ts)
		}
		l.doPendingTasks()
	}

	logging.Debug("eventloop: loop stopping")
	l.running.Store(false)
}

// Quit marks the loop for termination. If called from a foreign thread
// the wakeup descriptor is also poked so a blocked poll returns promptly
// instead of waiting out pollTimeout.
func (l *EventLoop) Quit() {
	l.quitting.Store(true)
	if !l.IsInLoopThread() {
		l.wakeup()
	}
}

// RunInLoop executes task immediately if called from the owning thread,
// otherwise enqueues it and wakes the loop.
func (l *EventLoop) RunInLoop(task Task) {
	if l.IsInLoopThread() {
		task()
		return
	}
	l.QueueInLoop(task)
}

// QueueInLoop always enqueues task. It wakes the loop when the caller is
// a foreign thread, or when the loop is currently draining pendingTasks
// (so a task enqueued mid-drain lands in the fresh slice the swap leaves
// behind and is observed on the very next drain, not delayed a full poll).
func (l *EventLoop) QueueInLoop(task Task) {
	l.mu.Lock()
	l.pendingTasks = append(l.pendingTasks, task)
	l.mu.Unlock()

	if !l.IsInLoopThread() || l.callingPending.Load() {
		l.wakeup()
	}
}

func (l *EventLoop) doPendingTasks() {
	l.mu.Lock()
	tasks := l.pendingTasks
	l.pendingTasks = nil
	l.mu.Unlock()

	l.callingPending.Store(true)
	for _, t := range tasks {
		t()
	}
	l.callingPending.Store(false)
}

// updateChannel and removeChannel are thin pass-throughs to the poller,
// only ever called from the owning thread (via Channel's methods).
func (l *EventLoop) updateChannel(c *Channel) {
	l.assertInLoopThread()
	if err := l.poller.UpdateChannel(c); err != nil {
		logging.Fatal("eventloop: epoll_ctl ADD/MOD failed", "fd", c.Fd(), "err", err)
	}
}

func (l *EventLoop) removeChannel(c *Channel) {
	l.assertInLoopThread()
	if err := l.poller.RemoveChannel(c); err != nil {
		// DEL failures are non-fatal: the fd may already be closed.
		logging.Warn("eventloop: epoll_ctl DEL failed", "fd", c.Fd(), "err", err)
	}
}

// HasChannel reports whether c is currently registered with this loop's
// poller. Must be called from the owning thread.
func (l *EventLoop) HasChannel(c *Channel) bool {
	l.assertInLoopThread()
	return l.poller.HasChannel(c)
}

func (l *EventLoop) wakeup() {
	var buf [8]byte
	buf[7] = 1
	n, err := writeFD(l.wakeFD, buf[:])
	if err != nil || n != 8 {
		logging.Error("eventloop: wakeup write was not 8 bytes", "n", n, "err", err)
	}
}

func (l *EventLoop) handleWakeRead(time.Time) {
	var buf [8]byte
	n, err := readFD(l.wakeFD, buf[:])
	if err != nil || n != 8 {
		logging.Error("eventloop: wakeup read was not 8 bytes", "n", n, "err", err)
	}
}

// Close tears the loop down: disables and removes the wakeup channel,
// closes the wakeup descriptor, closes the poller, and clears the
// per-thread binding so a new loop may later be constructed on this
// thread. Must be called from the owning thread after Loop has returned.
func (l *EventLoop) Close() error {
	l.wakeChannel.DisableAll()
	l.wakeChannel.Remove()
	err := unix.Close(l.wakeFD)
	if cerr := l.poller.Close(); err == nil {
		err = cerr
	}
	loops.unbind(l.threadID)
	return err
}

// currentThreadID returns a stable identifier for the calling goroutine,
// used as a stand-in for a true OS thread-local slot (Go has none). It
// parses the "goroutine NNN [...]" prefix out of runtime.Stack. Callers
// of New are expected to have pinned the goroutine to its OS thread with
// runtime.LockOSThread, so this id is stable for the loop's whole life.
func currentThreadID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
