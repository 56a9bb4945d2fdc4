package eventloop

import "errors"

// Sentinel errors declared by this package; callers match against them
// with errors.Is. Of the exported ones, only ErrLoopAlreadyBound (and
// ErrPollerClosed, declared beside the pollers) is returned by any
// function here.
var (
	// ErrLoopAlreadyBound is returned by New when a loop has already been
	// constructed on the calling OS thread. Violating one-loop-per-thread
	// is a programmer error, not a recoverable condition; the caller is
	// expected to treat this as fatal.
	ErrLoopAlreadyBound = errors.New("eventloop: a loop already exists on this thread")

	// ErrLoopClosed names an operation on a loop after Close. No function
	// in this package returns it: after Close the poller's operations fail
	// with ErrPollerClosed.
	ErrLoopClosed = errors.New("eventloop: loop is closed")

	// ErrWrongThread names a call made off the owning loop's thread. No
	// function in this package returns it: the loop's thread checks log at
	// fatal level and exit the process instead.
	ErrWrongThread = errors.New("eventloop: called from a thread other than the owning loop")

	// ErrChannelRemoved names a Channel method called after Remove. No
	// Channel method returns it; Channel methods return no errors.
	ErrChannelRemoved = errors.New("eventloop: channel already removed from its loop")

	// errShortWakeup names a wakeup descriptor read/write that transferred
	// fewer than the expected 8 bytes. It is not used: the wakeup paths
	// log such a transfer directly.
	errShortWakeup = errors.New("eventloop: short read/write on wakeup descriptor")
)
