package eventloop

import "time"

// Poller is the readiness-multiplexer abstraction. A concrete
// implementation owns the multiplexer handle and a map from fd to the
// Channel registered for it. Not thread-safe: a Poller is only ever
// touched from its owning EventLoop's thread. Kept as an interface
// (rather than a concrete-only type) so an alternative multiplexer
// (select/poll) implementation could be added behind another build tag
// without touching EventLoop.
type Poller interface {
	// Poll blocks up to timeout for readiness, appends every channel with
	// new reported events to active (in an implementation-defined but
	// stable order), and returns the time the wait unblocked.
	Poll(timeout time.Duration, active *[]*Channel) (time.Time, error)

	// UpdateChannel registers, re-registers, or modifies c's interest set
	// with the multiplexer, per the index state machine documented on
	// Channel. Must be called from the owning loop's thread.
	UpdateChannel(c *Channel) error

	// RemoveChannel deregisters c entirely. c must request no events.
	RemoveChannel(c *Channel) error

	// HasChannel reports whether c is currently tracked by this poller.
	HasChannel(c *Channel) bool

	// Close releases the multiplexer handle.
	Close() error
}
