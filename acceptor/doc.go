// Package acceptor owns a listening socket and its channel on the base
// loop, accepting connections and handing each accepted fd off to a
// caller-supplied callback. It never dispatches to a worker loop itself
// — that round-robin decision belongs to whatever constructs it (see
// package server).
package acceptor
