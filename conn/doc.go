// Package conn implements Connection, the per-accepted-socket state
// machine: reading into an input buffer and dispatching messages,
// queuing and draining an output buffer for writes that would
// otherwise block, and the connecting/connected/disconnecting/
// disconnected lifecycle that ties a Channel's liveness to the
// Connection that owns it.
package conn
