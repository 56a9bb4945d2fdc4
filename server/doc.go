// Package server implements Server, the orchestrator that ties an
// Acceptor, a LoopThreadPool, and the set of live Connections
// together: accepting on the base loop, handing each new connection
// off to a round-robin sub-loop, and routing teardown back through
// the base loop's connection registry.
package server
