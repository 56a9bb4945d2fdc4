package server

import (
	"github.com/lanbao2021/simpleMuduo/conn"
	"github.com/lanbao2021/simpleMuduo/thread"
)

// Config is the programmatic configuration surface for a Server.
// There is no config-file parser or flag package here: the embedder
// builds this struct directly, matching how the original C++ API is
// just a handful of setters called before start().
type Config struct {
	// Addr is the listen address, host:port.
	Addr string

	// Name prefixes every connection name, as "<Name>-<ip:port>#<id>".
	Name string

	// ThreadNum is the number of I/O sub-loops. Zero means every
	// connection is handled directly on the base loop.
	ThreadNum int

	// ReusePort enables SO_REUSEPORT on the listening socket.
	ReusePort bool

	// ThreadInit, if set, runs on each sub-loop's own thread right
	// after its EventLoop is constructed, before it starts polling.
	ThreadInit thread.InitFunc

	// HighWaterMark overrides conn.DefaultHighWaterMark when positive.
	HighWaterMark int

	// TCPNoDelay and KeepAlive are applied to every accepted
	// connection's socket at connectEstablished time.
	TCPNoDelay bool
	KeepAlive  bool
}

func (c Config) highWaterMark() int {
	if c.HighWaterMark > 0 {
		return c.HighWaterMark
	}
	return conn.DefaultHighWaterMark
}
