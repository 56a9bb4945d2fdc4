package server

import (
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/lanbao2021/simpleMuduo/acceptor"
	"github.com/lanbao2021/simpleMuduo/conn"
	"github.com/lanbao2021/simpleMuduo/eventloop"
	"github.com/lanbao2021/simpleMuduo/logging"
	"github.com/lanbao2021/simpleMuduo/thread"
)

// Server owns a base loop, an Acceptor bound to it, a pool of I/O
// sub-loops, and the registry of live Connections. Its connection
// registry is only ever touched from the base loop's thread: every
// public method that needs to mutate it arranges that via RunInLoop.
type Server struct {
	baseLoop *eventloop.EventLoop
	cfg      Config

	acceptor *acceptor.Acceptor
	pool     *thread.LoopThreadPool

	started atomic.Bool
	nextID  atomic.Int64

	connections map[string]*conn.Connection

	connectionCb    conn.ConnectionCallback
	messageCb       conn.MessageCallback
	writeCompleteCb conn.WriteCompleteCallback
	highWaterMarkCb conn.HighWaterMarkCallback
}

// New constructs a Server bound to baseLoop, listening on cfg.Addr.
// The listening socket is created (bound) immediately; the server
// does not start accepting until Start is called.
func New(baseLoop *eventloop.EventLoop, cfg Config) (*Server, error) {
	a, err := acceptor.New(baseLoop, cfg.Addr, cfg.ReusePort)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		baseLoop:    baseLoop,
		cfg:         cfg,
		acceptor:    a,
		pool:        thread.NewLoopThreadPool(baseLoop, cfg.Name),
		connections: make(map[string]*conn.Connection),
	}
	s.pool.SetNumThreads(cfg.ThreadNum)
	a.SetNewConnectionCallback(s.newConnection)
	return s, nil
}

func (s *Server) SetConnectionCallback(cb conn.ConnectionCallback)       { s.connectionCb = cb }
func (s *Server) SetMessageCallback(cb conn.MessageCallback)             { s.messageCb = cb }
func (s *Server) SetWriteCompleteCallback(cb conn.WriteCompleteCallback) { s.writeCompleteCb = cb }
func (s *Server) SetHighWaterMarkCallback(cb conn.HighWaterMarkCallback) { s.highWaterMarkCb = cb }

// Start is idempotent: only the first call spawns the I/O pool and
// arms the acceptor. Calling it from a foreign thread defers the
// acceptor's Listen onto the base loop.
func (s *Server) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.pool.Start(s.cfg.ThreadInit)
	s.baseLoop.RunInLoop(func() {
		if err := s.acceptor.Listen(); err != nil {
			logging.Fatal("server: listen failed", "name", s.cfg.Name, "err", err)
		}
	})
}

// newConnection is the Acceptor's callback, always invoked on the
// base loop's thread. It follows the sequence: pick a sub-loop,
// compose a name, resolve the local address, construct the
// Connection, register it, install callbacks, and enqueue
// connectEstablished onto the sub-loop.
func (s *Server) newConnection(connFd int, peerAddr *net.TCPAddr) {
	ioLoop := s.pool.NextLoop()

	id := s.nextID.Add(1)
	name := fmt.Sprintf("%s-%s#%d", s.cfg.Name, peerAddr.String(), id)

	localAddr, err := getsockname(connFd)
	if err != nil {
		logging.Error("server: getsockname failed, closing connection", "name", name, "err", err)
		_ = unix.Close(connFd)
		return
	}

	c := conn.New(ioLoop, name, connFd, localAddr, peerAddr)
	c.SetConnectionCallback(s.connectionCb)
	c.SetMessageCallback(s.messageCb)
	c.SetWriteCompleteCallback(s.writeCompleteCb)
	if s.highWaterMarkCb != nil {
		c.SetHighWaterMarkCallback(s.highWaterMarkCb, s.cfg.highWaterMark())
	}
	c.SetCloseCallback(s.removeConnection)

	s.connections[name] = c

	ioLoop.RunInLoop(func() {
		if s.cfg.TCPNoDelay {
			_ = c.SetTCPNoDelay(true)
		}
		if s.cfg.KeepAlive {
			_ = c.SetKeepAlive(true)
		}
		c.ConnectEstablished()
		logging.Debug("server: connection established", "name", name)
	})
}

// removeConnection is a Connection's close callback. It may be
// invoked from any sub-loop's thread, so the registry mutation is
// posted onto the base loop; the actual connectDestroyed call is
// posted back onto the connection's own owning loop.
func (s *Server) removeConnection(c *conn.Connection) {
	s.baseLoop.RunInLoop(func() {
		delete(s.connections, c.Name())
		io := c.Loop()
		io.RunInLoop(func() {
			c.ConnectDestroyed()
			logging.Debug("server: connection destroyed", "name", c.Name())
		})
	})
}

// Stop tears the server down: stops accepting, destroys every live
// connection (preserving per-connection ownership: each gets its
// connectDestroyed posted onto its own sub-loop), then stops the I/O
// pool. Must be called from, or posted to, the base loop's thread —
// callers on a foreign thread should route this through RunInLoop
// themselves if they need ordering against other base-loop work.
func (s *Server) Stop() {
	s.baseLoop.RunInLoop(func() {
		_ = s.acceptor.Close()
		for name, c := range s.connections {
			delete(s.connections, name)
			cc := c
			cc.Loop().RunInLoop(func() {
				cc.ConnectDestroyed()
			})
		}
	})
	s.pool.Stop()
}

func getsockname(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, v.Addr[:])
		return &net.TCPAddr{IP: ip, Port: v.Port}, nil
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		return &net.TCPAddr{IP: ip, Port: v.Port}, nil
	default:
		return nil, fmt.Errorf("server: unsupported sockaddr type %T", sa)
	}
}
