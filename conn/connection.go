package conn

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lanbao2021/simpleMuduo/buffer"
	"github.com/lanbao2021/simpleMuduo/eventloop"
	"github.com/lanbao2021/simpleMuduo/logging"
)

// State is a Connection's position in its connecting -> connected ->
// disconnecting -> disconnected lifecycle. Once Disconnected a
// Connection never transitions again.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DefaultHighWaterMark is the output-buffer size, in bytes, past which
// the high-water-mark callback fires if one is installed.
const DefaultHighWaterMark = 64 * 1024 * 1024

// ConnectionCallback is invoked once when a Connection becomes
// connected and once more when it becomes disconnected. Inspect
// State() to tell the two apart.
type ConnectionCallback func(c *Connection)

// MessageCallback is invoked whenever new bytes have been read into
// the Connection's input buffer. The callback is expected to Retrieve
// whatever it consumes; bytes left in the buffer are still there on
// the next call.
type MessageCallback func(c *Connection, buf *buffer.Buffer, ts time.Time)

// WriteCompleteCallback is invoked on the loop thread once the output
// buffer has been fully drained by a prior Send that could not write
// everything immediately.
type WriteCompleteCallback func(c *Connection)

// HighWaterMarkCallback is invoked at most once per crossing of
// DefaultHighWaterMark (or whatever was configured), with the output
// buffer's size in bytes at the moment it was crossed.
type HighWaterMarkCallback func(c *Connection, bytesQueued int)

// closeCallback is installed by the owning Server to learn when a
// Connection has finished its close path, so it can remove the
// connection from its registry and finalize teardown.
type closeCallback func(c *Connection)

// Connection wraps one accepted, non-blocking socket: its Channel,
// its input/output buffers, and the user callbacks driven off of
// them. Send, Shutdown and ForceClose may be called from any goroutine
// and route their work onto the owning loop; every other method that
// touches mutable state must run on the owning loop's thread.
// ConnectEstablished, ConnectDestroyed and the write and close handlers
// assert this.
type Connection struct {
	loop *eventloop.EventLoop
	name string
	fd   int

	localAddr *net.TCPAddr
	peerAddr  *net.TCPAddr

	channel *eventloop.Channel

	state State32

	inputBuffer  *buffer.Buffer
	outputBuffer *buffer.Buffer

	highWaterMark int

	connectionCb    ConnectionCallback
	messageCb       MessageCallback
	writeCompleteCb WriteCompleteCallback
	highWaterMarkCb HighWaterMarkCallback
	closeCb         closeCallback
}

// State32 is an atomic holder for State.
type State32 struct{ v atomic.Int32 }

func (s *State32) Load() State      { return State(s.v.Load()) }
func (s *State32) Store(st State)   { s.v.Store(int32(st)) }

// New wraps fd (already non-blocking, already accepted) as a
// Connection bound to loop. The Connection starts in StateConnecting;
// call ConnectEstablished from loop's thread to arm it.
func New(loop *eventloop.EventLoop, name string, fd int, localAddr, peerAddr *net.TCPAddr) *Connection {
	c := &Connection{
		loop:          loop,
		name:          name,
		fd:            fd,
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		inputBuffer:   buffer.New(),
		outputBuffer:  buffer.New(),
		highWaterMark: DefaultHighWaterMark,
	}
	c.state.Store(StateConnecting)
	c.channel = eventloop.NewChannel(loop, fd)
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	return c
}

func (c *Connection) Name() string          { return c.name }
func (c *Connection) Loop() *eventloop.EventLoop { return c.loop }
func (c *Connection) LocalAddr() *net.TCPAddr    { return c.localAddr }
func (c *Connection) PeerAddr() *net.TCPAddr     { return c.peerAddr }
func (c *Connection) State() State               { return c.state.Load() }
func (c *Connection) Connected() bool            { return c.state.Load() == StateConnected }

func (c *Connection) SetConnectionCallback(cb ConnectionCallback)       { c.connectionCb = cb }
func (c *Connection) SetMessageCallback(cb MessageCallback)             { c.messageCb = cb }
func (c *Connection) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.writeCompleteCb = cb }
func (c *Connection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCb = cb
	c.highWaterMark = mark
}
// SetCloseCallback installs the callback the owning Server uses to
// learn a Connection has finished its close path, so it can drop the
// connection from its registry. Not meant for application code.
func (c *Connection) SetCloseCallback(cb closeCallback) { c.closeCb = cb }

func (c *Connection) assertInLoop() {
	if !c.loop.IsInLoopThread() {
		logging.Fatal("conn: operation requires owning loop's thread", "name", c.name)
	}
}

// SetTCPNoDelay toggles TCP_NODELAY on the underlying socket.
func (c *Connection) SetTCPNoDelay(on bool) error {
	return unix.SetsockoptInt(c.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

// SetKeepAlive toggles SO_KEEPALIVE on the underlying socket.
func (c *Connection) SetKeepAlive(on bool) error {
	return unix.SetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ConnectEstablished transitions a newly constructed Connection into
// StateConnected, ties its channel's liveness to State() != Disconnected,
// arms reading, and invokes the connection callback. Must run on loop's
// thread — the Server arranges this via RunInLoop right after accept.
func (c *Connection) ConnectEstablished() {
	c.assertInLoop()
	if c.state.Load() != StateConnecting {
		logging.Fatal("conn: ConnectEstablished called outside StateConnecting", "name", c.name, "state", c.state.Load())
	}
	c.state.Store(StateConnected)
	c.channel.SetTie(c.alive)
	c.channel.EnableReading()
	if c.connectionCb != nil {
		c.connectionCb(c)
	}
}

func (c *Connection) alive() bool {
	return c.state.Load() != StateDisconnected
}

// ConnectDestroyed finalizes teardown: if the close path never ran
// (e.g. the owning Server is shutting down with connections still
// live), it performs the close path's state transition and callback
// itself; either way it unregisters the channel from the poller. Must
// run on loop's thread.
func (c *Connection) ConnectDestroyed() {
	c.assertInLoop()
	if c.state.Load() != StateDisconnected {
		c.state.Store(StateDisconnected)
		c.channel.DisableAll()
		if c.connectionCb != nil {
			c.connectionCb(c)
		}
	}
	c.channel.Remove()
	if err := unix.Close(c.fd); err != nil {
		logging.Error("conn: close fd failed", "name", c.name, "fd", c.fd, "err", err)
	}
}

func (c *Connection) handleRead(ts time.Time) {
	n, err := c.inputBuffer.ReadFD(c.fd)
	switch {
	case n > 0:
		if c.messageCb != nil {
			c.messageCb(c, c.inputBuffer, ts)
		}
	case n == 0:
		c.handleClose()
	case errors.Is(err, unix.EAGAIN):
		// spurious readiness notification; nothing to do.
	default:
		logging.Error("conn: read error", "name", c.name, "err", err)
		c.handleError()
	}
}

func (c *Connection) handleWrite() {
	c.assertInLoop()
	if !c.channel.IsWriting() {
		return
	}
	n, err := unix.Write(c.fd, c.outputBuffer.Peek())
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return
		}
		logging.Error("conn: write error", "name", c.name, "err", err)
		return
	}
	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCb != nil {
			c.writeCompleteCb(c)
		}
		if c.state.Load() == StateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

// handleClose runs the close path: disable all channel interest,
// transition to disconnected and invoke the connection callback
// (reporting the connection down) unless that has already happened,
// then notify the owning Server via the close callback. Idempotent.
func (c *Connection) handleClose() {
	c.assertInLoop()
	if c.state.Load() == StateDisconnected {
		return
	}
	c.state.Store(StateDisconnecting)
	c.channel.DisableAll()
	c.state.Store(StateDisconnected)
	if c.connectionCb != nil {
		c.connectionCb(c)
	}
	if c.closeCb != nil {
		c.closeCb(c)
	}
}

func (c *Connection) handleError() {
	errno, gerr := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil {
		logging.Error("conn: socket error", "name", c.name, "err", gerr)
	} else {
		logging.Error("conn: socket error", "name", c.name, "errno", errno)
	}
	c.handleClose()
}

// Send queues data for writing. If called from the owning loop's
// thread and the output buffer is currently empty, it attempts an
// immediate, possibly partial, non-blocking write before queuing the
// remainder. If called from a foreign thread, the write is deferred
// onto the loop via RunInLoop (and the data copied, since the caller
// may reuse its slice). Send on a non-connected Connection is a no-op.
func (c *Connection) Send(data []byte) {
	if c.loop.IsInLoopThread() {
		c.sendInLoop(data)
		return
	}
	buf := append([]byte(nil), data...)
	c.loop.RunInLoop(func() { c.sendInLoop(buf) })
}

func (c *Connection) sendInLoop(data []byte) {
	if c.state.Load() != StateConnected {
		logging.Warn("conn: send on non-connected connection dropped", "name", c.name, "state", c.state.Load())
		return
	}

	var nwrote int
	remaining := len(data)
	faultError := false

	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.fd, data)
		switch {
		case err == nil:
			nwrote = n
			remaining = len(data) - n
		case errors.Is(err, unix.EAGAIN):
			// expected: socket send buffer is full, queue the rest below.
		case errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET):
			faultError = true
			logging.Error("conn: send failed", "name", c.name, "err", err)
		default:
			logging.Error("conn: send failed", "name", c.name, "err", err)
		}
	}

	if !faultError && remaining > 0 {
		queued := c.outputBuffer.ReadableBytes()
		if queued+remaining >= c.highWaterMark && queued < c.highWaterMark && c.highWaterMarkCb != nil {
			c.highWaterMarkCb(c, queued+remaining)
		}
		c.outputBuffer.Append(data[nwrote:])
		if !c.channel.IsWriting() {
			c.channel.EnableWriting()
		}
	}
}

// Shutdown half-closes the connection for writing once any queued
// output has drained (SHUT_WR is issued immediately if the output
// buffer is already empty). Reads continue until the peer closes its
// side too.
func (c *Connection) Shutdown() {
	if c.loop.IsInLoopThread() {
		c.shutdownInLoop()
		return
	}
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *Connection) shutdownInLoop() {
	st := c.state.Load()
	if st != StateConnected && st != StateDisconnecting {
		return
	}
	c.state.Store(StateDisconnecting)
	if !c.channel.IsWriting() {
		if err := unix.Shutdown(c.fd, unix.SHUT_WR); err != nil && !errors.Is(err, unix.ENOTCONN) {
			logging.Error("conn: shutdown(SHUT_WR) failed", "name", c.name, "err", err)
		}
	}
}

// ForceClose skips any graceful drain and immediately runs the close
// path, as if the peer had hung up.
func (c *Connection) ForceClose() {
	if c.loop.IsInLoopThread() {
		c.handleClose()
		return
	}
	c.loop.RunInLoop(c.handleClose)
}
