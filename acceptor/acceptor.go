package acceptor

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"golang.org/x/sys/unix"

	"github.com/lanbao2021/simpleMuduo/eventloop"
	"github.com/lanbao2021/simpleMuduo/internal/ratelimit"
	"github.com/lanbao2021/simpleMuduo/logging"
)

// NewConnectionCallback is invoked on the base loop's thread for every
// successfully accepted connection, with the accepted (non-blocking,
// close-on-exec) fd and the peer's address. The callback takes
// ownership of connFd: if it does not want the connection it must close
// connFd itself.
type NewConnectionCallback func(connFd int, peerAddr *net.TCPAddr)

// Acceptor holds a non-blocking listening socket and its channel,
// registered on the base loop. Construction binds and prepares the
// socket; Listen is a separate step so the server can defer actually
// accepting connections until its loop pool is up.
type Acceptor struct {
	loop *eventloop.EventLoop

	listener net.Listener
	file     *os.File
	fd       int

	channel   *eventloop.Channel
	listening bool

	newConnectionCb NewConnectionCallback
	errLimiter      *ratelimit.AcceptErrorLimiter
}

// New creates a listening socket bound to addr (host:port) on loop,
// optionally with SO_REUSEPORT enabled. The socket is non-blocking and
// close-on-exec; the channel is constructed but not yet registered for
// reading — call Listen to do that. Any failure here is a construction
// error the caller should treat as fatal.
func New(loop *eventloop.EventLoop, addr string, reusePort bool) (*Acceptor, error) {
	var ln net.Listener
	var err error
	if reusePort {
		ln, err = reuseport.Listen("tcp", addr)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("acceptor: listen %s: %w", addr, err)
	}

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, fmt.Errorf("acceptor: listener for %s is not a TCP listener", addr)
	}

	// File duplicates the fd and, per its documented behavior, resets it
	// to blocking mode; it must be explicitly set non-blocking again
	// before the Channel can safely poll it.
	file, err := tcpLn.File()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("acceptor: extract listener fd: %w", err)
	}

	fd := int(file.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = file.Close()
		_ = ln.Close()
		return nil, fmt.Errorf("acceptor: set listener non-blocking: %w", err)
	}

	a := &Acceptor{
		loop:       loop,
		listener:   ln,
		file:       file,
		fd:         fd,
		errLimiter: ratelimit.NewAcceptErrorLimiter(),
	}
	a.channel = eventloop.NewChannel(loop, fd)
	a.channel.SetReadCallback(a.handleRead)
	return a, nil
}

// SetNewConnectionCallback installs the callback invoked per accepted
// connection.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	a.newConnectionCb = cb
}

// Addr returns the listening socket's bound address.
func (a *Acceptor) Addr() net.Addr {
	return a.listener.Addr()
}

// Listen re-issues listen(2) with a SOMAXCONN backlog and arms the
// channel for reading, so accepted connections are dispatched from here
// on. The socket is already in the listening state since New (net.Listen
// listens as it binds): the kernel queues incoming connections before
// Listen runs, and they are accepted once the channel is armed. Must run
// on the base loop's thread.
func (a *Acceptor) Listen() error {
	if err := unix.Listen(a.fd, unix.SOMAXCONN); err != nil {
		return fmt.Errorf("acceptor: listen: %w", err)
	}
	a.listening = true
	a.channel.EnableReading()
	return nil
}

func (a *Acceptor) handleRead(time.Time) {
	connFd, sa, err := unix.Accept4(a.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		a.logAcceptError(err)
		return
	}

	peerAddr := sockaddrToTCPAddr(sa)
	if a.newConnectionCb != nil {
		a.newConnectionCb(connFd, peerAddr)
	} else {
		_ = unix.Close(connFd)
	}
}

func (a *Acceptor) logAcceptError(err error) {
	category := "other"
	switch {
	case errors.Is(err, unix.EMFILE):
		category = "EMFILE"
	case errors.Is(err, unix.ENFILE):
		category = "ENFILE"
	}
	if a.errLimiter.Allow(category) {
		if n := a.errLimiter.Flush(); n > 0 {
			logging.Error("acceptor: accept failed", "category", category, "err", err, "suppressedSince", n)
		} else {
			logging.Error("acceptor: accept failed", "category", category, "err", err)
		}
	}
}

// Close tears the acceptor down: disables and removes its channel, then
// closes the duplicated file and the original listener.
func (a *Acceptor) Close() error {
	a.channel.DisableAll()
	a.channel.Remove()
	err := a.file.Close()
	if cerr := a.listener.Close(); err == nil {
		err = cerr
	}
	return err
}

func sockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, v.Addr[:])
		return &net.TCPAddr{IP: ip, Port: v.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		return &net.TCPAddr{IP: ip, Port: v.Port}
	default:
		return nil
	}
}
