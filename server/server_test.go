package server

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanbao2021/simpleMuduo/buffer"
	"github.com/lanbao2021/simpleMuduo/conn"
	"github.com/lanbao2021/simpleMuduo/eventloop"
	"github.com/lanbao2021/simpleMuduo/thread"
)

func startBaseLoop(t *testing.T) (*eventloop.EventLoop, func()) {
	t.Helper()
	lt := thread.NewLoopThread("server-test-base", nil)
	loop := lt.StartLoop()
	require.NotNil(t, loop)
	return loop, lt.Quit
}

// TestServer_EchoRoundTrip covers scenario S1: a server with worker
// sub-loops echoes back what it reads, then shuts the connection
// down; the client observes its payload followed by EOF and then
// closes its end, and the connection-up/down callbacks each fire
// exactly once.
func TestServer_EchoRoundTrip(t *testing.T) {
	baseLoop, stopBase := startBaseLoop(t)
	defer stopBase()

	s, err := New(baseLoop, Config{Addr: "127.0.0.1:0", Name: "echo", ThreadNum: 3})
	require.NoError(t, err)

	var upCount, downCount atomic.Int32
	s.SetConnectionCallback(func(c *conn.Connection) {
		if c.State() == conn.StateConnected {
			upCount.Add(1)
		} else {
			downCount.Add(1)
		}
	})
	s.SetMessageCallback(func(c *conn.Connection, buf *buffer.Buffer, ts time.Time) {
		payload := buf.RetrieveAllString()
		c.Send([]byte(payload))
		c.Shutdown()
	})

	s.Start()

	addr := addrOf(t, s)

	client, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	got := make([]byte, 0, 5)
	buf := make([]byte, 16)
	for len(got) < 5 {
		n, rerr := client.Read(buf)
		if n > 0 {
			got = append(got, buf[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	assert.Equal(t, "hello", string(got))

	// Peer should now observe EOF since the server half-closed.
	n, err := client.Read(buf)
	assert.Equal(t, 0, n)
	assert.Error(t, err)

	// The server's read side stays open after its SHUT_WR; the close
	// path (and the down callback) runs once the client closes too.
	require.NoError(t, client.Close())

	require.Eventually(t, func() bool { return downCount.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), upCount.Load())
	assert.Equal(t, int32(1), downCount.Load())

	s.Stop()
}

// TestServer_HighWaterMarkAndWriteComplete covers scenario S2: a
// large send on a slow receiver crosses the high-water mark exactly
// once, and write-complete fires once the output buffer has fully
// drained.
func TestServer_HighWaterMarkAndWriteComplete(t *testing.T) {
	baseLoop, stopBase := startBaseLoop(t)
	defer stopBase()

	s, err := New(baseLoop, Config{Addr: "127.0.0.1:0", Name: "hwm", ThreadNum: 1, HighWaterMark: 64 * 1024})
	require.NoError(t, err)

	var mu sync.Mutex
	var hwmHits int
	var writeCompleteHits int
	ready := make(chan *conn.Connection, 1)

	s.SetConnectionCallback(func(c *conn.Connection) {
		if c.State() == conn.StateConnected {
			ready <- c
		}
	})
	s.SetHighWaterMarkCallback(func(c *conn.Connection, n int) {
		mu.Lock()
		hwmHits++
		mu.Unlock()
	})
	s.SetWriteCompleteCallback(func(c *conn.Connection) {
		mu.Lock()
		writeCompleteHits++
		mu.Unlock()
	})

	s.Start()
	addr := addrOf(t, s)

	client, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()

	var c *conn.Connection
	select {
	case c = <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never established")
	}

	payload := make([]byte, 512*1024)
	c.Send(payload)

	total := 0
	buf := make([]byte, 32*1024)
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	for total < len(payload) {
		n, rerr := client.Read(buf)
		total += n
		require.NoError(t, rerr)
	}
	assert.Equal(t, len(payload), total)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return writeCompleteHits >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.GreaterOrEqual(t, hwmHits, 1)
	mu.Unlock()

	s.Stop()
}

func TestServer_StartIsIdempotent(t *testing.T) {
	baseLoop, stopBase := startBaseLoop(t)
	defer stopBase()

	s, err := New(baseLoop, Config{Addr: "127.0.0.1:0", Name: "idempotent"})
	require.NoError(t, err)

	s.Start()
	s.Start() // must not panic or double-spawn the pool
	s.Stop()
}

func addrOf(t *testing.T, s *Server) string {
	t.Helper()
	got := make(chan string, 1)
	s.baseLoop.RunInLoop(func() { got <- s.acceptor.Addr().String() })
	select {
	case addr := <-got:
		return addr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out resolving server address")
		return ""
	}
}
