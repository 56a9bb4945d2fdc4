package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanbao2021/simpleMuduo/eventloop"
)

func TestLoopThread_StartLoopRunsInit(t *testing.T) {
	var initLoop *eventloop.EventLoop
	lt := NewLoopThread("w#0", func(l *eventloop.EventLoop) {
		initLoop = l
	})
	loop := lt.StartLoop()
	defer lt.Quit()

	require.NotNil(t, loop)
	assert.Same(t, loop, initLoop)
	assert.Same(t, loop, lt.Loop())
}

func TestLoopThread_StartLoopIdempotent(t *testing.T) {
	lt := NewLoopThread("w#0", nil)
	first := lt.StartLoop()
	second := lt.StartLoop()
	defer lt.Quit()
	assert.Same(t, first, second)
}

func TestLoopThread_QuitWithoutStartIsNoOp(t *testing.T) {
	lt := NewLoopThread("w#0", nil)
	assert.NotPanics(t, lt.Quit)
}
