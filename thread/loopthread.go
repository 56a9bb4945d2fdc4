package thread

import (
	"github.com/lanbao2021/simpleMuduo/eventloop"
	"github.com/lanbao2021/simpleMuduo/logging"
)

// InitFunc runs on a sub-loop's own thread, after its EventLoop has been
// constructed but before it starts polling. Used to run per-thread setup
// (e.g. registering thread-local metrics) the embedder supplies.
type InitFunc func(loop *eventloop.EventLoop)

// LoopThread spawns a worker thread, constructs an EventLoop on it, and
// publishes the loop pointer back to the caller once it is ready to
// receive registered channels and queued tasks.
type LoopThread struct {
	name string
	init InitFunc

	thread *Thread
	loop   *eventloop.EventLoop
	readyCh chan struct{}
}

// NewLoopThread constructs a LoopThread that has not yet been started.
func NewLoopThread(name string, init InitFunc) *LoopThread {
	return &LoopThread{
		name:    name,
		init:    init,
		readyCh: make(chan struct{}),
	}
}

// StartLoop spawns the worker and blocks until its EventLoop has been
// constructed (and init, if set, has run), returning the loop pointer.
// Calling StartLoop more than once returns the same loop.
func (lt *LoopThread) StartLoop() *eventloop.EventLoop {
	if lt.thread == nil {
		lt.thread = New(lt.name, lt.runLoop)
		lt.thread.Start()
		<-lt.readyCh
	}
	return lt.loop
}

func (lt *LoopThread) runLoop() {
	loop, err := eventloop.New()
	if err != nil {
		logging.Fatal("thread: failed to construct event loop", "name", lt.name, "err", err)
		return
	}
	if lt.init != nil {
		lt.init(loop)
	}
	lt.loop = loop
	close(lt.readyCh)
	loop.Loop()
}

// Quit tells the loop to stop and waits for its thread to exit. A
// LoopThread that was never started returns immediately.
func (lt *LoopThread) Quit() {
	if lt.loop != nil {
		lt.loop.Quit()
	}
	if lt.thread != nil {
		lt.thread.Join()
	}
}

// Loop returns the worker's EventLoop, or nil if StartLoop has not yet
// returned.
func (lt *LoopThread) Loop() *eventloop.EventLoop { return lt.loop }
