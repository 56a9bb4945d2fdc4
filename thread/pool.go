package thread

import (
	"fmt"
	"sync"

	"github.com/lanbao2021/simpleMuduo/eventloop"
)

// LoopThreadPool manages a fixed-size set of worker LoopThreads alongside
// the base loop that owns the pool. With zero configured threads,
// NextLoop and AllLoops both degrade to the base loop, so a caller never
// needs to special-case an empty pool.
//
// NextLoop and AllLoops are only ever called from the base loop's
// thread (by the Acceptor/Server), so the round-robin cursor needs no
// synchronization of its own.
type LoopThreadPool struct {
	baseLoop *eventloop.EventLoop
	name     string

	mu         sync.Mutex
	numThreads int
	started    bool
	threads    []*LoopThread
	loops      []*eventloop.EventLoop
	cursor     int
}

// NewLoopThreadPool constructs a pool of workers for baseLoop. name
// prefixes each worker's diagnostic name as "<name>#<i>".
func NewLoopThreadPool(baseLoop *eventloop.EventLoop, name string) *LoopThreadPool {
	return &LoopThreadPool{baseLoop: baseLoop, name: name}
}

// SetNumThreads configures the pool size. Must be called before Start.
func (p *LoopThreadPool) SetNumThreads(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numThreads = n
}

// Start spawns every worker thread, in order, blocking until each one's
// EventLoop is ready before spawning the next (so worker #i's init
// observes a pool name scheme independent of concurrent spawn timing).
// If the pool size is zero and init is non-nil, init runs once against
// the base loop directly. Calling Start more than once is a no-op.
func (p *LoopThreadPool) Start(init InitFunc) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	n := p.numThreads
	p.mu.Unlock()

	if n == 0 {
		if init != nil {
			init(p.baseLoop)
		}
		return
	}

	threads := make([]*LoopThread, n)
	loops := make([]*eventloop.EventLoop, n)
	for i := 0; i < n; i++ {
		lt := NewLoopThread(fmt.Sprintf("%s#%d", p.name, i), init)
		threads[i] = lt
		loops[i] = lt.StartLoop()
	}

	p.mu.Lock()
	p.threads = threads
	p.loops = loops
	p.mu.Unlock()
}

// NextLoop returns the next sub-loop in round-robin order, or the base
// loop if the pool has no workers.
func (p *LoopThreadPool) NextLoop() *eventloop.EventLoop {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	loop := p.loops[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.loops)
	return loop
}

// AllLoops returns every worker loop, or a single-element slice holding
// the base loop if the pool has no workers. The returned slice is a copy
// and safe for the caller to retain or mutate.
func (p *LoopThreadPool) AllLoops() []*eventloop.EventLoop {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loops) == 0 {
		return []*eventloop.EventLoop{p.baseLoop}
	}
	out := make([]*eventloop.EventLoop, len(p.loops))
	copy(out, p.loops)
	return out
}

// Stop quits and joins every worker thread. The base loop is left
// running; the caller owns its lifecycle.
func (p *LoopThreadPool) Stop() {
	p.mu.Lock()
	threads := p.threads
	p.mu.Unlock()
	for _, lt := range threads {
		lt.Quit()
	}
}
