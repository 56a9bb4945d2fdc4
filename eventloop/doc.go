// Package eventloop implements a readiness-driven reactor: a [Channel] binds
// a file descriptor to an interest set and a handful of callbacks, a
// [Poller] multiplexes readiness across every registered Channel, and an
// [EventLoop] drives exactly one OS thread through poll -> dispatch -> run
// deferred tasks, forever, until told to quit.
//
// # Thread affinity
//
// An EventLoop is thread-affine: exactly one may be constructed per OS
// thread, and it is only ever driven from that thread. [New] fails if a
// loop already exists on the calling thread. Every other package in this
// module builds on top of this guarantee: Channel interest-set mutations,
// the Poller's fd map, and a loop's pending-task queue are all only safe
// to touch from the owning thread (or, for task submission, via
// [EventLoop.RunInLoop] / [EventLoop.QueueInLoop] from anywhere).
//
// # Waking a blocked loop
//
// Each loop blocks in [Poller.Poll] for up to ten seconds at a time. A task
// submitted from a foreign thread, or a call to [EventLoop.Quit], writes to
// an auxiliary eventfd-backed wakeup descriptor so the poll returns
// promptly instead of waiting out the full timeout.
//
// # Usage
//
// A loop is constructed, armed and driven from one goroutine locked to
// its OS thread (package thread arranges this for real workers):
//
//	ready := make(chan *eventloop.EventLoop)
//	go func() {
//	    runtime.LockOSThread()
//	    loop, err := eventloop.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer loop.Close()
//
//	    ch := eventloop.NewChannel(loop, fd)
//	    ch.SetReadCallback(func(ts time.Time) { ... })
//	    ch.EnableReading()
//
//	    ready <- loop
//	    loop.Loop()
//	}()
//
//	loop := <-ready
//	loop.RunInLoop(func() { fmt.Println("hello from the loop thread") })
package eventloop
