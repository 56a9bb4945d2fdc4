// Package thread spawns the OS threads a server's event loops run on.
// [Thread] wraps a single goroutine pinned to its OS thread with
// runtime.LockOSThread, publishing readiness back to the spawner before
// Start returns. [LoopThread] composes a Thread with an [eventloop.EventLoop]
// constructed inside it, and [LoopThreadPool] manages a fixed-size,
// round-robin set of LoopThreads alongside a base loop.
package thread
