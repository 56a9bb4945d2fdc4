// Package logging is this module's structured-logging facade. It wraps a
// logiface logger backed by stumpy's pooled JSON event encoder behind a
// small set of level-scoped package functions (Debug/Info/Warn/Error/
// Fatal), so call sites look like plain log lines while the underlying
// builder still gets structured fields attached.
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

var std = stumpy.L.New(
	stumpy.L.WithStumpy(),
)

// SetOutput redirects the package logger's writer, e.g. for tests that
// want to assert on emitted log lines.
func SetOutput(w io.Writer) {
	std = stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
	)
}

func fields(b *logiface.Builder[*stumpy.Event], kvs []any) *logiface.Builder[*stumpy.Event] {
	for i := 0; i+1 < len(kvs); i += 2 {
		key, _ := kvs[i].(string)
		switch v := kvs[i+1].(type) {
		case string:
			b = b.Str(key, v)
		case error:
			if v != nil {
				b = b.Str(key, v.Error())
			}
		case int:
			b = b.Int(key, v)
		case int64:
			b = b.Int64(key, v)
		default:
			b = b.Any(key, v)
		}
	}
	return b
}

// Debug logs routine lifecycle detail (loop start/stop, connection
// established/destroyed) that production deployments typically filter
// out.
func Debug(msg string, kvs ...any) {
	fields(std.Debug(), kvs).Log(msg)
}

// Info logs a noteworthy but non-error event.
func Info(msg string, kvs ...any) {
	fields(std.Info(), kvs).Log(msg)
}

// Warn logs a transient, recoverable problem: a non-fatal epoll_ctl(DEL)
// failure, a send dropped because the connection is no longer connected,
// and similar.
func Warn(msg string, kvs ...any) {
	fields(std.Warning(), kvs).Log(msg)
}

// Error logs a problem serious enough to abandon the current operation
// (an accept failure, a connection-level I/O error) without being fatal
// to the process.
func Error(msg string, kvs ...any) {
	fields(std.Err(), kvs).Log(msg)
}

// Fatal logs at fatal level and then terminates the process. Reserved for
// construction-time errors that are never recoverable in place: a failed
// socket or multiplexer create, a failed bind or listen, a one-loop-per-
// thread violation. Unlike the rest of this package, Fatal does not
// return.
func Fatal(msg string, kvs ...any) {
	fields(std.Fatal(), kvs).Log(msg)
	os.Exit(1)
}
