//go:build !linux

package eventloop

import (
	"errors"
	"runtime"
)

// ErrPollerClosed is returned by Poll/UpdateChannel/RemoveChannel once
// Close has run.
var ErrPollerClosed = errors.New("eventloop: poller closed")

// newPoller is unimplemented outside Linux. Only a Linux readiness-
// notification facility (epoll) is required; select/poll alternatives for
// other platforms are optional and are not implemented here.
func newPoller() (Poller, error) {
	return nil, errors.New("eventloop: no Poller implementation for GOOS=" + runtime.GOOS)
}
