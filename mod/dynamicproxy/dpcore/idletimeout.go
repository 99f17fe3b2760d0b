package dpcore

import (
	"io"
	"sync/atomic"
	"time"
)

// idleTimeoutReader call onIdle when a single Read of the origin body
// blocks longer than timeout. The timer only runs while a Read is pending
type idleTimeoutReader struct {
	rc      io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleTimeoutReader(rc io.ReadCloser, timeout time.Duration, onIdle func()) *idleTimeoutReader {
	r := &idleTimeoutReader{
		rc:      rc,
		timeout: timeout,
	}
	r.timer = time.AfterFunc(timeout, func() {
		r.expired.Store(true)
		onIdle()
	})
	r.timer.Stop()
	return r
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	r.timer.Reset(r.timeout)
	n, err := r.rc.Read(p)
	r.timer.Stop()
	return n, err
}

// Expired report if the read was aborted for being idle
func (r *idleTimeoutReader) Expired() bool {
	return r.expired.Load()
}

func (r *idleTimeoutReader) Close() error {
	r.timer.Stop()
	return r.rc.Close()
}
