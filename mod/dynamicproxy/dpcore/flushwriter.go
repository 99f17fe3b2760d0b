package dpcore

import (
	"io"
	"sync"
	"time"
)

// flushWriter flush the client response at most once per interval while the
// origin body is copied. A negative interval flush after every write
type flushWriter struct {
	dst      io.Writer
	flush    func() error
	interval time.Duration

	mu      sync.Mutex //Guards timer, pending and calls to flush
	timer   *time.Timer
	pending bool
}

// newFlushWriter arm the first flush right away so the response headers
// reach the client even if the origin is slow with the first body byte
func newFlushWriter(dst io.Writer, flush func() error, interval time.Duration) *flushWriter {
	fw := &flushWriter{
		dst:      dst,
		flush:    flush,
		interval: interval,
	}
	if interval > 0 {
		fw.pending = true
		fw.timer = time.AfterFunc(interval, fw.flushPending)
	}
	return fw
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	n, err := fw.dst.Write(p)
	if fw.interval < 0 {
		fw.flush()
		return n, err
	}
	if fw.pending {
		return n, err
	}

	fw.pending = true
	if fw.timer == nil {
		fw.timer = time.AfterFunc(fw.interval, fw.flushPending)
	} else {
		fw.timer.Reset(fw.interval)
	}
	return n, err
}

func (fw *flushWriter) flushPending() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	//Cleared by stop while this callback was already scheduled
	if !fw.pending {
		return
	}
	fw.flush()
	fw.pending = false
}

func (fw *flushWriter) stop() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.pending = false
	if fw.timer != nil {
		fw.timer.Stop()
	}
}
