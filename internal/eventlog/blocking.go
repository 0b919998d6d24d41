package eventlog

import (
	"context"
	"time"
)

// Changes returns a channel closed by the next Append or by Close. Grab it
// before reading so an append racing the read is not missed.
func (l *Log) Changes() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notifyCh
}

// WaitForAppend blocks until an append happens after the call, the timeout
// elapses or ctx ends. It returns true when woken by an append. A timeout
// of zero waits without a deadline.
func (l *Log) WaitForAppend(ctx context.Context, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false, ErrClosed
	}
	ch := l.notifyCh
	l.mu.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	select {
	case <-ch:
		if l.isClosed() {
			return false, ErrClosed
		}
		return true, nil
	case <-deadline:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (l *Log) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
