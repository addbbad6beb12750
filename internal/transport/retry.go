package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Connect-retry pacing. The first reconnect waits dialRetryInterval;
// every further wait doubles, capped at dialRetryCap so a long retry
// budget cannot push a single pause past the per-call
// transfer_timeout the caller already enforces.
const (
	dialRetryInterval = 200 * time.Millisecond
	dialRetryCap      = 5 * time.Second
	dialAttemptLimit  = 10 * time.Second
)

// dialWithRetry opens the TCP leg of a driver connection, retrying a
// refused or unreachable host up to retries additional attempts.
// Retry exhaustion reports the last dial error so the worker still
// classifies it as a connect failure; ctx cancels both the dial in
// flight and the pause between attempts.
func dialWithRetry(ctx context.Context, addr string, retries int) (net.Conn, error) {
	interval := dialRetryInterval
	for attempt := 0; ; attempt++ {
		dialer := net.Dialer{Timeout: dialAttemptLimit}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		if attempt >= retries {
			return nil, fmt.Errorf("transport: connect to %s after %d attempt(s): %w", addr, attempt+1, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		interval *= 2
		if interval > dialRetryCap {
			interval = dialRetryCap
		}
	}
}
