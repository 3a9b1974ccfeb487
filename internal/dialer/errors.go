package dialer

import (
	"context"
	"errors"

	"github.com/die-net/socksify/internal/socks4"
)

var (
	// ErrRequestTimeout is returned when no outcome is reached before the
	// deadline.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrProtocolViolation is returned when the proxy's reply does not start
	// with a null byte.
	ErrProtocolViolation = socks4.ErrProtocolViolation

	// ErrRequestRejected is returned when the proxy declines the tunnel.
	ErrRequestRejected = socks4.ErrRequestRejected
)

// ConnectionError reports a transport failure talking to Addr.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return "connect " + e.Addr + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// contextError maps a finished context to the error Establish reports.
func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrRequestTimeout
	}
	return ctx.Err()
}
