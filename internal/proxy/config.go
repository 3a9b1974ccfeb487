package proxy

import (
	"net"
	"time"

	"github.com/die-net/socksify/internal/dialer"
)

type Config struct {
	NegotiationTimeout time.Duration
	HTTPIdleTimeout    time.Duration

	KeepAlive net.KeepAliveConfig

	Dialer dialer.Dialer

	// Verbose logs per-connection errors.
	Verbose bool
}
