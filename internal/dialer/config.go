package dialer

import (
	"crypto/tls"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"github.com/die-net/socksify/internal/resolve"
)

// DefaultTimeout is the handshake deadline used when neither the Request nor
// the Config sets one.
const DefaultTimeout = 5 * time.Second

type Config struct {
	// Timeout bounds dialing, the proxy handshake and the TLS upgrade
	// together. Request.Timeout overrides it.
	Timeout time.Duration

	KeepAlive net.KeepAliveConfig

	// TLSConfig is cloned for every upgrade. An empty ServerName is filled
	// in with the destination host.
	TLSConfig *tls.Config

	// Resolver resolves dial targets and plain SOCKS4 destinations. Nil
	// means the system resolver.
	Resolver resolve.Resolver

	// Forward dials the first hop instead of a net.Dialer.
	Forward proxy.Dialer
}

func (cfg Config) resolver() resolve.Resolver {
	if cfg.Resolver != nil {
		return cfg.Resolver
	}
	return resolve.System()
}

func (cfg Config) tlsConfig(serverName string) *tls.Config {
	var c *tls.Config
	if cfg.TLSConfig != nil {
		c = cfg.TLSConfig.Clone()
	} else {
		c = &tls.Config{}
	}
	if c.ServerName == "" {
		c.ServerName = serverName
	}
	if c.MinVersion == 0 {
		c.MinVersion = tls.VersionTLS12
	}
	return c
}
