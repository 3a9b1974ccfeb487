package dialer

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/die-net/socksify/internal/socks4"
)

// TunnelDialer dials TCP connections through its upstream with Establish.
//
// DialContext never upgrades to TLS; net/http and the local proxy listeners
// layer TLS on top themselves.
type TunnelDialer struct {
	cfg Config
	up  Upstream
}

func NewTunnelDialer(cfg Config, up Upstream) *TunnelDialer {
	return &TunnelDialer{cfg: cfg, up: up}
}

// Config returns the dialer's configuration.
func (d *TunnelDialer) Config() Config {
	return d.cfg
}

// Upstream returns the parsed upstream.
func (d *TunnelDialer) Upstream() Upstream {
	return d.up
}

// ProxyAddr returns the proxy host:port, or "" for direct connections.
func (d *TunnelDialer) ProxyAddr() string {
	if d.up.Proxy == nil {
		return ""
	}
	return d.up.Proxy.String()
}

// NewRequest returns a Request for host:port through the dialer's upstream.
func (d *TunnelDialer) NewRequest(host string, port uint16, secure SecureMode) Request {
	req := Request{
		Host:           host,
		Port:           port,
		Secure:         secure,
		ResolveLocally: d.up.ResolveLocally,
	}
	if d.up.Proxy != nil {
		req.ProxyHost = d.up.Proxy.Host
		req.ProxyPort = d.up.Proxy.Port
	}
	return req
}

// Establish establishes a connection to host:port through the upstream.
func (d *TunnelDialer) Establish(ctx context.Context, host string, port uint16, secure SecureMode) (*Conn, error) {
	return Establish(ctx, d.cfg, d.NewRequest(host, port, secure))
}

// DialContext establishes a plain TCP connection to address.
func (d *TunnelDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks4 dial %s %s: unsupported network", network, address)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("socks4 dial %s: %w", address, err)
	}
	port, err := socks4.ParsePort(portStr)
	if err != nil {
		return nil, fmt.Errorf("socks4 dial %s: %w", address, err)
	}

	c, err := d.Establish(ctx, host, port, SecureOff)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Dial is DialContext without a context, for golang.org/x/net/proxy.
func (d *TunnelDialer) Dial(network, address string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, address)
}
