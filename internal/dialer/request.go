package dialer

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"
)

// Target is a host and port to dial: the destination, or the proxy when one
// is configured.
type Target struct {
	Host string
	Port uint16
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// SecureMode selects whether the established connection is upgraded to TLS.
type SecureMode int

const (
	// SecureAuto upgrades only connections to destination port 443.
	SecureAuto SecureMode = iota
	SecureOn
	SecureOff
)

// Request describes one connection to establish.
//
// It is a direct connection unless both ProxyHost and ProxyPort are set.
type Request struct {
	Host string
	Port uint16

	ProxyHost string
	ProxyPort uint16

	Secure SecureMode

	// ResolveLocally resolves Host to an IPv4 address before the proxy
	// request is encoded, so the proxy receives plain SOCKS4 instead of a
	// SOCKS4a hostname.
	ResolveLocally bool

	// Timeout overrides Config.Timeout. It must not be negative.
	Timeout time.Duration
}

// Destination returns the final host and port.
func (r Request) Destination() Target {
	return Target{Host: r.Host, Port: r.Port}
}

// Proxied reports whether the request is tunneled through a proxy.
func (r Request) Proxied() bool {
	return r.ProxyHost != "" && r.ProxyPort != 0
}

// DialTarget returns the endpoint the TCP connection is opened to.
func (r Request) DialTarget() Target {
	if r.Proxied() {
		return Target{Host: r.ProxyHost, Port: r.ProxyPort}
	}
	return r.Destination()
}

// IsSecure reports whether the connection will be upgraded to TLS.
func (r Request) IsSecure() bool {
	switch r.Secure {
	case SecureOn:
		return true
	case SecureOff:
		return false
	default:
		return r.Port == 443
	}
}

func (r Request) validate() error {
	if r.Host == "" {
		return errors.New("missing destination host")
	}
	if r.Timeout < 0 {
		return fmt.Errorf("invalid timeout %s", r.Timeout)
	}
	if r.Proxied() {
		if ip, err := netip.ParseAddr(r.Host); err == nil && ip.Is6() {
			return fmt.Errorf("ipv6 destination %s not supported through socks4", r.Host)
		}
	}
	return nil
}

func (r Request) timeout(cfg Config) time.Duration {
	switch {
	case r.Timeout > 0:
		return r.Timeout
	case cfg.Timeout > 0:
		return cfg.Timeout
	default:
		return DefaultTimeout
	}
}
