package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/die-net/socksify/internal/socks4"
)

// DefaultProxyPort is used when a proxy URL has no port.
const DefaultProxyPort = "1080"

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Upstream is a parsed upstream URL.
type Upstream struct {
	// Proxy is nil for direct connections.
	Proxy *Target

	// ResolveLocally is set for socks4:// upstreams.
	ResolveLocally bool
}

// ParseUpstream parses an upstream URL.
//
// Supported schemes:
//   - direct://
//   - socks4://host[:port] (destination hostnames are resolved locally)
//   - socks4a://host[:port] (hostnames are resolved by the proxy)
//
// The port defaults to 1080.
func ParseUpstream(upstream string) (Upstream, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return Upstream{}, fmt.Errorf("invalid url: %w", err)
	}
	return upstreamFromURL(u)
}

func upstreamFromURL(u *url.URL) (Upstream, error) {
	scheme := strings.ToLower(u.Scheme)

	if u.Path != "" && u.Path != "/" {
		return Upstream{}, errors.New("invalid url: path should be empty")
	}

	switch scheme {
	case "":
		return Upstream{}, errors.New("invalid url: missing scheme")
	case "direct":
		return Upstream{}, nil
	case "socks4", "socks4a":
		host := u.Hostname()
		if host == "" {
			return Upstream{}, errors.New("invalid url: missing host")
		}
		if u.User != nil {
			return Upstream{}, errors.New("invalid url: socks4 proxies do not take credentials")
		}

		portStr := u.Port()
		if portStr == "" {
			portStr = DefaultProxyPort
		}
		port, err := socks4.ParsePort(portStr)
		if err != nil {
			return Upstream{}, fmt.Errorf("invalid url: %w", err)
		}
		if port == 0 {
			return Upstream{}, errors.New("invalid url: port 0")
		}

		return Upstream{
			Proxy:          &Target{Host: host, Port: port},
			ResolveLocally: scheme == "socks4",
		}, nil
	default:
		return Upstream{}, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
}

// New parses upstream and constructs a TunnelDialer for it.
func New(cfg Config, upstream string) (*TunnelDialer, error) {
	up, err := ParseUpstream(upstream)
	if err != nil {
		return nil, err
	}
	return NewTunnelDialer(cfg, up), nil
}
