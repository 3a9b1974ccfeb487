package dialer

import (
	"net/url"

	"golang.org/x/net/proxy"
)

func init() {
	proxy.RegisterDialerType("socks4", fromURL)
	proxy.RegisterDialerType("socks4a", fromURL)
}

// fromURL lets proxy.FromURL build socks4:// and socks4a:// dialers. The
// forward dialer carries the first hop unless it is proxy.Direct.
func fromURL(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	up, err := upstreamFromURL(u)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if forward != proxy.Direct {
		cfg.Forward = forward
	}
	return NewTunnelDialer(cfg, up), nil
}
