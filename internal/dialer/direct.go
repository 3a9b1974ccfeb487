package dialer

import (
	"context"
	"net"
	"net/netip"

	"golang.org/x/net/proxy"
)

// dialHop opens the TCP connection to the first hop: the proxy, or the
// destination itself when no proxy is configured.
func dialHop(ctx context.Context, cfg Config, target Target) (net.Conn, error) {
	addr := target.String()

	if cfg.Forward != nil {
		return dialForward(ctx, cfg.Forward, addr)
	}

	if _, err := netip.ParseAddr(target.Host); err != nil && cfg.Resolver != nil {
		ip, err := cfg.Resolver.LookupIPv4(ctx, target.Host)
		if err != nil {
			return nil, err
		}
		addr = netip.AddrPortFrom(ip, target.Port).String()
	}

	d := net.Dialer{KeepAliveConfig: cfg.KeepAlive}
	return d.DialContext(ctx, "tcp", addr)
}

// dialForward dials through fwd. Dialers without DialContext are raced
// against ctx; a connection that arrives after ctx is done is closed.
func dialForward(ctx context.Context, fwd proxy.Dialer, addr string) (net.Conn, error) {
	if cd, ok := fwd.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := fwd.Dial("tcp", addr)
		ch <- result{conn: c, err: err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
