package dialer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"github.com/die-net/socksify/internal/socks4"
)

// Establish opens a connection described by req and returns it once the
// proxy handshake and any TLS upgrade have completed.
//
// Dialing, the handshake and the upgrade share one deadline. If it expires
// first, the socket is closed and the error wraps ErrRequestTimeout; a
// handshake that completes after that point is discarded. Proxy answers are
// reported as ErrProtocolViolation or ErrRequestRejected, transport failures
// as *ConnectionError. Nothing is retried.
func Establish(ctx context.Context, cfg Config, req Request) (*Conn, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("establish %s: %w", req.Destination(), err)
	}

	c, err := establish(ctx, cfg, req)
	if err != nil {
		return nil, fmt.Errorf("establish %s: %w", req.Destination(), err)
	}
	return c, nil
}

func establish(ctx context.Context, cfg Config, req Request) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout(cfg))
	defer cancel()

	if req.Proxied() && req.ResolveLocally {
		ip, err := cfg.resolver().LookupIPv4(ctx, req.Host)
		if err != nil {
			if ctx.Err() != nil {
				return nil, contextError(ctx)
			}
			return nil, &ConnectionError{Addr: req.Host, Err: err}
		}
		req.Host = ip.String()
	}

	target := req.DialTarget()
	conn, err := dialHop(ctx, cfg, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, contextError(ctx)
		}
		return nil, &ConnectionError{Addr: target.String(), Err: err}
	}

	// Whichever of the deadline and the handshake finishes first decides the
	// outcome. A fired deadline closes the socket, which also unblocks any
	// read or TLS handshake still in flight.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	c, err := handshake(ctx, cfg, req, conn)
	if !stop() {
		return nil, contextError(ctx)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// handshake runs the proxy handshake, when proxied, and the TLS upgrade, when
// secure, over conn.
func handshake(ctx context.Context, cfg Config, req Request, conn net.Conn) (*Conn, error) {
	c := &Conn{Conn: conn}

	if req.Proxied() {
		if err := socks4.ClientConnect(conn, req.Host, req.Port); err != nil {
			if errors.Is(err, ErrProtocolViolation) || errors.Is(err, ErrRequestRejected) {
				return nil, err
			}
			return nil, &ConnectionError{Addr: req.DialTarget().String(), Err: err}
		}
		c.proxied = true
	}

	if req.IsSecure() {
		tc := tls.Client(conn, cfg.tlsConfig(req.Host))
		if err := tc.HandshakeContext(ctx); err != nil {
			return nil, &ConnectionError{Addr: req.Destination().String(), Err: fmt.Errorf("tls handshake: %w", err)}
		}
		c.Conn = tc
		c.secure = true
	}

	return c, nil
}
