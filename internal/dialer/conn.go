package dialer

import (
	"crypto/tls"
	"errors"
	"net"
)

// Conn is an established connection. Callers use it as a net.Conn; Secure
// and Proxied report how it was built.
type Conn struct {
	net.Conn

	secure  bool
	proxied bool
}

// Secure reports whether a TLS layer wraps the transport.
func (c *Conn) Secure() bool {
	return c.secure
}

// Proxied reports whether the transport is tunneled through a proxy.
func (c *Conn) Proxied() bool {
	return c.proxied
}

// ConnectionState returns the TLS state of a secure connection.
func (c *Conn) ConnectionState() (tls.ConnectionState, bool) {
	tc, ok := c.Conn.(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, false
	}
	return tc.ConnectionState(), true
}

// CloseWrite shuts down the writing side when the transport supports it.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return errors.ErrUnsupported
}
