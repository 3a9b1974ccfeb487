// Package proxy implements socksify's local proxy listeners.
//
// It contains an HTTP forward proxy (CONNECT and non-CONNECT) and a SOCKS4/4a
// server. Every outbound connection goes through a dialer.Dialer, so clients
// that cannot speak SOCKS4 still reach destinations through the configured
// upstream proxy.
package proxy
