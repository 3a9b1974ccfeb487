// Package dialer establishes outbound TCP connections for socksify, either
// directly or tunneled through a SOCKS4/SOCKS4a proxy, optionally upgraded to
// TLS once the tunnel is up.
//
// [Establish] is the core: it dials the first hop, runs the proxy handshake
// and the TLS upgrade under a single deadline, and hands the connection to
// the caller. [TunnelDialer] wraps it in the DialContext shape expected by
// net/http, golang.org/x/net/proxy and the local proxy listeners.
package dialer
