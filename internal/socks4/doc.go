// Package socks4 implements the SOCKS4 and SOCKS4a wire format used by
// socksify.
//
// The client side encodes CONNECT requests and decides the proxy's reply from
// however many reads it takes to arrive. The server side is deliberately
// small: it parses CONNECT requests and writes fixed-size replies, which is
// enough for the local SOCKS4 listener and for test proxies.
package socks4
