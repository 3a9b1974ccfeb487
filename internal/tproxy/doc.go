// Package tproxy accepts TCP connections redirected to a local listener by
// the kernel and tunnels each one to its original destination through a
// dialer.
//
// On Linux the listener sets IP_TRANSPARENT, so it works with both iptables
// REDIRECT rules (destination read back with SO_ORIGINAL_DST) and TPROXY rules
// (destination preserved as the socket's local address). Other platforms get
// stubs that return errors.
package tproxy
