//go:build linux

package tproxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// IsSupported is true on platforms with a transparent listener.
const IsSupported = true

// ListenTransparentTCP listens on addr with IP_TRANSPARENT set. Firewall
// rules that steer traffic to addr are still required.
func ListenTransparentTCP(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{
		KeepAliveConfig: ka,
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	ln, err := lc.Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tproxy %s: %w", addr, err)
	}
	return ln, nil
}

// OriginalDst returns where a redirected connection was headed. Connections
// without a NAT record, which includes TPROXY, report their local address.
func OriginalDst(c net.Conn) (netip.AddrPort, error) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("original destination: unsupported conn %T", c)
	}
	rc, err := tc.SyscallConn()
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("original destination: %w", err)
	}

	var (
		mreq   *unix.IPv6Mreq
		optErr error
	)
	if err := rc.Control(func(fd uintptr) {
		// The kernel fills a sockaddr_in, which fits in an IPv6Mreq.
		mreq, optErr = unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, unix.SO_ORIGINAL_DST)
	}); err != nil {
		return netip.AddrPort{}, fmt.Errorf("original destination: %w", err)
	}

	if optErr != nil {
		local, ok := c.LocalAddr().(*net.TCPAddr)
		if !ok {
			return netip.AddrPort{}, fmt.Errorf("original destination: %w", optErr)
		}
		return tcpAddrPort(local), nil
	}

	raw := mreq.Multiaddr
	port := binary.BigEndian.Uint16(raw[2:4])
	ip := netip.AddrFrom4([4]byte{raw[4], raw[5], raw[6], raw[7]})
	return netip.AddrPortFrom(ip, port), nil
}
