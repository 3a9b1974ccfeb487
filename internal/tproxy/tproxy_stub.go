//go:build !linux

package tproxy

import (
	"context"
	"errors"
	"net"
	"net/netip"
)

const IsSupported = false

var errUnsupported = errors.New("transparent proxy is only supported on linux")

func ListenTransparentTCP(_ context.Context, _ string, _ net.KeepAliveConfig) (net.Listener, error) {
	return nil, errUnsupported
}

func OriginalDst(_ net.Conn) (netip.AddrPort, error) {
	return netip.AddrPort{}, errUnsupported
}
