package tproxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"

	"github.com/die-net/socksify/internal/proxy"
)

var errNotRedirected = errors.New("connection was not redirected")

// Server tunnels every accepted connection to its original destination.
type Server struct {
	ctx context.Context
	cfg proxy.Config

	originalDst func(net.Conn) (netip.AddrPort, error)
}

func NewServer(ctx context.Context, cfg proxy.Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{ctx: ctx, cfg: cfg, originalDst: OriginalDst}
}

// Serve accepts connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := s.handle(c); err != nil && s.cfg.Verbose {
				log.Printf("tproxy: %s: %v", c.RemoteAddr(), err)
			}
		}()
	}
}

func (s *Server) handle(conn net.Conn) error {
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	dst, err := s.originalDst(conn)
	if err != nil {
		return err
	}
	// A direct connection to the listener would otherwise dial itself.
	if local, ok := conn.LocalAddr().(*net.TCPAddr); ok && tcpAddrPort(local) == dst {
		return errNotRedirected
	}

	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", dst.String())
	if err != nil {
		return err
	}
	defer up.Close()

	if err := proxy.CopyBidirectional(ctx, conn, up); err != nil {
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	return nil
}

func tcpAddrPort(a *net.TCPAddr) netip.AddrPort {
	ap := a.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
