package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/die-net/socksify/internal/socks4"
)

// SOCKS4Server accepts SOCKS4 and SOCKS4a CONNECT requests and forwards them
// through the configured dialer.
type SOCKS4Server struct {
	ctx context.Context
	cfg Config
}

func NewSOCKS4Server(ctx context.Context, cfg Config) *SOCKS4Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &SOCKS4Server{ctx: ctx, cfg: cfg}
}

// Serve accepts connections on ln until it is closed.
func (s *SOCKS4Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := s.handleConn(c); err != nil && s.cfg.Verbose {
				log.Printf("socks4: %s: %v", c.RemoteAddr(), err)
			}
		}()
	}
}

func (s *SOCKS4Server) handleConn(conn net.Conn) error {
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	br := bufio.NewReader(conn)
	req, err := socks4.ServerReadRequest(br)
	if err != nil {
		return err
	}
	if req.Cmd != socks4.CmdConnect {
		_ = socks4.WriteReply(conn, socks4.StatusRejected)
		return fmt.Errorf("unsupported command %#02x", req.Cmd)
	}

	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		_ = socks4.WriteReply(conn, socks4.StatusRejected)
		return err
	}
	defer up.Close()

	if err := socks4.WriteReply(conn, socks4.StatusGranted); err != nil {
		return err
	}

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}

	// A client may send data before it has read the reply.
	if n := br.Buffered(); n > 0 {
		b, _ := br.Peek(n)
		if _, err := up.Write(b); err != nil {
			return err
		}
	}

	if err := CopyBidirectional(ctx, conn, up); err != nil {
		return fmt.Errorf("copy %s: %w", req.Address(), err)
	}
	return nil
}
