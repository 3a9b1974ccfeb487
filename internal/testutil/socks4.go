package testutil

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/die-net/socksify/internal/socks4"
)

// SOCKS4Proxy is a forwarding SOCKS4/4a proxy for tests.
type SOCKS4Proxy struct {
	net.Listener

	mu       sync.Mutex
	requests []socks4.Request
}

// Requests returns the requests received so far.
func (p *SOCKS4Proxy) Requests() []socks4.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]socks4.Request(nil), p.requests...)
}

// StartSOCKS4Proxy serves CONNECT requests by dialing the requested address.
// SOCKS4a hostnames are resolved with the system resolver.
func StartSOCKS4Proxy(ctx context.Context, t *testing.T) *SOCKS4Proxy {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	p := &SOCKS4Proxy{Listener: ln}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go p.handle(ctx, c)
		}
	}()
	return p
}

func (p *SOCKS4Proxy) handle(ctx context.Context, c net.Conn) {
	defer c.Close()

	br := bufio.NewReader(c)
	req, err := socks4.ServerReadRequest(br)
	if err != nil {
		return
	}

	p.mu.Lock()
	p.requests = append(p.requests, *req)
	p.mu.Unlock()

	if req.Cmd != socks4.CmdConnect {
		_ = socks4.WriteReply(c, socks4.StatusRejected)
		return
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		_ = socks4.WriteReply(c, socks4.StatusRejected)
		return
	}
	defer dst.Close()

	if err := socks4.WriteReply(c, socks4.StatusGranted); err != nil {
		return
	}

	go func() {
		_, _ = io.Copy(dst, br)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)
}
