package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/die-net/socksify/internal/dialer"
)

// HTTPProxyServer serves an HTTP forward proxy whose outbound connections go
// through the configured dialer.
//
// It supports:
// - HTTP CONNECT tunneling (via connection hijacking + bidirectional copy)
// - non-CONNECT proxying (via httputil.ReverseProxy)
type HTTPProxyServer struct {
	ctx     context.Context
	dialer  dialer.Dialer
	verbose bool
	srv     *http.Server
	rp      *httputil.ReverseProxy
}

// NewHTTPProxyServer constructs an HTTP proxy server with the given config.
//
// Serve starts accepting connections on a listener; Close stops the underlying
// http.Server.
func NewHTTPProxyServer(ctx context.Context, cfg Config) *HTTPProxyServer {
	if ctx == nil {
		ctx = context.Background()
	}
	h := &HTTPProxyServer{ctx: ctx, dialer: cfg.Dialer, verbose: cfg.Verbose}
	h.rp = h.newReverseProxy(cfg)
	h.srv = &http.Server{
		Handler:           http.HandlerFunc(h.handle),
		ReadHeaderTimeout: cfg.NegotiationTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return h.ctx
		},
	}
	return h
}

// Serve serves HTTP proxy requests on ln.
func (s *HTTPProxyServer) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Close stops the HTTP server.
func (s *HTTPProxyServer) Close() error {
	return s.srv.Close()
}

func (s *HTTPProxyServer) handle(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Method, http.MethodConnect) {
		s.handleConnect(w, r)
		return
	}
	s.rp.ServeHTTP(w, r)
}

func (s *HTTPProxyServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	target := r.Host
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(target, "443")
	}

	// Dial before hijacking so failures can use the regular ResponseWriter.
	upConn, err := s.dialer.DialContext(r.Context(), "tcp", target)
	if err != nil {
		s.logf("http proxy: connect %s: %v", target, err)
		http.Error(w, err.Error(), statusForDialError(err))
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		_ = upConn.Close()
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, brw, err := hj.Hijack()
	if err != nil {
		_ = upConn.Close()
		http.Error(w, "hijack failed", http.StatusInternalServerError)
		return
	}

	if _, err := brw.WriteString("HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		_ = clientConn.Close()
		_ = upConn.Close()
		return
	}
	if err := brw.Flush(); err != nil {
		_ = clientConn.Close()
		_ = upConn.Close()
		return
	}

	// Bytes the client pipelined after the CONNECT request are already
	// buffered in brw.
	if n := brw.Reader.Buffered(); n > 0 {
		b, _ := brw.Reader.Peek(n)
		if _, err := upConn.Write(b); err != nil {
			_ = clientConn.Close()
			_ = upConn.Close()
			return
		}
	}

	if err := CopyBidirectional(s.ctx, clientConn, upConn); err != nil {
		s.logf("http proxy: tunnel %s: %v", target, err)
	}
}

func (s *HTTPProxyServer) logf(format string, args ...any) {
	if s.verbose {
		log.Printf(format, args...)
	}
}

// statusForDialError maps tunnel failures to a gateway status.
func statusForDialError(err error) int {
	if errors.Is(err, dialer.ErrRequestTimeout) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *HTTPProxyServer) newReverseProxy(cfg Config) *httputil.ReverseProxy {
	rewrite := func(pr *httputil.ProxyRequest) {
		out := pr.Out

		// Allow schema override through a non-standard header.
		if v := out.Header.Get("X-Proxy-Scheme"); v != "" {
			out.Header.Del("X-Proxy-Scheme")
			out.URL.Scheme = v
		} else if out.URL.Scheme == "" {
			out.URL.Scheme = "http"
		}

		if out.URL.Host == "" {
			out.URL.Host = pr.In.Host
		}
		out.Host = out.URL.Host
	}

	errHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		s.logf("http proxy: %s %s: %v", r.Method, r.URL, err)
		http.Error(w, err.Error(), statusForDialError(err))
	}

	return &httputil.ReverseProxy{
		Rewrite:       rewrite,
		Transport:     newTransport(cfg),
		FlushInterval: 10 * time.Millisecond, // Only buffer incomplete responses briefly
		ErrorHandler:  errHandler,
		BufferPool:    newBufferPool(proxyBufferSize),
	}
}

func newTransport(cfg Config) http.RoundTripper {
	return &http.Transport{
		DialContext:         cfg.Dialer.DialContext,
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     cfg.HTTPIdleTimeout,
		TLSHandshakeTimeout: cfg.NegotiationTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(0),
		},
	}
}
