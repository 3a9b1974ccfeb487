// Package request issues a single HTTP or HTTPS request over a connection
// established by the dialer package and collects the whole response.
package request

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/die-net/socksify/internal/dialer"
	"github.com/die-net/socksify/internal/socks4"
)

// DefaultTimeout bounds the HTTP exchange when Options.RequestTimeout is
// unset.
const DefaultTimeout = 5 * time.Second

var errConnUsed = errors.New("connection already used")

// Options configures Do.
type Options struct {
	// Method defaults to GET.
	Method string
	Header http.Header
	Body   string

	// ProxyHost and ProxyPort select a SOCKS4/4a proxy. Both must be set.
	ProxyHost string
	ProxyPort uint16

	// ResolveLocally sends plain SOCKS4 with a locally resolved address.
	ResolveLocally bool

	// ConnectTimeout bounds establishing the connection. Zero uses
	// Config.Timeout or the dialer default.
	ConnectTimeout time.Duration

	// RequestTimeout bounds the HTTP exchange once connected.
	RequestTimeout time.Duration

	Config dialer.Config
}

// Response is a complete HTTP response.
type Response struct {
	Code   int
	Header http.Header
	Body   string

	// TLS is set for https URLs.
	TLS *tls.ConnectionState
}

// Do sends one request to rawURL and returns the response with its body read
// in full.
//
// The connection is established with dialer.Establish for the URL's host and
// port, TLS-upgraded for https URLs, and handed to an http.Transport that
// never dials on its own. The connect and request timeouts are independent.
// Redirects are not followed.
func Do(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("request: invalid url: %w", err)
	}

	var secure dialer.SecureMode
	switch strings.ToLower(u.Scheme) {
	case "http":
		secure = dialer.SecureOff
	case "https":
		secure = dialer.SecureOn
	default:
		return nil, fmt.Errorf("request: unsupported scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, errors.New("request: missing host")
	}
	port, err := urlPort(u, secure)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	conn, err := dialer.Establish(ctx, opts.Config, dialer.Request{
		Host:           host,
		Port:           port,
		ProxyHost:      opts.ProxyHost,
		ProxyPort:      opts.ProxyPort,
		Secure:         secure,
		ResolveLocally: opts.ResolveLocally,
		Timeout:        opts.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	f := &connFactory{conn: conn}
	defer f.close()

	return roundTrip(ctx, u, opts, f)
}

func roundTrip(ctx context.Context, u *url.URL, opts Options, f *connFactory) (*Response, error) {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != "" {
		body = strings.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	t := &http.Transport{
		DialContext:       f.DialContext,
		DialTLSContext:    f.DialTLSContext,
		DisableKeepAlives: true,
	}
	defer t.CloseIdleConnections()

	resp, err := t.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", deadlineError(ctx, err))
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("request: read body: %w", deadlineError(ctx, err))
	}

	return &Response{
		Code:   resp.StatusCode,
		Header: resp.Header,
		Body:   string(b),
		TLS:    resp.TLS,
	}, nil
}

func urlPort(u *url.URL, secure dialer.SecureMode) (uint16, error) {
	if p := u.Port(); p != "" {
		return socks4.ParsePort(p)
	}
	if secure == dialer.SecureOn {
		return 443, nil
	}
	return 80, nil
}

func deadlineError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return dialer.ErrRequestTimeout
	}
	return err
}

// connFactory hands its pre-established connection to the first dial and
// refuses any further dials.
type connFactory struct {
	mu   sync.Mutex
	conn net.Conn
}

func (f *connFactory) DialContext(_ context.Context, _, _ string) (net.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return nil, errConnUsed
	}
	c := f.conn
	f.conn = nil
	return c, nil
}

// DialTLSContext hands out the TLS layer itself, so that http.Transport
// records its state in Response.TLS.
func (f *connFactory) DialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	c, err := f.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if dc, ok := c.(*dialer.Conn); ok && dc.Secure() {
		return dc.Conn, nil
	}
	return c, nil
}

// close closes the connection if it was never handed out.
func (f *connFactory) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}
