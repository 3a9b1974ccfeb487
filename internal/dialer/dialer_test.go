package dialer

import (
	"context"
	"net/url"
	"testing"
	"time"

	"golang.org/x/net/proxy"

	"github.com/die-net/socksify/internal/testutil"
)

func TestParseUpstream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		upstream  string
		wantProxy string
		wantLocal bool
		wantErr   bool
	}{
		{
			name:     "direct",
			upstream: "direct://",
		},
		{
			name:      "socks4a default port",
			upstream:  "socks4a://proxy.example",
			wantProxy: "proxy.example:1080",
		},
		{
			name:      "socks4 resolves locally",
			upstream:  "socks4://proxy.example:9050",
			wantProxy: "proxy.example:9050",
			wantLocal: true,
		},
		{
			name:      "scheme case-insensitive",
			upstream:  "SOCKS4a://127.0.0.1:8081",
			wantProxy: "127.0.0.1:8081",
		},
		{
			name:     "leading/trailing spaces are invalid",
			upstream: "  socks4a://proxy.example:1080 ",
			wantErr:  true,
		},
		{
			name:     "socks5 unsupported",
			upstream: "socks5://proxy.example",
			wantErr:  true,
		},
		{
			name:     "missing scheme",
			upstream: "proxy.example:1080",
			wantErr:  true,
		},
		{
			name:     "missing host",
			upstream: "socks4a://",
			wantErr:  true,
		},
		{
			name:     "non-empty path",
			upstream: "socks4a://proxy.example/foo",
			wantErr:  true,
		},
		{
			name:     "credentials",
			upstream: "socks4a://user@proxy.example",
			wantErr:  true,
		},
		{
			name:     "port out of range",
			upstream: "socks4a://proxy.example:65536",
			wantErr:  true,
		},
		{
			name:     "port zero",
			upstream: "socks4a://proxy.example:0",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			up, err := ParseUpstream(tt.upstream)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			var gotProxy string
			if up.Proxy != nil {
				gotProxy = up.Proxy.String()
			}
			if gotProxy != tt.wantProxy {
				t.Fatalf("proxy=%q want %q", gotProxy, tt.wantProxy)
			}
			if up.ResolveLocally != tt.wantLocal {
				t.Fatalf("resolveLocally=%v want %v", up.ResolveLocally, tt.wantLocal)
			}
		})
	}
}

func TestTunnelDialerDialContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(ctx, t)
	p := testutil.StartSOCKS4Proxy(ctx, t)

	d, err := New(Config{Timeout: 2 * time.Second}, "socks4a://"+p.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	if d.ProxyAddr() != p.Addr().String() {
		t.Fatalf("proxy addr %q", d.ProxyAddr())
	}

	c, err := d.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	testutil.AssertEcho(t, c, c, []byte("hello"))

	if _, err := d.DialContext(ctx, "udp", echoLn.Addr().String()); err == nil {
		t.Fatal("expected error for udp")
	}
	if _, err := d.DialContext(ctx, "tcp", "no-port"); err == nil {
		t.Fatal("expected error for missing port")
	}
}

func TestTunnelDialerDirect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(ctx, t)

	d, err := New(Config{}, "direct://")
	if err != nil {
		t.Fatal(err)
	}
	if d.ProxyAddr() != "" {
		t.Fatalf("proxy addr %q", d.ProxyAddr())
	}

	c, err := d.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	testutil.AssertEcho(t, c, c, []byte("hello"))
}

func TestProxyFromURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(ctx, t)
	p := testutil.StartSOCKS4Proxy(ctx, t)

	u, err := url.Parse("socks4a://" + p.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	pd, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		t.Fatal(err)
	}

	cd, ok := pd.(proxy.ContextDialer)
	if !ok {
		t.Fatalf("%T is not a proxy.ContextDialer", pd)
	}
	c, err := cd.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	testutil.AssertEcho(t, c, c, []byte("hello"))
	if n := len(p.Requests()); n != 1 {
		t.Fatalf("proxy saw %d requests", n)
	}
}
