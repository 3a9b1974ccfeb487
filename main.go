package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksify/internal/dialer"
	"github.com/die-net/socksify/internal/proxy"
	"github.com/die-net/socksify/internal/request"
	"github.com/die-net/socksify/internal/resolve"
	"github.com/die-net/socksify/internal/tproxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		httpListen   = pflag.String("http-listen", "", "HTTP proxy listen address (e.g. 127.0.0.1:8080). Empty disables.")
		socks4Listen = pflag.String("socks4-listen", "", "SOCKS4/4a proxy listen address (e.g. 127.0.0.1:1081). Empty disables.")
		tproxyListen = pflag.String("tproxy-listen", "", "Transparent proxy listen address (e.g. 127.0.0.1:1234). Empty disables.")

		upstream = pflag.String("upstream", defaultUpstream(), "Upstream URL: direct:// | socks4://host[:port] | socks4a://host[:port]")

		method  = pflag.String("method", http.MethodGet, "HTTP method when fetching a URL")
		data    = pflag.String("data", "", "Request body when fetching a URL")
		headers = pflag.StringArray("header", nil, "Request header 'Name: value' when fetching a URL (repeatable)")

		debugListen        = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		connectTimeout     = pflag.Duration("connect-timeout", dialer.DefaultTimeout, "Timeout for dialing, the SOCKS4 handshake and the TLS upgrade")
		requestTimeout     = pflag.Duration("request-timeout", request.DefaultTimeout, "Timeout for the HTTP exchange once connected")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for local clients to finish protocol negotiation")
		httpIdleTimeout    = pflag.Duration("http-idle-timeout", 4*time.Minute, "Timeout for idle HTTP proxy connections")
		dnsServer          = pflag.String("dns-server", "", "DNS server (host[:port]) for resolving dial targets and socks4:// destinations. Empty uses the system resolver.")
		insecure           = pflag.Bool("insecure", false, "Skip TLS certificate verification")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		verbose            = pflag.Bool("verbose", false, "Enable per-connection error logging")
	)

	if !tproxy.IsSupported {
		_ = pflag.CommandLine.MarkHidden("tproxy-listen")
	}

	pflag.CommandLine.SortFlags = false
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] URL\n       %s [flags] --http-listen ADDR | --socks4-listen ADDR | --tproxy-listen ADDR\n\n", os.Args[0], os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	dialCfg := dialer.Config{
		Timeout:   *connectTimeout,
		KeepAlive: ka,
	}
	if *dnsServer != "" {
		r, err := resolve.NewDNS(*dnsServer, *connectTimeout)
		if err != nil {
			return fmt.Errorf("invalid --dns-server: %w", err)
		}
		dialCfg.Resolver = r
	}
	if *insecure {
		dialCfg.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // Requested with --insecure.
	}

	serving := *httpListen != "" || *socks4Listen != "" || *tproxyListen != ""
	switch {
	case serving && pflag.NArg() > 0:
		return errors.New("a URL cannot be combined with a listener")
	case !serving && pflag.NArg() != 1:
		pflag.Usage()
		return errors.New("expected exactly one URL, or a listener")
	}

	if !serving {
		up, err := dialer.ParseUpstream(*upstream)
		if err != nil {
			return fmt.Errorf("invalid --upstream: %w", err)
		}
		hdr, err := parseHeaders(*headers)
		if err != nil {
			return fmt.Errorf("invalid --header: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := request.Options{
			Method:         *method,
			Header:         hdr,
			Body:           *data,
			ConnectTimeout: *connectTimeout,
			RequestTimeout: *requestTimeout,
			Config:         dialCfg,
		}
		if up.Proxy != nil {
			opts.ProxyHost = up.Proxy.Host
			opts.ProxyPort = up.Proxy.Port
			opts.ResolveLocally = up.ResolveLocally
		}
		return fetch(ctx, os.Stdout, pflag.Arg(0), opts, *verbose)
	}

	cfg := proxy.Config{
		NegotiationTimeout: *negotiationTimeout,
		HTTPIdleTimeout:    *httpIdleTimeout,
		KeepAlive:          ka,
		Verbose:            *verbose,
	}
	cfg.Dialer, err = dialer.New(dialCfg, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		debugLn, err := proxy.ListenTCP(ctx, *debugListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		log.Printf("debug listening on %s", *debugListen)
	}

	if *httpListen != "" {
		ln, err := proxy.ListenTCP(ctx, *httpListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		srv := proxy.NewHTTPProxyServer(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = srv.Close()
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil {
				return fmt.Errorf("http proxy serve: %w", err)
			}
			return nil
		})
		log.Printf("http proxy listening on %s", *httpListen)
	}

	if *socks4Listen != "" {
		ln, err := proxy.ListenTCP(ctx, *socks4Listen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("socks4 listen: %w", err)
		}
		s4 := proxy.NewSOCKS4Server(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := s4.Serve(ln); err != nil {
				return fmt.Errorf("socks4 serve: %w", err)
			}
			return nil
		})
		log.Printf("socks4 proxy listening on %s", *socks4Listen)
	}

	if *tproxyListen != "" {
		ln, err := tproxy.ListenTransparentTCP(ctx, *tproxyListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("tproxy listen: %w", err)
		}
		tsrv := tproxy.NewServer(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := tsrv.Serve(ln); err != nil {
				return fmt.Errorf("tproxy serve: %w", err)
			}
			return nil
		})
		log.Printf("tproxy listening on %s", *tproxyListen)
	}

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	log.Print("shutting down")
	return err
}

// fetch performs a single request and copies the response body to w.
func fetch(ctx context.Context, w io.Writer, rawURL string, opts request.Options, verbose bool) error {
	resp, err := request.Do(ctx, rawURL, opts)
	if err != nil {
		return err
	}
	if verbose {
		log.Printf("%s %s: %d %s", opts.Method, rawURL, resp.Code, http.StatusText(resp.Code))
	}
	_, err = io.WriteString(w, resp.Body)
	return err
}

func parseHeaders(lines []string) (http.Header, error) {
	h := make(http.Header)
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected 'Name: value', got %q", line)
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return net.KeepAliveConfig{}, errors.New("empty")
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveInt(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveInt(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     time.Duration(keepIdle) * time.Second,
		Interval: time.Duration(keepIntvl) * time.Second,
		Count:    keepCnt,
	}, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream() string {
	for _, k := range []string{"ALL_PROXY", "all_proxy"} {
		if p := os.Getenv(k); p != "" {
			return p
		}
	}
	return "direct://"
}
