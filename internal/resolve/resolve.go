// Package resolve looks up IPv4 addresses for dial targets and for plain
// SOCKS4 destinations, which must be sent to the proxy as addresses.
//
// [DNS] queries a single configured server with github.com/miekg/dns. [System]
// uses the platform resolver.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single DNS exchange when none is configured.
const DefaultTimeout = 5 * time.Second

var errNoRecords = errors.New("no A records")

// Resolver looks up a single IPv4 address for host.
type Resolver interface {
	LookupIPv4(ctx context.Context, host string) (netip.Addr, error)
}

// DNS resolves names by sending A queries to one DNS server.
//
// Concurrent lookups of the same name share a single query.
type DNS struct {
	server  string
	timeout time.Duration
	client  *dns.Client
	sf      singleflight.Group
}

// NewDNS returns a resolver querying server, given as host or host:port. Port
// 53 is used when none is given.
func NewDNS(server string, timeout time.Duration) (*DNS, error) {
	if server == "" {
		return nil, errors.New("dns resolver: missing server")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &DNS{
		server:  server,
		timeout: timeout,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
	}, nil
}

// Server returns the host:port queries are sent to.
func (r *DNS) Server() string {
	return r.server
}

// LookupIPv4 returns the first A record for host. IPv4 literals are returned
// without a query.
func (r *DNS) LookupIPv4(ctx context.Context, host string) (netip.Addr, error) {
	if ip, ok := literalIPv4(host); ok {
		return ip, nil
	}

	ch := r.sf.DoChan(host, func() (any, error) {
		// Detached from ctx so other waiters still get the answer if the
		// caller that started the query gives up.
		qctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		return r.query(qctx, host)
	})

	select {
	case <-ctx.Done():
		return netip.Addr{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return netip.Addr{}, res.Err
		}
		return res.Val.(netip.Addr), nil
	}
}

func (r *DNS) query(ctx context.Context, host string) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("lookup %s on %s: %w", host, r.server, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("lookup %s on %s: %s", host, r.server, dns.RcodeToString[in.Rcode])
	}

	for _, ans := range in.Answer {
		if a, ok := ans.(*dns.A); ok {
			if ip, ok := netip.AddrFromSlice(a.A.To4()); ok {
				return ip, nil
			}
		}
	}
	return netip.Addr{}, fmt.Errorf("lookup %s on %s: %w", host, r.server, errNoRecords)
}

type system struct{}

// System returns a Resolver backed by net.DefaultResolver.
func System() Resolver {
	return system{}
}

func (system) LookupIPv4(ctx context.Context, host string) (netip.Addr, error) {
	if ip, ok := literalIPv4(host); ok {
		return ip, nil
	}

	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("lookup %s: %w", host, err)
	}
	if len(ips) == 0 {
		return netip.Addr{}, fmt.Errorf("lookup %s: %w", host, errNoRecords)
	}
	return ips[0].Unmap(), nil
}

func literalIPv4(host string) (netip.Addr, bool) {
	ip, err := netip.ParseAddr(host)
	if err != nil || !ip.Is4() {
		return netip.Addr{}, false
	}
	return ip, true
}
