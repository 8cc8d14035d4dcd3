package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultResolvConf is read when no nameserver is configured.
const DefaultResolvConf = "/etc/resolv.conf"

// DNSLookup sends queries straight to one nameserver, bypassing the host
// resolver and /etc/hosts.
type DNSLookup struct {
	server string
	client *dns.Client
}

// NewDNSLookup creates a lookup against server ("host" or "host:port").
// An empty server selects the first nameserver of /etc/resolv.conf.
func NewDNSLookup(server string) (*DNSLookup, error) {
	if server == "" {
		cc, err := dns.ClientConfigFromFile(DefaultResolvConf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", DefaultResolvConf, err)
		}
		if len(cc.Servers) == 0 {
			return nil, fmt.Errorf("no nameserver in %s", DefaultResolvConf)
		}
		server = net.JoinHostPort(cc.Servers[0], cc.Port)
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	return &DNSLookup{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: 2 * time.Second},
	}, nil
}

// Server returns the nameserver address queries are sent to.
func (l *DNSLookup) Server() string {
	return l.server
}

// LookupHost implements Lookup. A records are returned before AAAA records.
func (l *DNSLookup) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	var addrs []netip.Addr
	var errs []error

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		answers, err := l.query(ctx, dns.Fqdn(host), qtype)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, rr := range answers {
			var ip net.IP
			switch rec := rr.(type) {
			case *dns.A:
				ip = rec.A
			case *dns.AAAA:
				ip = rec.AAAA
			default:
				continue
			}
			if a, ok := netip.AddrFromSlice(ip); ok {
				addrs = append(addrs, a.Unmap())
			}
		}
	}

	if len(addrs) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, fmt.Errorf("no such host: %s", host)
	}
	return addrs, nil
}

// LookupAddr implements Lookup using PTR queries.
func (l *DNSLookup) LookupAddr(ctx context.Context, addr netip.Addr) ([]string, error) {
	rev, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return nil, err
	}
	answers, err := l.query(ctx, rev, dns.TypePTR)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, rr := range answers {
		if ptr, ok := rr.(*dns.PTR); ok {
			names = append(names, strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no PTR record for %s", addr)
	}
	return names, nil
}

func (l *DNSLookup) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.RecursionDesired = true

	resp, _, err := l.client.ExchangeContext(ctx, m, l.server)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", dns.TypeToString[qtype], name, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("query %s %s: %s", dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
	}
	return resp.Answer, nil
}
