package resolve

import (
	"context"
	"net"
	"net/netip"
)

// SystemLookup queries the host resolver (nsswitch, /etc/hosts, resolv.conf).
type SystemLookup struct {
	Resolver *net.Resolver
}

func (l SystemLookup) resolver() *net.Resolver {
	if l.Resolver != nil {
		return l.Resolver
	}
	return net.DefaultResolver
}

// LookupHost implements Lookup.
func (l SystemLookup) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	return l.resolver().LookupNetIP(ctx, "ip", host)
}

// LookupAddr implements Lookup.
func (l SystemLookup) LookupAddr(ctx context.Context, addr netip.Addr) ([]string, error) {
	return l.resolver().LookupAddr(ctx, addr.String())
}

// StaticLookup answers from fixed tables and never touches the network.
// Unknown names and addresses fail. The zero value resolves nothing, which is
// what `check --offline` uses.
type StaticLookup struct {
	Hosts map[string][]netip.Addr
	Names map[netip.Addr][]string
}

// LookupHost implements Lookup.
func (l StaticLookup) LookupHost(_ context.Context, host string) ([]netip.Addr, error) {
	if addrs, ok := l.Hosts[host]; ok && len(addrs) > 0 {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

// LookupAddr implements Lookup.
func (l StaticLookup) LookupAddr(_ context.Context, addr netip.Addr) ([]string, error) {
	if names, ok := l.Names[addr]; ok && len(names) > 0 {
		return names, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: addr.String(), IsNotFound: true}
}
