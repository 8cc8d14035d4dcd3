package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ErrUnresolved is returned when a token is neither an address, a network
// nor a name that resolves.
var ErrUnresolved = errors.New("could not determine ip address")

// Lookup performs name service queries.
type Lookup interface {
	// LookupHost returns the addresses of host.
	LookupHost(ctx context.Context, host string) ([]netip.Addr, error)
	// LookupAddr returns the names pointing at addr.
	LookupAddr(ctx context.Context, addr netip.Addr) ([]string, error)
}

// Resolver resolves configuration tokens. It does no caching and no retries.
type Resolver struct {
	lookup Lookup
}

// New creates a Resolver. A nil lookup uses the host resolver.
func New(lookup Lookup) *Resolver {
	if lookup == nil {
		lookup = SystemLookup{}
	}
	return &Resolver{lookup: lookup}
}

// Resolve turns token into an Address. Errors wrap ErrUnresolved.
func (r *Resolver) Resolve(ctx context.Context, token string) (Address, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Address{}, fmt.Errorf("%w: empty token", ErrUnresolved)
	}

	if ip, err := netip.ParseAddr(token); err == nil {
		return HostAddress(ip), nil
	}

	if p, err := netip.ParsePrefix(token); err == nil {
		return NetworkAddress(p), nil
	}

	addrs, err := r.lookup.LookupHost(ctx, token)
	if err != nil {
		return Address{}, fmt.Errorf("%w for %s: %v", ErrUnresolved, token, err)
	}
	for _, ip := range addrs {
		if ip.IsValid() {
			return HostAddress(ip.Unmap()), nil
		}
	}
	return Address{}, fmt.Errorf("%w for %s: no addresses", ErrUnresolved, token)
}

// Name returns the reverse name of a host address for use in comments.
// Networks, lookup failures and empty answers fall back to the raw address.
func (r *Resolver) Name(ctx context.Context, a Address) string {
	if !a.IsValid() || a.IsNetwork() {
		return a.String()
	}
	names, err := r.lookup.LookupAddr(ctx, a.Addr())
	if err != nil || len(names) == 0 {
		return a.String()
	}
	name := strings.TrimSuffix(names[0], ".")
	if name == "" {
		return a.String()
	}
	return name
}
