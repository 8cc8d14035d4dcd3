// Package resolve turns host, address and network tokens from the
// configuration into version-tagged addresses.
//
// Resolution order for a token, first success wins:
//
//  1. literal IP address
//  2. CIDR network
//  3. forward name lookup, first returned address
//
// Reverse lookups are only used to label rule comments and never fail:
// the raw address is used when no name is found.
package resolve

import (
	"net/netip"
)

// Address is a resolved IP address or network. The zero value is invalid.
type Address struct {
	prefix  netip.Prefix
	network bool
}

// HostAddress returns the Address of a single host.
func HostAddress(ip netip.Addr) Address {
	ip = ip.WithZone("")
	return Address{prefix: netip.PrefixFrom(ip, ip.BitLen())}
}

// NetworkAddress returns the Address of a network; host bits are cleared.
func NetworkAddress(p netip.Prefix) Address {
	return Address{prefix: p.Masked(), network: true}
}

// MustParse parses a literal address or CIDR and panics on failure.
// Intended for tests and constant tables.
func MustParse(s string) Address {
	if ip, err := netip.ParseAddr(s); err == nil {
		return HostAddress(ip)
	}
	return NetworkAddress(netip.MustParsePrefix(s))
}

// IsValid reports whether a is a resolved address.
func (a Address) IsValid() bool {
	return a.prefix.IsValid()
}

// Version returns 4 or 6, or 0 for the zero Address.
func (a Address) Version() int {
	switch {
	case !a.IsValid():
		return 0
	case a.prefix.Addr().Is4():
		return 4
	default:
		return 6
	}
}

// IsNetwork reports whether the token denoted a network rather than a host.
func (a Address) IsNetwork() bool {
	return a.network
}

// Addr returns the host address, or the network address for networks.
func (a Address) Addr() netip.Addr {
	return a.prefix.Addr()
}

// Prefix returns the address as a prefix (/32 or /128 for hosts).
func (a Address) Prefix() netip.Prefix {
	return a.prefix
}

// String returns the form iptables expects after --src/--dst.
func (a Address) String() string {
	if !a.IsValid() {
		return ""
	}
	if a.network {
		return a.prefix.String()
	}
	return a.prefix.Addr().String()
}
