package firewall

import (
	"fmt"

	"grimm.is/ptables/internal/brand"
)

// IPVersion selects the packet filter a Backend drives.
type IPVersion int

const (
	IPv4 IPVersion = 4
	IPv6 IPVersion = 6
)

// Versions lists the supported versions in the order they are processed.
var Versions = []IPVersion{IPv4, IPv6}

// Command returns the firewall binary for the version.
func (v IPVersion) Command() string {
	if v == IPv6 {
		return brand.IPv6Command
	}
	return brand.IPv4Command
}

// String returns "ipv4" or "ipv6".
func (v IPVersion) String() string {
	switch v {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	}
	return fmt.Sprintf("ipv%d", int(v))
}
