package firewall

import (
	"grimm.is/ptables/internal/resolve"
)

// Exemption is a "do not log" entry: traffic it matches is dropped silently
// before it reaches the chain's LOG rule. Every match field is optional.
type Exemption struct {
	Chain       string
	Service     string
	Interface   string
	Protocol    string
	Source      resolve.Address
	Destination resolve.Address
	SourcePort  string
	DestPort    string
}

// AppliesTo reports whether the exemption may be installed on the v backend.
// Exemptions without addresses apply to both versions.
func (e Exemption) AppliesTo(v IPVersion) bool {
	return appliesTo(v, e.Source, e.Destination)
}
