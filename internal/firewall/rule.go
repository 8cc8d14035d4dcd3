package firewall

import (
	"errors"
	"fmt"
	"strings"

	"grimm.is/ptables/internal/resolve"
)

// ErrUnderSpecified is returned for a rule that would match on chain and
// action alone.
var ErrUnderSpecified = errors.New("at least one of protocol, interface, source, destination, sport, dport must be set")

// ErrWrongVersion is returned when a rule or exemption carries an address of
// another IP version than the backend it is handed to.
var ErrWrongVersion = errors.New("address does not match the backend ip version")

// Rule is one intended filter-table entry for a service.
// Build it with NewRule; the zero value is not a valid rule.
type Rule struct {
	Name        string // service label used in comments
	Chain       string
	Action      string
	Protocol    string
	Interface   string
	Source      resolve.Address
	Destination resolve.Address
	SourcePort  string
	DestPort    string
	Remote      string // overrides the remote name in comments
}

// NewRule normalizes chain and action to upper case and checks that the rule
// matches on something besides its chain.
func NewRule(r Rule) (Rule, error) {
	r.Chain = strings.ToUpper(strings.TrimSpace(r.Chain))
	r.Action = strings.ToUpper(strings.TrimSpace(r.Action))
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate reports construction errors.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule without a service name")
	}
	if r.Chain == "" {
		return fmt.Errorf("section %s: no chain", r.Name)
	}
	if r.Action == "" {
		return fmt.Errorf("section %s: no action", r.Name)
	}
	if r.Protocol == "" && r.Interface == "" && !r.Source.IsValid() && !r.Destination.IsValid() &&
		r.SourcePort == "" && r.DestPort == "" {
		return fmt.Errorf("section %s: %w", r.Name, ErrUnderSpecified)
	}
	return nil
}

// Version returns the IP version implied by the rule's addresses: 0 when the
// rule has no address, -1 when source and destination disagree.
func (r Rule) Version() int {
	return addressVersion(r.Source, r.Destination)
}

// AppliesTo reports whether every address on the rule belongs to v.
func (r Rule) AppliesTo(v IPVersion) bool {
	return appliesTo(v, r.Source, r.Destination)
}

func addressVersion(addrs ...resolve.Address) int {
	version := 0
	for _, a := range addrs {
		if !a.IsValid() {
			continue
		}
		if version != 0 && version != a.Version() {
			return -1
		}
		version = a.Version()
	}
	return version
}

func appliesTo(v IPVersion, addrs ...resolve.Address) bool {
	for _, a := range addrs {
		if a.IsValid() && a.Version() != int(v) {
			return false
		}
	}
	return true
}
