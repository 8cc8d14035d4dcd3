package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"grimm.is/ptables/internal/firewall"
)

// IgnorePrefix marks the [logging] keys listing logging exemptions; the
// rest of the key names the chain (ignore_INPUT).
const IgnorePrefix = "ignore_"

// DefaultLogLevel is the LOG target level used when [logging] sets none.
const DefaultLogLevel = 4

// Global is the [global] section.
type Global struct {
	IPv4             bool     `key:"ipv4"`
	IPv6             bool     `key:"ipv6"`
	ClosedChains     []string `key:"closed_chains" validate:"dive,chain"`
	AllowEstablished bool     `key:"allow_established_traffic"`
	AllowInterfaces  []string `key:"allow_traffic_on_interface" validate:"dive,iface"`
	DropInvalid      bool     `key:"drop_invalid_traffic"`
	SSHKnocking      bool     `key:"ssh_knocking"`
}

// Versions reports which IP versions are enabled, IPv4 first.
func (g Global) Versions() []int {
	var out []int
	if g.IPv4 {
		out = append(out, 4)
	}
	if g.IPv6 {
		out = append(out, 6)
	}
	return out
}

// Ignore is one logging exemption record.
type Ignore struct {
	Chain       string `key:"chain" validate:"chain"`
	Service     string `key:"service" validate:"omitempty,label"`
	Interface   string `key:"interface" validate:"omitempty,iface"`
	Protocol    string `key:"protocol" validate:"omitempty,proto"`
	Source      string `key:"source"`
	Destination string `key:"destination"`
	SourcePort  string `key:"sport" validate:"omitempty,port"`
	DestPort    string `key:"dport" validate:"omitempty,port"`
}

// Check rejects a record that matches on chain alone: its DROP would shadow
// every later rule of the chain.
func (ig Ignore) Check() error {
	if ig.Interface == "" && ig.Protocol == "" && ig.Source == "" && ig.Destination == "" &&
		ig.SourcePort == "" && ig.DestPort == "" {
		return fmt.Errorf("exemption %q: %w", ig.Service, firewall.ErrUnderSpecified)
	}
	return nil
}

// Logging is the [logging] section.
type Logging struct {
	Chains  []string `key:"log" validate:"dive,chain"`
	Prefix  string   `key:"prefix" validate:"omitempty,logprefix"`
	Rate    string   `key:"rate" validate:"omitempty,rate"`
	Level   int      `key:"level" validate:"loglevel"`
	Ignores []Ignore `key:"ignore" validate:"dive"`
}

// Knocking is the [ssh_knocking] section.
type Knocking struct {
	Ports     []int  `key:"ports" validate:"min=1,dive,min=1,max=65535"`
	SSHPort   int    `key:"ssh_port" validate:"min=1,max=65535"`
	Interface string `key:"interface" validate:"omitempty,iface"`
	Timeout   int    `key:"timeout" validate:"min=1"`
}

// Service is one service section.
type Service struct {
	Name         string   `key:"name" validate:"label"`
	Chain        string   `key:"chain" validate:"omitempty,chain"`
	Action       string   `key:"action" validate:"omitempty,target"`
	Protocol     string   `key:"protocol" validate:"omitempty,proto"`
	Interface    string   `key:"interface" validate:"omitempty,iface"`
	Sources      []string `key:"source"`
	Destinations []string `key:"destination"`
	SourcePort   string   `key:"sport" validate:"omitempty,port"`
	DestPort     string   `key:"dport" validate:"omitempty,port"`
	Remote       string   `key:"remote" validate:"omitempty,label"`
	IPv4         bool     `key:"ipv4"`
	IPv6         bool     `key:"ipv6"`
}

// Policy is the typed view of a Store. Reserved sections are nil when absent.
type Policy struct {
	Global   *Global
	Logging  *Logging
	Knocking *Knocking
	Services []Service

	// Skipped collects services and exemption records dropped because they
	// failed validation. They are reported, not fatal.
	Skipped error
}

// NewPolicy builds and validates the typed view. Errors in the reserved
// sections are returned; invalid services and exemption records are left
// out and collected in Skipped.
func NewPolicy(store *Store) (*Policy, error) {
	p := &Policy{}
	var skipped *multierror.Error

	if store.HasSection(SectionGlobal) {
		g, err := readGlobal(store)
		if err != nil {
			return nil, err
		}
		p.Global = g
	}

	if store.HasSection(SectionLogging) {
		l, bad, err := readLogging(store)
		if err != nil {
			return nil, err
		}
		p.Logging = l
		skipped = multierror.Append(skipped, bad...)
	}

	knockingEnabled := p.Global != nil && p.Global.SSHKnocking
	if knockingEnabled && !store.HasSection(SectionKnocking) {
		return nil, fmt.Errorf("[%s] ssh_knocking is enabled but there is no [%s] section", SectionGlobal, SectionKnocking)
	}
	if store.HasSection(SectionKnocking) && knockingEnabled {
		k, err := readKnocking(store)
		if err != nil {
			return nil, err
		}
		p.Knocking = k
	}

	for _, name := range store.ServiceSections() {
		svc, err := readService(store, name)
		if err != nil {
			skipped = multierror.Append(skipped, err)
			continue
		}
		p.Services = append(p.Services, svc)
	}

	p.Skipped = skipped.ErrorOrNil()
	return p, nil
}

type sectionReader struct {
	store   *Store
	section string
	err     *multierror.Error
}

func (r *sectionReader) get(key string) bool {
	b, err := r.store.GetBool(r.section, key, false)
	if err != nil {
		r.err = multierror.Append(r.err, err)
	}
	return b
}

func (r *sectionReader) getInt(key string, def int) int {
	n, err := r.store.GetInt(r.section, key, def)
	if err != nil {
		r.err = multierror.Append(r.err, err)
	}
	return n
}

func readGlobal(store *Store) (*Global, error) {
	r := &sectionReader{store: store, section: SectionGlobal}
	g := &Global{
		IPv4:             r.get("ipv4"),
		IPv6:             r.get("ipv6"),
		ClosedChains:     upper(store.GetList(SectionGlobal, "closed_chains")),
		AllowEstablished: r.get("allow_established_traffic"),
		AllowInterfaces:  store.GetList(SectionGlobal, "allow_traffic_on_interface"),
		DropInvalid:      r.get("drop_invalid_traffic"),
		SSHKnocking:      r.get("ssh_knocking"),
	}
	if err := r.err.ErrorOrNil(); err != nil {
		return nil, err
	}
	if err := validateStruct(SectionGlobal, g); err != nil {
		return nil, err
	}
	return g, nil
}

func readLogging(store *Store) (*Logging, []error, error) {
	r := &sectionReader{store: store, section: SectionLogging}
	l := &Logging{
		Chains: upper(store.GetList(SectionLogging, "log")),
		Prefix: store.GetString(SectionLogging, "prefix", ""),
		Rate:   store.GetString(SectionLogging, "rate", ""),
		Level:  r.getInt("level", DefaultLogLevel),
	}
	if err := r.err.ErrorOrNil(); err != nil {
		return nil, nil, err
	}

	var bad []error
	for _, key := range store.Section(SectionLogging).Keys() {
		if !strings.HasPrefix(key, IgnorePrefix) {
			continue
		}
		chain := strings.ToUpper(strings.TrimPrefix(key, IgnorePrefix))
		for i, fields := range store.GetRecords(SectionLogging, key) {
			ig, err := parseIgnore(chain, fields)
			if err == nil {
				err = ig.Check()
			}
			if err == nil {
				err = validateStruct(SectionLogging, ig)
			}
			if err != nil {
				bad = append(bad, fmt.Errorf("%s record %d: %w", key, i+1, err))
				continue
			}
			l.Ignores = append(l.Ignores, ig)
		}
	}

	if err := validateStruct(SectionLogging, l); err != nil {
		return nil, nil, err
	}
	return l, bad, nil
}

// parseIgnore maps the positional fields
// "service, interface, protocol, source, destination, sport, dport".
func parseIgnore(chain string, fields []string) (Ignore, error) {
	if len(fields) > 7 {
		return Ignore{}, fmt.Errorf("expected at most 7 fields, got %d", len(fields))
	}
	f := make([]string, 7)
	copy(f, fields)
	return Ignore{
		Chain:       chain,
		Service:     f[0],
		Interface:   f[1],
		Protocol:    strings.ToLower(f[2]),
		Source:      f[3],
		Destination: f[4],
		SourcePort:  f[5],
		DestPort:    f[6],
	}, nil
}

func readKnocking(store *Store) (*Knocking, error) {
	r := &sectionReader{store: store, section: SectionKnocking}
	k := &Knocking{
		SSHPort:   r.getInt("ssh_port", 22),
		Interface: store.GetString(SectionKnocking, "interface", ""),
		Timeout:   r.getInt("timeout", 30),
	}
	for _, p := range store.GetList(SectionKnocking, "ports") {
		n, err := strconv.Atoi(p)
		if err != nil {
			r.err = multierror.Append(r.err, fmt.Errorf("[%s] ports: not a port number: %q", SectionKnocking, p))
			continue
		}
		k.Ports = append(k.Ports, n)
	}
	if err := r.err.ErrorOrNil(); err != nil {
		return nil, err
	}
	if err := validateStruct(SectionKnocking, k); err != nil {
		return nil, err
	}
	return k, nil
}

func readService(store *Store, name string) (Service, error) {
	r := &sectionReader{store: store, section: name}
	svc := Service{
		Name:         name,
		Chain:        strings.ToUpper(store.GetString(name, "chain", "")),
		Action:       strings.ToUpper(store.GetString(name, "action", "")),
		Protocol:     strings.ToLower(store.GetString(name, "protocol", "")),
		Interface:    store.GetString(name, "interface", ""),
		Sources:      store.GetList(name, "source"),
		Destinations: store.GetList(name, "destination"),
		SourcePort:   store.GetString(name, "sport", ""),
		DestPort:     store.GetString(name, "dport", ""),
		Remote:       store.GetString(name, "remote", ""),
		IPv4:         r.get("ipv4"),
		IPv6:         r.get("ipv6"),
	}
	if err := r.err.ErrorOrNil(); err != nil {
		return Service{}, fmt.Errorf("service %s: %w", name, err)
	}
	if err := validateStruct(name, svc); err != nil {
		return Service{}, fmt.Errorf("service %s: %w", name, err)
	}
	return svc, nil
}

func upper(items []string) []string {
	for i, s := range items {
		items[i] = strings.ToUpper(s)
	}
	return items
}
