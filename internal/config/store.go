package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reserved section names. Every other section describes a service.
const (
	SectionDefaults = "defaults"
	SectionGlobal   = "global"
	SectionLogging  = "logging"
	SectionKnocking = "ssh_knocking"
)

var (
	listSep   = regexp.MustCompile(`,\s*`)
	recordSep = regexp.MustCompile(`;\s*`)
)

// IsReserved reports whether name is one of the non-service sections.
func IsReserved(name string) bool {
	switch strings.ToLower(name) {
	case SectionDefaults, SectionGlobal, SectionLogging, SectionKnocking:
		return true
	}
	return false
}

// Value is a configuration value: a scalar or a list of scalars.
type Value struct {
	scalar string
	list   []string
	isList bool
}

// Scalar returns a single-valued Value.
func Scalar(s string) Value {
	return Value{scalar: s}
}

// List returns a list Value.
func List(items ...string) Value {
	return Value{list: append([]string(nil), items...), isList: true}
}

// IsList reports whether the value was written as a list.
func (v Value) IsList() bool {
	return v.isList
}

// String returns the scalar, or the list elements joined by ", ".
func (v Value) String() string {
	if v.isList {
		return strings.Join(v.list, ", ")
	}
	return v.scalar
}

// Items returns the list elements, or the scalar split on commas. Empty
// tokens are dropped.
func (v Value) Items() []string {
	raw := v.list
	if !v.isList {
		raw = listSep.Split(v.scalar, -1)
	}
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Records returns the list elements, or the scalar split on semicolons,
// each split into comma-separated fields. Fields keep their position; an
// empty field means unset. Empty records are dropped.
func (v Value) Records() [][]string {
	raw := v.list
	if !v.isList {
		raw = recordSep.Split(v.scalar, -1)
	}
	var records [][]string
	for _, r := range raw {
		r = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(r), ";"))
		if r == "" {
			continue
		}
		fields := strings.Split(r, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		records = append(records, fields)
	}
	return records
}

// Section is an ordered set of keys.
type Section struct {
	Name   string
	keys   []string
	values map[string]Value
}

func newSection(name string) *Section {
	return &Section{Name: name, values: make(map[string]Value)}
}

// Set stores a value. Keys are case-insensitive; the first Set of a key fixes
// its position.
func (s *Section) Set(key string, v Value) {
	key = strings.ToLower(key)
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = v
}

// Keys returns the section's own keys in insertion order.
func (s *Section) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Lookup returns the value of key in this section only.
func (s *Section) Lookup(key string) (Value, bool) {
	v, ok := s.values[strings.ToLower(key)]
	return v, ok
}

// Store holds the sections of a configuration file in file order, plus the
// defaults section consulted when a key is missing from a section.
type Store struct {
	defaults *Section
	sections []*Section
	index    map[string]*Section
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		defaults: newSection(SectionDefaults),
		index:    make(map[string]*Section),
	}
}

// Defaults returns the fallback section.
func (s *Store) Defaults() *Section {
	return s.defaults
}

// AddSection appends a new section. Names are unique.
func (s *Store) AddSection(name string) (*Section, error) {
	if name == "" {
		return nil, fmt.Errorf("section without a name")
	}
	if _, ok := s.index[name]; ok {
		return nil, fmt.Errorf("duplicate section %q", name)
	}
	sec := newSection(name)
	s.sections = append(s.sections, sec)
	s.index[name] = sec
	return sec, nil
}

// Section returns the named section, or nil.
func (s *Store) Section(name string) *Section {
	return s.index[name]
}

// HasSection reports whether the section exists.
func (s *Store) HasSection(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Sections returns the section names in file order, without the defaults.
func (s *Store) Sections() []string {
	names := make([]string, len(s.sections))
	for i, sec := range s.sections {
		names[i] = sec.Name
	}
	return names
}

// ServiceSections returns the names of the non-reserved sections in file order.
func (s *Store) ServiceSections() []string {
	var names []string
	for _, sec := range s.sections {
		if !IsReserved(sec.Name) {
			names = append(names, sec.Name)
		}
	}
	return names
}

// Get returns the value of key in section, falling back to the defaults.
// A missing section only sees the defaults.
func (s *Store) Get(section, key string) (Value, bool) {
	if sec := s.index[section]; sec != nil {
		if v, ok := sec.Lookup(key); ok {
			return v, true
		}
	}
	return s.defaults.Lookup(key)
}

// GetString returns the value as text, or def when unset.
func (s *Store) GetString(section, key, def string) string {
	v, ok := s.Get(section, key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v.String())
}

// GetBool parses a boolean (1/0, yes/no, true/false, on/off), or returns def
// when unset.
func (s *Store) GetBool(section, key string, def bool) (bool, error) {
	v, ok := s.Get(section, key)
	if !ok {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v.String())) {
	case "1", "yes", "true", "on":
		return true, nil
	case "0", "no", "false", "off":
		return false, nil
	}
	return def, fmt.Errorf("[%s] %s: not a boolean: %q", section, key, v.String())
}

// GetInt parses an integer, or returns def when unset.
func (s *Store) GetInt(section, key string, def int) (int, error) {
	v, ok := s.Get(section, key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v.String()))
	if err != nil {
		return def, fmt.Errorf("[%s] %s: not an integer: %q", section, key, v.String())
	}
	return n, nil
}

// GetList returns the list items of key, or nil when unset.
func (s *Store) GetList(section, key string) []string {
	v, ok := s.Get(section, key)
	if !ok {
		return nil
	}
	return v.Items()
}

// GetRecords returns the records of key, or nil when unset.
func (s *Store) GetRecords(section, key string) [][]string {
	v, ok := s.Get(section, key)
	if !ok {
		return nil
	}
	return v.Records()
}
