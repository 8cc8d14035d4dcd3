package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadTOML parses a TOML policy. Every table is a section, in file order;
// [defaults] or [DEFAULT] fills the fallback section.
//
//	[DEFAULT]
//	chain = "INPUT"
//
//	[ssh]
//	protocol = "tcp"
//	dport = 22
func LoadTOML(data []byte, filename string) (*Store, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("%s: TOML parse error: %w", filename, err)
	}

	store := NewStore()
	section := func(name string) (*Section, error) {
		if strings.EqualFold(name, SectionDefaults) || name == "DEFAULT" {
			return store.Defaults(), nil
		}
		if sec := store.Section(name); sec != nil {
			return sec, nil
		}
		return store.AddSection(name)
	}

	for _, key := range md.Keys() {
		switch len(key) {
		case 1:
			if _, ok := raw[key[0]].(map[string]any); !ok {
				return nil, fmt.Errorf("%s: key %q must be inside a table", filename, key.String())
			}
			if _, err := section(key[0]); err != nil {
				return nil, fmt.Errorf("%s: %w", filename, err)
			}
		case 2:
			sec, err := section(key[0])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", filename, err)
			}
			table, _ := raw[key[0]].(map[string]any)
			v, err := tomlToValue(table[key[1]])
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", filename, key.String(), err)
			}
			sec.Set(key[1], v)
		default:
			return nil, fmt.Errorf("%s: nested table %q is not supported", filename, key.String())
		}
	}
	return store, nil
}

func tomlToValue(v any) (Value, error) {
	if items, ok := v.([]any); ok {
		list := make([]string, 0, len(items))
		for _, item := range items {
			s, err := tomlToString(item)
			if err != nil {
				return Value{}, err
			}
			list = append(list, s)
		}
		return List(list...), nil
	}
	s, err := tomlToString(v)
	if err != nil {
		return Value{}, err
	}
	return Scalar(s), nil
}

func tomlToString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
