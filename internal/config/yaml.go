package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// LoadYAML parses a YAML policy: a mapping of section names to mappings of
// keys. Order is kept through yaml.MapSlice.
func LoadYAML(data []byte, filename string) (*Store, error) {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: YAML parse error: %w", filename, err)
	}

	store := NewStore()
	for _, item := range doc {
		name := fmt.Sprint(item.Key)
		var sec *Section
		if strings.EqualFold(name, SectionDefaults) || name == "DEFAULT" {
			sec = store.Defaults()
		} else {
			var err error
			if sec, err = store.AddSection(name); err != nil {
				return nil, fmt.Errorf("%s: %w", filename, err)
			}
		}

		if item.Value == nil {
			continue
		}
		keys, ok := item.Value.(yaml.MapSlice)
		if !ok {
			return nil, fmt.Errorf("%s: section %q must be a mapping", filename, name)
		}
		for _, kv := range keys {
			v, err := yamlToValue(kv.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %s.%v: %w", filename, name, kv.Key, err)
			}
			sec.Set(fmt.Sprint(kv.Key), v)
		}
	}
	return store, nil
}

func yamlToValue(v any) (Value, error) {
	if items, ok := v.([]any); ok {
		list := make([]string, 0, len(items))
		for _, item := range items {
			s, err := yamlToString(item)
			if err != nil {
				return Value{}, err
			}
			list = append(list, s)
		}
		return List(list...), nil
	}
	s, err := yamlToString(v)
	if err != nil {
		return Value{}, err
	}
	return Scalar(s), nil
}

func yamlToString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
