package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format selects the loader for a file.
type Format string

const (
	FormatHCL  Format = "hcl"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from the file extension; anything unknown is HCL.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatHCL
}

// Load parses data in the given format.
func Load(data []byte, filename string, format Format) (*Store, error) {
	switch format {
	case FormatHCL:
		return LoadHCL(data, filename)
	case FormatTOML:
		return LoadTOML(data, filename)
	case FormatYAML:
		return LoadYAML(data, filename)
	}
	return nil, fmt.Errorf("unknown config format %q", format)
}

// LoadFile reads and parses a policy file.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(data, path, FormatOf(path))
}
