//go:build !linux

package cmd

import "fmt"

func inNamespace(name string, fn func() error) error {
	if name == "" {
		return fn()
	}
	return fmt.Errorf("network namespaces require linux")
}
