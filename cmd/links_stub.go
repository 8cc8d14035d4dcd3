//go:build !linux

package cmd

func missingInterfaces([]string) []string {
	return nil
}
