//go:build linux

package cmd

import (
	"errors"
	"strings"

	"github.com/vishvananda/netlink"
)

// missingInterfaces returns the names that no link on this host carries.
// Wildcards such as eth+ are not checked.
func missingInterfaces(names []string) []string {
	var missing []string
	for _, name := range names {
		if strings.HasSuffix(name, "+") {
			continue
		}
		_, err := netlink.LinkByName(name)
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			missing = append(missing, name)
		}
	}
	return missing
}
