//go:build linux

package cmd

import (
	"fmt"
	"runtime"

	"github.com/vishvananda/netns"
)

// inNamespace runs fn with the calling thread switched into the named network
// namespace. An empty name runs fn in the current namespace.
func inNamespace(name string, fn func() error) error {
	if name == "" {
		return fn()
	}

	// Namespaces are per thread: keep fn and every command it forks here.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origns, err := netns.Get()
	if err != nil {
		return fmt.Errorf("failed to get original netns: %w", err)
	}
	defer origns.Close()

	target, err := netns.GetFromName(name)
	if err != nil {
		return fmt.Errorf("failed to open netns %s: %w", name, err)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		return fmt.Errorf("failed to enter netns %s: %w", name, err)
	}
	defer netns.Set(origns)

	return fn()
}
