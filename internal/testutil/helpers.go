// Package testutil holds helpers shared by tests that touch the host.
package testutil

import (
	"os"
	"testing"
)

// VMTestEnv must be set for tests that change the packet filter.
const VMTestEnv = "PTABLES_VM_TEST"

// RequireVM skips the test unless PTABLES_VM_TEST is set and the process runs
// as root. Such tests install real iptables rules, so they only run in a
// disposable VM or container.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv(VMTestEnv) == "" {
		t.Skipf("Skipping test: requires %s environment", VMTestEnv)
	}
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}
