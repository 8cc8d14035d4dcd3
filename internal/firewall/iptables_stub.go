//go:build !linux

package firewall

import (
	"context"
	"errors"
)

// IPTablesExecutor is only available on Linux.
type IPTablesExecutor struct {
	Version IPVersion
}

// NewIPTablesExecutor creates an executor that always reports a missing binary.
func NewIPTablesExecutor(v IPVersion) *IPTablesExecutor {
	return &IPTablesExecutor{Version: v}
}

// Execute implements Executor.
func (e *IPTablesExecutor) Execute(_ context.Context, command string) error {
	if _, err := ParseCommand(command); err != nil {
		return err
	}
	return &ExecError{
		Binary:   e.Version.Command(),
		Command:  command,
		NotFound: true,
		Err:      errors.New("go-iptables requires linux"),
	}
}
