//go:build linux

package firewall

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-iptables/iptables"
)

// builtinChains are never deleted by a table-wide -X.
var builtinChains = map[string]map[string]bool{
	"filter": {"INPUT": true, "FORWARD": true, "OUTPUT": true},
	"nat":    {"PREROUTING": true, "INPUT": true, "OUTPUT": true, "POSTROUTING": true},
	"mangle": {"PREROUTING": true, "INPUT": true, "FORWARD": true, "OUTPUT": true, "POSTROUTING": true},
	"raw":    {"PREROUTING": true, "OUTPUT": true},
}

// IPTablesExecutor drives the packet filter through github.com/coreos/go-iptables,
// which serializes access with the xtables lock.
type IPTablesExecutor struct {
	Version IPVersion

	once    sync.Once
	client  *iptables.IPTables
	initErr error
}

// NewIPTablesExecutor creates an executor for v. The client is created on the
// first command so a missing binary surfaces as a command failure.
func NewIPTablesExecutor(v IPVersion) *IPTablesExecutor {
	return &IPTablesExecutor{Version: v}
}

func (e *IPTablesExecutor) ipt() (*iptables.IPTables, error) {
	e.once.Do(func() {
		proto := iptables.ProtocolIPv4
		if e.Version == IPv6 {
			proto = iptables.ProtocolIPv6
		}
		client, err := iptables.NewWithProtocol(proto)
		if err != nil {
			e.initErr = &ExecError{Binary: e.Version.Command(), NotFound: true, Err: err}
			return
		}
		e.client = client
	})
	return e.client, e.initErr
}

// Execute implements Executor.
func (e *IPTablesExecutor) Execute(_ context.Context, command string) error {
	cmd, err := ParseCommand(command)
	if err != nil {
		return err
	}
	ipt, err := e.ipt()
	if err != nil {
		return err
	}

	if err := e.apply(ipt, cmd); err != nil {
		execErr := &ExecError{Binary: e.Version.Command(), Command: command, Err: err}
		var iptErr *iptables.Error
		if errors.As(err, &iptErr) {
			execErr.ExitCode = iptErr.ExitStatus()
		}
		return execErr
	}
	return nil
}

func (e *IPTablesExecutor) apply(ipt *iptables.IPTables, cmd Command) error {
	switch cmd.Op {
	case OpAppend:
		return ipt.Append(cmd.Table, cmd.Chain, cmd.Args...)
	case OpNewChain:
		return ipt.NewChain(cmd.Table, cmd.Chain)
	case OpPolicy:
		return ipt.ChangePolicy(cmd.Table, cmd.Chain, cmd.Args[0])
	case OpFlush:
		if cmd.Chain != "" {
			return ipt.ClearChain(cmd.Table, cmd.Chain)
		}
		chains, err := ipt.ListChains(cmd.Table)
		if err != nil {
			return fmt.Errorf("list chains of %s: %w", cmd.Table, err)
		}
		for _, chain := range chains {
			if err := ipt.ClearChain(cmd.Table, chain); err != nil {
				return err
			}
		}
		return nil
	case OpDeleteChain:
		if cmd.Chain != "" {
			return ipt.DeleteChain(cmd.Table, cmd.Chain)
		}
		chains, err := ipt.ListChains(cmd.Table)
		if err != nil {
			return fmt.Errorf("list chains of %s: %w", cmd.Table, err)
		}
		for _, chain := range chains {
			if builtinChains[cmd.Table][chain] {
				continue
			}
			if err := ipt.DeleteChain(cmd.Table, chain); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported operation %s", cmd.Op)
}
