// Package firewall emits iptables and ip6tables commands.
//
// # Overview
//
// A [Backend] exists per IP version. Each operation formats the command text
// (the arguments after the binary name) and hands it to an [Executor].
// Commands are positional: every -A appends to the end of its chain, so the
// caller's call order is the resulting rule order.
//
// # Executors
//
//   - [CommandExecutor]: runs the iptables/ip6tables binary through a [CommandRunner]
//   - [IPTablesExecutor]: drives github.com/coreos/go-iptables (Linux only)
//   - [PrintExecutor]: dry run, prints each command
//   - [Recorder]: keeps commands in memory for check, diff and tests
//
// # Port Knocking
//
// [Backend.BuildKnockSequence] installs a sequence of recent-match rules.
// Knocking on the configured ports in order moves the client address through
// the lists SSH0..SSH{N-1}; the last list opens the ssh port for the configured
// timeout. A wrong knock purges the address from its list.
//
// # Example
//
//	rec := firewall.NewRecorder()
//	v4 := firewall.NewBackend(firewall.IPv4, rec.Executor(firewall.IPv4), nil, logger)
//	_ = v4.Reset(ctx)
//	_ = v4.SetDefault(ctx, "INPUT", "DROP")
//	fmt.Print(rec.String())
package firewall
