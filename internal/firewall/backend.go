package firewall

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"grimm.is/ptables/internal/logging"
	"grimm.is/ptables/internal/resolve"
)

// Namer turns an address into the label shown in rule comments.
// *resolve.Resolver implements it with a reverse lookup.
type Namer interface {
	Name(ctx context.Context, a resolve.Address) string
}

type rawNamer struct{}

func (rawNamer) Name(_ context.Context, a resolve.Address) string { return a.String() }

// Backend formats filter-table commands for one IP version and hands them to
// its Executor. Commands are issued strictly in call order.
type Backend struct {
	version IPVersion
	exec    Executor
	names   Namer
	logger  *logging.Logger
}

// NewBackend creates the backend for v. A nil Namer prints raw addresses in
// comments; a nil logger uses the default one.
func NewBackend(v IPVersion, exec Executor, names Namer, logger *logging.Logger) *Backend {
	if names == nil {
		names = rawNamer{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Backend{
		version: v,
		exec:    exec,
		names:   names,
		logger:  logger.WithComponent("backend").With("version", v.String()),
	}
}

// Version returns the IP version the backend emits commands for.
func (b *Backend) Version() IPVersion {
	return b.version
}

func (b *Backend) execute(ctx context.Context, command string) error {
	b.logger.Debug("execute", "command", command)
	if err := b.exec.Execute(ctx, command); err != nil {
		var execErr *ExecError
		if errors.As(err, &execErr) {
			return err
		}
		return fmt.Errorf("%s %s: %w", b.version.Command(), command, err)
	}
	return nil
}

func (b *Backend) executeAll(ctx context.Context, commands ...string) error {
	for _, c := range commands {
		if err := b.execute(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Reset flushes and deletes every chain of the filter, nat (IPv4 only) and
// mangle tables and opens the built-in filter chains.
func (b *Backend) Reset(ctx context.Context) error {
	commands := []string{"-F", "-X"}
	if b.version == IPv4 {
		commands = append(commands, "-t nat -F", "-t nat -X")
	}
	commands = append(commands,
		"-t mangle -F",
		"-t mangle -X",
		"-P INPUT ACCEPT",
		"-P OUTPUT ACCEPT",
		"-P FORWARD ACCEPT",
	)
	return b.executeAll(ctx, commands...)
}

// SetDefault sets the policy of a built-in chain.
func (b *Backend) SetDefault(ctx context.Context, chain, action string) error {
	return b.execute(ctx, fmt.Sprintf("-P %s %s", strings.ToUpper(chain), strings.ToUpper(action)))
}

// AllowEstablished accepts traffic belonging to known connections.
func (b *Backend) AllowEstablished(ctx context.Context) error {
	return b.execute(ctx, `-A INPUT -m conntrack --ctstate RELATED,ESTABLISHED -m comment --comment "Allow already authenticated traffic" -j ACCEPT`)
}

// AllowOnInterface accepts all input arriving on name.
func (b *Backend) AllowOnInterface(ctx context.Context, name string) error {
	return b.execute(ctx, fmt.Sprintf(`-A INPUT -i %s -m comment --comment "Allow traffic on %s" -j ACCEPT`, name, name))
}

// DropInvalid drops packets conntrack marks as invalid.
func (b *Backend) DropInvalid(ctx context.Context) error {
	return b.execute(ctx, `-A INPUT -m conntrack --ctstate INVALID -m comment --comment "Drop invalid traffic" -j DROP`)
}

// AddRule appends a service rule. Rules carrying addresses of the other IP
// version are refused with ErrWrongVersion.
func (b *Backend) AddRule(ctx context.Context, rule Rule) error {
	if !rule.AppliesTo(b.version) {
		return fmt.Errorf("section %s on %s: %w", rule.Name, b.version, ErrWrongVersion)
	}

	var sb strings.Builder
	sb.WriteString("-A " + rule.Chain)
	if rule.Protocol != "" {
		fmt.Fprintf(&sb, " -m %s -p %s", rule.Protocol, rule.Protocol)
	}
	if rule.Interface != "" {
		sb.WriteString(" -i " + rule.Interface)
	}
	if rule.Destination.IsValid() {
		sb.WriteString(" --dst " + rule.Destination.String())
	}
	if rule.Source.IsValid() {
		sb.WriteString(" --src " + rule.Source.String())
	}
	if rule.SourcePort != "" {
		sb.WriteString(" --sport " + rule.SourcePort)
	}
	if rule.DestPort != "" {
		sb.WriteString(" --dport " + rule.DestPort)
	}

	if comment, ok := b.ruleComment(ctx, rule); ok {
		fmt.Fprintf(&sb, ` -m comment --comment "%s"`, comment)
	} else {
		b.logger.Warn("could not generate a comment for rule", "service", rule.Name, "chain", rule.Chain)
	}

	sb.WriteString(" -j " + rule.Action)
	return b.execute(ctx, sb.String())
}

func (b *Backend) ruleComment(ctx context.Context, rule Rule) (string, bool) {
	verb := "Disallow"
	if rule.Action == "ACCEPT" {
		verb = "Allow"
	}
	on := ""
	if rule.Interface != "" {
		on = " on " + rule.Interface
	}

	switch rule.Chain {
	case "INPUT":
		return fmt.Sprintf("%s %s to connect to %s%s", verb, b.remoteLabel(ctx, rule, rule.Source), rule.Name, on), true
	case "OUTPUT":
		return fmt.Sprintf("%s to connect to %s on %s%s", verb, rule.Name, b.remoteLabel(ctx, rule, rule.Destination), on), true
	}
	return "", false
}

func (b *Backend) remoteLabel(ctx context.Context, rule Rule, remote resolve.Address) string {
	switch {
	case !remote.IsValid():
		return "Anyone"
	case rule.Remote != "":
		return rule.Remote
	}
	return b.names.Name(ctx, remote)
}

// NoLog drops traffic matching the exemption silently, ahead of the chain's
// LOG rule.
func (b *Backend) NoLog(ctx context.Context, e Exemption) error {
	if !e.AppliesTo(b.version) {
		return fmt.Errorf("exemption %s on %s: %w", e.Service, b.version, ErrWrongVersion)
	}

	var sb strings.Builder
	sb.WriteString("-A " + strings.ToUpper(e.Chain))
	if e.Interface != "" {
		sb.WriteString(" -i " + e.Interface)
	}
	if e.Protocol != "" {
		fmt.Fprintf(&sb, " -m %s -p %s", e.Protocol, e.Protocol)
	}
	if e.Source.IsValid() {
		sb.WriteString(" --src " + e.Source.String())
	}
	if e.Destination.IsValid() {
		sb.WriteString(" --dst " + e.Destination.String())
	}
	if e.SourcePort != "" {
		sb.WriteString(" --sport " + e.SourcePort)
	}
	if e.DestPort != "" {
		sb.WriteString(" --dport " + e.DestPort)
	}
	if e.Service != "" {
		fmt.Fprintf(&sb, ` -m comment --comment "Drop %s before logging"`, e.Service)
	}
	sb.WriteString(" -j DROP")
	return b.execute(ctx, sb.String())
}

// LogChain appends the terminal LOG rule of chain. Empty prefix and rate and
// a negative level are left out.
func (b *Backend) LogChain(ctx context.Context, chain, prefix, rate string, level int) error {
	var sb strings.Builder
	sb.WriteString("-A " + strings.ToUpper(chain))
	sb.WriteString(` -m comment --comment "Log remaining traffic" -j LOG`)
	if prefix != "" {
		fmt.Fprintf(&sb, ` --log-prefix "%s"`, prefix)
	}
	if level >= 0 {
		sb.WriteString(" --log-level " + strconv.Itoa(level))
	}
	if rate != "" {
		sb.WriteString(" -m limit --limit " + rate)
	}
	return b.execute(ctx, sb.String())
}
