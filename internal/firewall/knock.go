package firewall

import (
	"context"
	"fmt"
	"strings"

	"grimm.is/ptables/internal/validation"
)

const (
	// KnockChainPrefix names the auxiliary chains SSH-KNOCKING-1..N-1.
	KnockChainPrefix = "SSH-KNOCKING-"
	// KnockListPrefix names the recent-match lists SSH0..SSHN-1.
	KnockListPrefix = "SSH"

	DefaultSSHPort      = 22
	DefaultKnockTimeout = 30
)

// KnockConfig holds the port-knocking parameters. Port order is the knock
// sequence.
type KnockConfig struct {
	Ports     []int
	SSHPort   int
	Interface string
	Timeout   int // seconds
}

// NewKnockConfig validates the knock parameters. Zero sshPort and timeout
// take the defaults (22 and 30 seconds). Duplicate ports are rejected since
// they would make the sequence ambiguous.
func NewKnockConfig(ports []int, sshPort int, iface string, timeout int) (KnockConfig, error) {
	if len(ports) == 0 {
		return KnockConfig{}, fmt.Errorf("ssh knocking needs at least one port")
	}
	if sshPort == 0 {
		sshPort = DefaultSSHPort
	}
	if timeout == 0 {
		timeout = DefaultKnockTimeout
	}

	seen := make(map[int]int, len(ports))
	for i, p := range ports {
		if err := validation.ValidatePortNumber(p); err != nil {
			return KnockConfig{}, fmt.Errorf("knock port %d: %w", i, err)
		}
		if j, dup := seen[p]; dup {
			return KnockConfig{}, fmt.Errorf("knock port %d appears at positions %d and %d", p, j, i)
		}
		seen[p] = i
	}
	if err := validation.ValidatePortNumber(sshPort); err != nil {
		return KnockConfig{}, fmt.Errorf("ssh port: %w", err)
	}
	if iface != "" {
		if err := validation.ValidateInterfaceName(iface); err != nil {
			return KnockConfig{}, err
		}
	}
	if timeout < 0 {
		return KnockConfig{}, fmt.Errorf("invalid knock timeout: %d", timeout)
	}

	return KnockConfig{
		Ports:     append([]int(nil), ports...),
		SSHPort:   sshPort,
		Interface: iface,
		Timeout:   timeout,
	}, nil
}

// KnockChain returns the name of auxiliary chain i (1-based).
func KnockChain(i int) string {
	return fmt.Sprintf("%s%d", KnockChainPrefix, i)
}

// KnockList returns the name of tracking list i (0-based).
func KnockList(i int) string {
	return fmt.Sprintf("%s%d", KnockListPrefix, i)
}

// KnockCommands returns the commands implementing the knock sequence, in
// installation order:
//
//  1. auxiliary chains SSH-KNOCKING-1..N-1
//  2. the grant rule accepting ssh from addresses in SSH{N-1}
//  3. from the last port down to the first: purge the list, then either jump
//     on a correct knock or start the sequence on port 0
//  4. disguise rules in the auxiliary chains registering the next list
func KnockCommands(cfg KnockConfig) []string {
	n := len(cfg.Ports)
	commands := make([]string, 0, 4*n)
	const newTCP = "-A INPUT -m state --state NEW -m tcp -p tcp"

	for i := 1; i < n; i++ {
		commands = append(commands, "-N "+KnockChain(i))
	}

	var grant strings.Builder
	grant.WriteString(newTCP)
	if cfg.Interface != "" {
		grant.WriteString(" -i " + cfg.Interface)
	}
	fmt.Fprintf(&grant, " --dport %d -m recent --rcheck --seconds %d --name %s", cfg.SSHPort, cfg.Timeout, KnockList(n-1))
	fmt.Fprintf(&grant, ` -m comment --comment "Allow port %d for ssh for %d seconds if the connecting ip is in the list %s" -j ACCEPT`,
		cfg.SSHPort, cfg.Timeout, KnockList(n-1))
	commands = append(commands, grant.String())

	for i := n - 1; i >= 0; i-- {
		commands = append(commands, fmt.Sprintf(
			`%s -m recent --name %s --remove -m comment --comment "Remove connecting ip from the %s list" -j DROP`,
			newTCP, KnockList(i), KnockList(i)))
		if i != 0 {
			commands = append(commands, fmt.Sprintf(
				`%s --dport %d -m recent --rcheck --name %s -m comment --comment "Checks for the sequence and jumps if correct" -j %s`,
				newTCP, cfg.Ports[i], KnockList(i-1), KnockChain(i)))
		} else {
			commands = append(commands, fmt.Sprintf(
				`%s --dport %d -m recent --name %s --set -m comment --comment "Sequence initiation for port knocking" -j DROP`,
				newTCP, cfg.Ports[0], KnockList(0)))
		}
	}

	for j := 0; j < n-1; j++ {
		commands = append(commands, fmt.Sprintf(
			`-A %s -m recent --name %s --set -m comment --comment "Disguise successful knock as a closed port for obfuscation" -j DROP`,
			KnockChain(j+1), KnockList(j+1)))
	}
	return commands
}

// BuildKnockSequence installs the knock sequence described by cfg.
func (b *Backend) BuildKnockSequence(ctx context.Context, cfg KnockConfig) error {
	if len(cfg.Ports) == 0 {
		return fmt.Errorf("ssh knocking needs at least one port")
	}
	b.logger.Info("installing ssh knocking", "ports", len(cfg.Ports), "ssh_port", cfg.SSHPort)
	return b.executeAll(ctx, KnockCommands(cfg)...)
}
