// Package validation checks the tokens that end up verbatim in iptables
// command lines: names, chains, ports, protocols and log settings.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Interface names: alphanumeric, dash, underscore, dot (VLANs), max 15 chars.
	// A trailing "+" is the iptables wildcard (eth+).
	interfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}\+?$`)

	// Chain names: iptables allows up to 28 printable characters without whitespace.
	chainNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,28}$`)

	// Limit rates as accepted by -m limit --limit: 2/sec, 10/minute, 1/h ...
	rateRegex = regexp.MustCompile(`^[0-9]+/(s|sec|second|m|min|minute|h|hour|d|day)$`)

	// Characters that would break out of a quoted comment or a shell word
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}
)

// MaxLogPrefixLen is the longest --log-prefix the LOG target accepts.
const MaxLogPrefixLen = 29

// ValidateInterfaceName validates a network interface name
func ValidateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name cannot be empty")
	}
	if len(strings.TrimSuffix(name, "+")) > 15 {
		return fmt.Errorf("interface name too long (max 15 characters): %s", name)
	}
	if !interfaceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid interface name: %s (must be alphanumeric with -_.)", name)
	}
	return nil
}

// ValidateLabel validates free text that is placed inside a rule comment,
// such as a service name or a remote label. Spaces are allowed.
func ValidateLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("label cannot be empty")
	}
	if len(label) > 200 {
		return fmt.Errorf("label too long (max 200 characters)")
	}
	for _, char := range dangerousChars {
		if strings.Contains(label, char) {
			return fmt.Errorf("label %q contains dangerous character: %s", label, char)
		}
	}
	return nil
}

// ValidateChainName validates a built-in or user-defined chain name
func ValidateChainName(chain string) error {
	if chain == "" {
		return fmt.Errorf("chain name cannot be empty")
	}
	if !chainNameRegex.MatchString(chain) {
		return fmt.Errorf("invalid chain name: %s (max 28 characters, alphanumeric with -_.)", chain)
	}
	return nil
}

// ValidateTarget validates a jump target; any valid chain name is accepted
// because rules may jump to user-defined chains.
func ValidateTarget(target string) error {
	if err := ValidateChainName(target); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	return nil
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}

// ValidatePort validates a port match argument: a number, a range "lo:hi"
// or a service name from /etc/services.
func ValidatePort(port string) error {
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if lo, hi, ok := strings.Cut(port, ":"); ok {
		l, errL := strconv.Atoi(lo)
		h, errH := strconv.Atoi(hi)
		if errL != nil || errH != nil {
			return fmt.Errorf("invalid port range: %s", port)
		}
		if err := ValidatePortNumber(l); err != nil {
			return err
		}
		if err := ValidatePortNumber(h); err != nil {
			return err
		}
		if l > h {
			return fmt.Errorf("invalid port range: %s (start after end)", port)
		}
		return nil
	}
	if n, err := strconv.Atoi(port); err == nil {
		return ValidatePortNumber(n)
	}
	if !regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`).MatchString(port) {
		return fmt.Errorf("invalid port: %s", port)
	}
	return nil
}

// ValidateProtocol validates a protocol name
func ValidateProtocol(proto string) error {
	validProtocols := []string{"tcp", "udp", "udplite", "icmp", "icmpv6", "ipv6-icmp", "sctp", "dccp", "ah", "esp", "gre", "all"}
	proto = strings.ToLower(proto)

	for _, valid := range validProtocols {
		if proto == valid {
			return nil
		}
	}

	return fmt.Errorf("invalid protocol: %s (must be one of: %s)", proto, strings.Join(validProtocols, ", "))
}

// ValidateRate validates a --limit rate such as "2/sec"
func ValidateRate(rate string) error {
	if !rateRegex.MatchString(rate) {
		return fmt.Errorf("invalid rate: %s (expected N/sec, N/minute, N/hour or N/day)", rate)
	}
	return nil
}

// ValidateLogPrefix validates a --log-prefix value
func ValidateLogPrefix(prefix string) error {
	if len(prefix) > MaxLogPrefixLen {
		return fmt.Errorf("log prefix too long (max %d characters): %q", MaxLogPrefixLen, prefix)
	}
	if strings.ContainsAny(prefix, "\"\n\r") {
		return fmt.Errorf("log prefix contains a quote or newline: %q", prefix)
	}
	return nil
}

// ValidateLogLevel validates a syslog level (0-7) for the LOG target
func ValidateLogLevel(level int) error {
	if level < 0 || level > 7 {
		return fmt.Errorf("invalid log level: %d (must be 0-7)", level)
	}
	return nil
}
