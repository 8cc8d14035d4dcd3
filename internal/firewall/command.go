package firewall

import (
	"fmt"

	shlex "github.com/anmitsu/go-shlex"
)

// Op is the table operation of a command.
type Op string

const (
	OpAppend      Op = "-A"
	OpNewChain    Op = "-N"
	OpPolicy      Op = "-P"
	OpFlush       Op = "-F"
	OpDeleteChain Op = "-X"
)

// Command is a parsed command line as produced by Backend.
type Command struct {
	Table string
	Op    Op
	Chain string   // empty for table-wide -F / -X
	Args  []string // rule specification, or the policy target for -P
}

// SplitArgs splits command text into arguments with POSIX shell quoting.
func SplitArgs(text string) ([]string, error) {
	args, err := shlex.Split(text, true)
	if err != nil {
		return nil, fmt.Errorf("split %q: %w", text, err)
	}
	return args, nil
}

// ParseCommand parses command text. Only the operations Backend emits are
// understood.
func ParseCommand(text string) (Command, error) {
	args, err := SplitArgs(text)
	if err != nil {
		return Command{}, err
	}

	cmd := Command{Table: "filter"}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if cmd.Op != "" {
			// everything after the operation and its chain is rule specification
			cmd.Args = append(cmd.Args, a)
			continue
		}
		switch a {
		case "-t", "--table":
			if i+1 >= len(args) {
				return Command{}, fmt.Errorf("parse %q: %s without table", text, a)
			}
			cmd.Table = args[i+1]
			i++
		case string(OpAppend), string(OpNewChain), string(OpPolicy), string(OpFlush), string(OpDeleteChain):
			cmd.Op = Op(a)
			if i+1 < len(args) && args[i+1] != "" && args[i+1][0] != '-' {
				cmd.Chain = args[i+1]
				i++
			}
		default:
			return Command{}, fmt.Errorf("parse %q: unexpected %q before the operation", text, a)
		}
	}

	switch {
	case cmd.Op == "":
		return Command{}, fmt.Errorf("parse %q: no operation", text)
	case (cmd.Op == OpAppend || cmd.Op == OpNewChain || cmd.Op == OpPolicy) && cmd.Chain == "":
		return Command{}, fmt.Errorf("parse %q: %s needs a chain", text, cmd.Op)
	case cmd.Op == OpPolicy && len(cmd.Args) != 1:
		return Command{}, fmt.Errorf("parse %q: -P needs exactly one target", text)
	}
	return cmd, nil
}
