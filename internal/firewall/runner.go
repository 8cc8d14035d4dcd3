package firewall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts process execution so executors can be tested
// without touching the host firewall.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	RunWithInput(ctx context.Context, input []byte, name string, args ...string) error
}

// RealCommandRunner executes actual commands.
type RealCommandRunner struct{}

// DefaultCommandRunner is the default command runner.
var DefaultCommandRunner CommandRunner = &RealCommandRunner{}

// Run executes a command, returning its combined output in the error.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %s failed: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Output executes a command and returns its standard output.
func (r *RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// RunWithInput executes a command with input on its standard input.
func (r *RealCommandRunner) RunWithInput(ctx context.Context, input []byte, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %s failed: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// CommandExecutor runs commands through the iptables/ip6tables binaries.
type CommandExecutor struct {
	Version IPVersion
	Runner  CommandRunner
}

// NewCommandExecutor creates an executor for v using the default runner.
func NewCommandExecutor(v IPVersion) *CommandExecutor {
	return &CommandExecutor{Version: v, Runner: DefaultCommandRunner}
}

// Execute implements Executor.
func (e *CommandExecutor) Execute(ctx context.Context, command string) error {
	args, err := SplitArgs(command)
	if err != nil {
		return err
	}

	binary := e.Version.Command()
	if err := e.Runner.Run(ctx, binary, args...); err != nil {
		execErr := &ExecError{Binary: binary, Command: command, Err: err}

		var exitErr *exec.ExitError
		switch {
		case errors.Is(err, exec.ErrNotFound):
			execErr.NotFound = true
		case errors.As(err, &exitErr):
			execErr.ExitCode = exitErr.ExitCode()
			execErr.NotFound = execErr.ExitCode == 127
		}
		return execErr
	}
	return nil
}

// BinaryVersion returns the first line of `<binary> --version`.
func (e *CommandExecutor) BinaryVersion(ctx context.Context) (string, error) {
	out, err := e.Runner.Output(ctx, e.Version.Command(), "--version")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", &ExecError{Binary: e.Version.Command(), Command: "--version", NotFound: true, Err: err}
		}
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}
