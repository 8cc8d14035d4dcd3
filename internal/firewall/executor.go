package firewall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrBinaryNotFound reports that iptables or ip6tables is not installed or
// not in PATH (exit status 127 from a shell). Usually the tool is not run as root.
var ErrBinaryNotFound = errors.New("firewall binary not found")

// Executor installs one formatted command (the arguments after the binary
// name) into the packet filter.
type Executor interface {
	Execute(ctx context.Context, command string) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, command string) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, command string) error {
	return f(ctx, command)
}

// ExecError describes a failed command.
type ExecError struct {
	Binary   string
	Command  string
	ExitCode int
	NotFound bool
	Err      error
}

func (e *ExecError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("%s: %v", e.Binary, ErrBinaryNotFound)
	}
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s %s: exit status %d: %v", e.Binary, e.Command, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Binary, e.Command, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Is matches ErrBinaryNotFound for missing binaries and ErrLocked for
// exit status 4.
func (e *ExecError) Is(target error) bool {
	switch target {
	case ErrBinaryNotFound:
		return e.NotFound
	case ErrLocked:
		return !e.NotFound && e.ExitCode == 4
	}
	return false
}

// PrintExecutor is the dry-run executor: it writes each command prefixed
// with the binary name instead of running it.
type PrintExecutor struct {
	Out     io.Writer
	Version IPVersion
}

// Execute implements Executor.
func (p *PrintExecutor) Execute(_ context.Context, command string) error {
	_, err := fmt.Fprintf(p.Out, "%s %s\n", p.Version.Command(), command)
	return err
}

// Entry is one recorded command.
type Entry struct {
	Version IPVersion
	Command string
}

// Line returns the entry as it would be typed in a shell.
func (e Entry) Line() string {
	return e.Version.Command() + " " + e.Command
}

// Recorder keeps the commands of both versions in issue order. Fail, when
// set, is consulted before recording and may inject executor failures.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	Fail    func(v IPVersion, command string) error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Executor returns an Executor recording commands for version v.
func (r *Recorder) Executor(v IPVersion) Executor {
	return ExecutorFunc(func(_ context.Context, command string) error {
		if r.Fail != nil {
			if err := r.Fail(v, command); err != nil {
				return err
			}
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.entries = append(r.entries, Entry{Version: v, Command: command})
		return nil
	})
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Commands returns the commands recorded for v.
func (r *Recorder) Commands(v IPVersion) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Version == v {
			out = append(out, e.Command)
		}
	}
	return out
}

// Lines returns every entry as a shell line.
func (r *Recorder) Lines() []string {
	entries := r.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Line()
	}
	return out
}

// String renders the recorded commands as a script body.
func (r *Recorder) String() string {
	lines := r.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
