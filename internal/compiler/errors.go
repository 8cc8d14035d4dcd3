package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"grimm.is/ptables/internal/firewall"
)

// ErrVersionMismatch reports a rule whose source and destination belong to
// different IP versions.
var ErrVersionMismatch = errors.New("ip versions of source and destination do not match")

// Phase names a stage of a run.
type Phase string

const (
	PhaseConfig      Phase = "config"
	PhaseGlobalBegin Phase = "global-begin"
	PhaseServices    Phase = "services"
	PhaseGlobalEnd   Phase = "global-end"
)

// Exit codes of a run. main exits with the negated value.
const (
	ExitOK            = 0
	ExitBinaryMissing = -1
	ExitGlobalBegin   = -2
	ExitService       = -10
	ExitGlobalEnd     = -15
	ExitConfig        = -20
)

// PhaseError is a fatal failure during one phase of a run.
type PhaseError struct {
	Phase   Phase
	Section string // service being compiled, if any
	Err     error
}

func (e *PhaseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("%s phase, section %s: %v", e.Phase, e.Section, e.Err)
	}
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// ExitCode maps the phase to the process exit code.
func (e *PhaseError) ExitCode() int {
	switch e.Phase {
	case PhaseGlobalBegin:
		if errors.Is(e.Err, firewall.ErrBinaryNotFound) {
			return ExitBinaryMissing
		}
		return ExitGlobalBegin
	case PhaseServices:
		return ExitService
	case PhaseGlobalEnd:
		return ExitGlobalEnd
	}
	return ExitConfig
}

// ExitCode returns the exit code for the result of Run: 0 for nil, the
// phase code for a *PhaseError and ExitConfig for anything else.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.ExitCode()
	}
	return ExitConfig
}

// Report collects the recoverable problems of one section. They are
// warnings: the rest of the section is still installed.
type Report struct {
	Section   string
	Attempts  int // rule combinations tried
	Installed int // commands issued
	problems  *multierror.Error
}

func (r *Report) add(err error) {
	r.problems = multierror.Append(r.problems, err)
}

// Skipped returns how many combinations were not installed because of a
// problem.
func (r *Report) Skipped() int {
	if r.problems == nil {
		return 0
	}
	return len(r.problems.Errors)
}

// Err returns the collected problems, or nil.
func (r *Report) Err() error {
	return r.problems.ErrorOrNil()
}

// Problems returns the individual problems.
func (r *Report) Problems() []error {
	if r.problems == nil {
		return nil
	}
	return r.problems.Errors
}

func (r *Report) String() string {
	if r.Skipped() == 0 {
		return fmt.Sprintf("%s: %d commands", r.Section, r.Installed)
	}
	msgs := make([]string, 0, r.Skipped())
	for _, p := range r.Problems() {
		msgs = append(msgs, p.Error())
	}
	return fmt.Sprintf("%s: %d commands, %d skipped: %s", r.Section, r.Installed, r.Skipped(), strings.Join(msgs, "; "))
}
