package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/ptables/internal/logging"
)

// ErrPoliciesDiffer is returned by RunDiff when the two policies compile to
// different command sequences.
var ErrPoliciesDiffer = errors.New("policies differ")

// DiffOptions configures RunDiff.
type DiffOptions struct {
	OldFile string
	NewFile string
	Context int
	Resolve ResolveOptions
	Out     io.Writer
	Logger  *logging.Logger
}

// RunDiff compiles two policies and prints a unified diff of the commands
// they produce.
func RunDiff(ctx context.Context, opts DiffOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	oldRec, _, err := compileToRecorder(ctx, opts.OldFile, opts.Resolve, logger, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.OldFile, err)
	}
	newRec, _, err := compileToRecorder(ctx, opts.NewFile, opts.Resolve, logger, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.NewFile, err)
	}

	before, after := oldRec.String(), newRec.String()
	if before == after {
		Printer.Fprintln(out, "No changes detected.")
		return nil
	}

	// A negative context means difflib's default of 3 lines.
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: opts.OldFile,
		ToFile:   opts.NewFile,
		Context:  opts.Context,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return err
	}
	fmt.Fprint(out, text)
	return ErrPoliciesDiffer
}
