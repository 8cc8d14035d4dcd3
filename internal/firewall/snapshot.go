package firewall

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Snapshot is the ruleset of one IP version as printed by iptables-save.
type Snapshot struct {
	Version IPVersion
	Rules   []byte
}

// SaveCommand returns the binary that dumps the ruleset, e.g. iptables-save.
func (v IPVersion) SaveCommand() string {
	return v.Command() + "-save"
}

// RestoreCommand returns the binary that loads a dump, e.g. iptables-restore.
func (v IPVersion) RestoreCommand() string {
	return v.Command() + "-restore"
}

// TakeSnapshot saves the current ruleset of v.
func TakeSnapshot(ctx context.Context, runner CommandRunner, v IPVersion) (Snapshot, error) {
	out, err := runner.Output(ctx, v.SaveCommand())
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Snapshot{}, &ExecError{Binary: v.SaveCommand(), NotFound: true, Err: err}
		}
		return Snapshot{}, fmt.Errorf("%s: %w", v.SaveCommand(), err)
	}
	return Snapshot{Version: v, Rules: out}, nil
}

// Restore replaces every table of the snapshot's version with the saved rules.
func (s Snapshot) Restore(ctx context.Context, runner CommandRunner) error {
	if err := runner.RunWithInput(ctx, s.Rules, s.Version.RestoreCommand()); err != nil {
		return fmt.Errorf("%s: %w", s.Version.RestoreCommand(), err)
	}
	return nil
}

// Rollback saves the rulesets of the given versions and restores them on
// demand.
type Rollback struct {
	Runner    CommandRunner
	snapshots []Snapshot
}

// NewRollback creates a Rollback using runner, or the default runner when nil.
func NewRollback(runner CommandRunner) *Rollback {
	if runner == nil {
		runner = DefaultCommandRunner
	}
	return &Rollback{Runner: runner}
}

// Save takes a snapshot of every version. Nothing is kept when one fails.
func (r *Rollback) Save(ctx context.Context, versions ...IPVersion) error {
	snapshots := make([]Snapshot, 0, len(versions))
	for _, v := range versions {
		s, err := TakeSnapshot(ctx, r.Runner, v)
		if err != nil {
			return err
		}
		snapshots = append(snapshots, s)
	}
	r.snapshots = snapshots
	return nil
}

// Restore loads every saved snapshot, continuing past failures.
func (r *Rollback) Restore(ctx context.Context) error {
	var errs []error
	for _, s := range r.snapshots {
		if err := s.Restore(ctx, r.Runner); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Saved reports how many snapshots are held.
func (r *Rollback) Saved() int {
	return len(r.snapshots)
}
