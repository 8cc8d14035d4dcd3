package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"grimm.is/ptables/internal/audit"
	"grimm.is/ptables/internal/clock"
	"grimm.is/ptables/internal/compiler"
	"grimm.is/ptables/internal/firewall"
	"grimm.is/ptables/internal/logging"
	"grimm.is/ptables/internal/metrics"
)

// Executor backends selectable with --backend.
const (
	BackendExec       = "exec"
	BackendGoIPTables = "go-iptables"
)

// ApplyOptions configures RunApply.
type ApplyOptions struct {
	ConfigFile  string
	DryRun      bool
	Backend     string
	Resolve     ResolveOptions
	MetricsFile string
	HistoryDB   string
	Netns       string
	// Rollback restores the previous ruleset when a phase fails.
	Rollback bool

	// Out receives the dry-run commands; defaults to stdout.
	Out    io.Writer
	Logger *logging.Logger

	// Executor overrides backend selection and Runner the runner used for
	// rollback snapshots. Used by tests.
	Executor func(firewall.IPVersion) firewall.Executor
	Runner   firewall.CommandRunner
}

func (o ApplyOptions) executor(v firewall.IPVersion) (firewall.Executor, error) {
	if o.Executor != nil {
		return o.Executor(v), nil
	}
	if o.DryRun {
		out := o.Out
		if out == nil {
			out = os.Stdout
		}
		return &firewall.PrintExecutor{Out: out, Version: v}, nil
	}

	var next firewall.Executor
	switch o.Backend {
	case "", BackendExec:
		next = firewall.NewCommandExecutor(v)
	case BackendGoIPTables:
		next = firewall.NewIPTablesExecutor(v)
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", o.Backend, BackendExec, BackendGoIPTables)
	}
	return firewall.NewRetryExecutor(next), nil
}

// RunApply compiles the policy and installs it, or prints it with DryRun.
// The returned error carries the exit code (see compiler.ExitCode).
func RunApply(ctx context.Context, opts ApplyOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	start := clock.Now()
	reg := metrics.New()

	history := firewall.NewRecorder()
	var buildErr error
	executors := map[firewall.IPVersion]firewall.Executor{}
	for _, v := range firewall.Versions {
		exec, err := opts.executor(v)
		if err != nil {
			buildErr = err
			break
		}
		executors[v] = tee(reg.Executor(v, exec), history.Executor(v))
	}

	var result *compiler.Result
	err := buildErr
	if err == nil {
		err = inNamespace(opts.Netns, func() error {
			var rb *firewall.Rollback
			if opts.Rollback && !opts.DryRun {
				rb = firewall.NewRollback(opts.Runner)
				if err := rb.Save(ctx, firewall.Versions...); err != nil {
					return &compiler.PhaseError{Phase: compiler.PhaseConfig, Err: fmt.Errorf("save ruleset: %w", err)}
				}
			}

			var runErr error
			result, runErr = apply(ctx, opts, logger, reg, executors)
			if runErr != nil && rb != nil && compiler.ExitCode(runErr) != compiler.ExitConfig {
				logger.Warn("run failed, restoring previous ruleset", "error", runErr)
				if rerr := rb.Restore(ctx); rerr != nil {
					logger.Error("rollback failed", "error", rerr)
				}
			}
			return runErr
		})
	}
	if err != nil && !isPhaseError(err) {
		err = &compiler.PhaseError{Phase: compiler.PhaseConfig, Err: err}
	}

	code := compiler.ExitCode(err)
	if result != nil {
		printReports(os.Stderr, result)
	}
	logger.Audit("apply", opts.ConfigFile, map[string]any{
		"dry_run":   opts.DryRun,
		"exit_code": code,
		"commands":  len(history.Entries()),
		"duration":  clock.Since(start).String(),
	})

	reg.RecordRun(start, code)
	if opts.MetricsFile != "" {
		if werr := reg.WriteTextfile(opts.MetricsFile); werr != nil {
			logger.Warn("could not write metrics", "path", opts.MetricsFile, "error", werr)
		}
	}
	if opts.HistoryDB != "" {
		if werr := recordHistory(opts, runID, start, code, err, result, history); werr != nil {
			logger.Warn("could not record run history", "path", opts.HistoryDB, "error", werr)
		}
	}
	return err
}

func apply(ctx context.Context, opts ApplyOptions, logger *logging.Logger, reg *metrics.Registry, executors map[firewall.IPVersion]firewall.Executor) (*compiler.Result, error) {
	policy, err := loadPolicy(opts.ConfigFile)
	if err != nil {
		return nil, &compiler.PhaseError{Phase: compiler.PhaseConfig, Err: err}
	}
	resolver, err := newResolver(opts.Resolve)
	if err != nil {
		return nil, &compiler.PhaseError{Phase: compiler.PhaseConfig, Err: err}
	}

	logger.Info("applying policy", "config", opts.ConfigFile, "dry_run", opts.DryRun)
	c := newCompiler(resolver, logger, reg, func(v firewall.IPVersion) firewall.Executor {
		return executors[v]
	})
	return c.Run(ctx, policy)
}

// tee records a command once next has accepted it.
func tee(next, record firewall.Executor) firewall.Executor {
	return firewall.ExecutorFunc(func(ctx context.Context, command string) error {
		if err := next.Execute(ctx, command); err != nil {
			return err
		}
		return record.Execute(ctx, command)
	})
}

func isPhaseError(err error) bool {
	var pe *compiler.PhaseError
	return errors.As(err, &pe)
}

func recordHistory(opts ApplyOptions, runID string, start time.Time, code int, runErr error, result *compiler.Result, rec *firewall.Recorder) error {
	store, err := audit.Open(opts.HistoryDB, 0)
	if err != nil {
		return err
	}
	defer store.Close()

	run := audit.Run{
		ID:       runID,
		Started:  start,
		Finished: clock.Now(),
		Config:   opts.ConfigFile,
		DryRun:   opts.DryRun,
		ExitCode: code,
	}
	if result != nil {
		run.Skipped = result.Skipped()
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	for _, e := range rec.Entries() {
		run.Commands = append(run.Commands, audit.Command{Version: int(e.Version), Text: e.Command})
	}
	if err := store.Write(run); err != nil {
		return err
	}
	_, err = store.Prune(run.Finished)
	return err
}
