package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"grimm.is/ptables/internal/brand"
	"grimm.is/ptables/internal/compiler"
	"grimm.is/ptables/internal/config"
	"grimm.is/ptables/internal/firewall"
	"grimm.is/ptables/internal/i18n"
	"grimm.is/ptables/internal/logging"
	"grimm.is/ptables/internal/metrics"
	"grimm.is/ptables/internal/resolve"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// LogOptions are the global logging flags.
type LogOptions struct {
	Level string
	JSON  bool
	File  string
}

// SetupLogging builds the process logger from the global flags and makes it
// the default.
func SetupLogging(opts LogOptions) (*logging.Logger, error) {
	level, err := logging.ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.JSON = opts.JSON
	cfg.File = opts.File

	logging.SetProcessName(brand.BinaryName)
	logger := logging.New(cfg)
	logging.SetDefault(logger)
	return logger, nil
}

// ResolveOptions select how names in the policy are looked up.
type ResolveOptions struct {
	// Nameserver sends queries to this server instead of the host resolver.
	Nameserver string
	// Offline resolves literals only; every name is reported unresolved.
	Offline bool
}

func newResolver(opts ResolveOptions) (*resolve.Resolver, error) {
	switch {
	case opts.Offline:
		return resolve.New(resolve.StaticLookup{}), nil
	case opts.Nameserver != "":
		lookup, err := resolve.NewDNSLookup(opts.Nameserver)
		if err != nil {
			return nil, err
		}
		return resolve.New(lookup), nil
	}
	return resolve.New(nil), nil
}

func loadPolicy(path string) (*config.Policy, error) {
	if path == "" {
		path = brand.DefaultConfigPath()
	}
	store, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return config.NewPolicy(store)
}

// compileToRecorder compiles the policy at path without touching the host
// and returns the recorded commands with the run result.
func compileToRecorder(ctx context.Context, path string, ropts ResolveOptions, logger *logging.Logger, reg *metrics.Registry) (*firewall.Recorder, *compiler.Result, error) {
	policy, err := loadPolicy(path)
	if err != nil {
		return nil, nil, &compiler.PhaseError{Phase: compiler.PhaseConfig, Err: err}
	}
	return compilePolicy(ctx, policy, ropts, logger, reg)
}

// compilePolicy compiles an already loaded policy into a recorder.
func compilePolicy(ctx context.Context, policy *config.Policy, ropts ResolveOptions, logger *logging.Logger, reg *metrics.Registry) (*firewall.Recorder, *compiler.Result, error) {
	resolver, err := newResolver(ropts)
	if err != nil {
		return nil, nil, &compiler.PhaseError{Phase: compiler.PhaseConfig, Err: err}
	}

	rec := firewall.NewRecorder()
	c := newCompiler(resolver, logger, reg, func(v firewall.IPVersion) firewall.Executor {
		return rec.Executor(v)
	})
	result, err := c.Run(ctx, policy)
	return rec, result, err
}

func newCompiler(resolver *resolve.Resolver, logger *logging.Logger, reg *metrics.Registry, executor func(firewall.IPVersion) firewall.Executor) *compiler.Compiler {
	v4 := firewall.NewBackend(firewall.IPv4, executor(firewall.IPv4), resolver, logger)
	v6 := firewall.NewBackend(firewall.IPv6, executor(firewall.IPv6), resolver, logger)
	opts := []compiler.Option{compiler.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, compiler.WithMetrics(reg))
	}
	return compiler.New(v4, v6, resolver, opts...)
}

func printReports(w io.Writer, result *compiler.Result) {
	if result == nil {
		return
	}
	for _, r := range result.Reports {
		if r.Skipped() == 0 {
			continue
		}
		for _, p := range r.Problems() {
			Printer.Fprintf(w, "warning: %s: %v\n", r.Section, p)
		}
	}
}

// Exit terminates the process with the status for err: the negated
// compiler.ExitCode, so -20 exits with 20.
func Exit(err error) {
	code := compiler.ExitCode(err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", brand.BinaryName, err)
	}
	os.Exit(-code)
}
