package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"grimm.is/ptables/cmd"
	"grimm.is/ptables/internal/brand"
	"grimm.is/ptables/internal/compiler"
	"grimm.is/ptables/internal/i18n"
	"grimm.is/ptables/internal/logging"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logOpts cmd.LogOptions
	command, args := os.Args[1], os.Args[2:]

	switch command {
	case "apply":
		fs := pflag.NewFlagSet("apply", pflag.ExitOnError)
		opts := cmd.ApplyOptions{}
		fs.StringVarP(&opts.ConfigFile, "config", "c", brand.DefaultConfigPath(), "Configuration file (.hcl, .toml, .yaml)")
		fs.BoolVarP(&opts.DryRun, "dry-run", "n", false, "Print the commands instead of running them")
		fs.StringVar(&opts.Backend, "backend", cmd.BackendExec, "How commands are installed: exec or go-iptables")
		fs.StringVar(&opts.MetricsFile, "metrics-file", "", "Write run metrics to this node_exporter textfile")
		fs.StringVar(&opts.HistoryDB, "history", "", "Record the run in this history database")
		fs.StringVar(&opts.Netns, "netns", "", "Apply inside this named network namespace")
		fs.BoolVar(&opts.Rollback, "rollback", false, "Restore the previous ruleset if a phase fails")
		cmd.AddResolveFlags(fs, &opts.Resolve)
		cmd.AddLogFlags(fs, &logOpts)
		parse(fs, args)
		if fs.NArg() > 0 {
			opts.ConfigFile = fs.Arg(0)
		}

		opts.Logger = setupLogging(logOpts)
		cmd.Exit(cmd.RunApply(ctx, opts))

	case "check":
		fs := pflag.NewFlagSet("check", pflag.ExitOnError)
		opts := cmd.CheckOptions{}
		fs.StringVarP(&opts.ConfigFile, "config", "c", brand.DefaultConfigPath(), "Configuration file")
		fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "Print the generated commands")
		cmd.AddResolveFlags(fs, &opts.Resolve)
		cmd.AddLogFlags(fs, &logOpts)
		parse(fs, args)
		if fs.NArg() > 0 {
			opts.ConfigFile = fs.Arg(0)
		}
		if opts.ConfigFile == "" {
			fmt.Fprintln(os.Stderr, cmd.CheckUsage())
			os.Exit(1)
		}

		opts.Logger = setupLogging(logOpts)
		cmd.Exit(cmd.RunCheck(ctx, opts))

	case "diff":
		fs := pflag.NewFlagSet("diff", pflag.ExitOnError)
		opts := cmd.DiffOptions{}
		fs.IntVarP(&opts.Context, "context", "U", 3, "Lines of context")
		cmd.AddResolveFlags(fs, &opts.Resolve)
		cmd.AddLogFlags(fs, &logOpts)
		parse(fs, args)
		if fs.NArg() != 2 {
			printer.Fprintf(os.Stderr, "usage: %s diff [options] <old-config> <new-config>\n", brand.BinaryName)
			os.Exit(1)
		}
		opts.OldFile, opts.NewFile = fs.Arg(0), fs.Arg(1)

		opts.Logger = setupLogging(logOpts)
		err := cmd.RunDiff(ctx, opts)
		if errors.Is(err, cmd.ErrPoliciesDiffer) {
			os.Exit(1)
		}
		cmd.Exit(err)

	case "sample-config", "--new-config":
		fs := pflag.NewFlagSet("sample-config", pflag.ExitOnError)
		out := fs.StringP("output", "o", "", "Write to this file instead of stdout")
		parse(fs, args)
		if err := cmd.RunSample(os.Stdout, *out); err != nil {
			printer.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "history":
		fs := pflag.NewFlagSet("history", pflag.ExitOnError)
		db := fs.String("db", cmd.DefaultHistoryDB(), "History database")
		limit := fs.IntP("limit", "n", 20, "Number of runs to list")
		parse(fs, args)
		id := ""
		if fs.NArg() > 0 {
			id = fs.Arg(0)
		}
		if err := cmd.RunHistory(os.Stdout, *db, id, *limit); err != nil {
			printer.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "version", "--version", "-V":
		printer.Printf("%s %s (commit %s, built %s)\n", brand.Name, brand.Version, brand.GitCommit, brand.BuildTime)

	case "help", "--help", "-h":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(-compiler.ExitConfig)
	}
}

func parse(fs *pflag.FlagSet, args []string) {
	_ = fs.Parse(args)
	cmd.SetFlagsFromEnv(fs)
}

func setupLogging(opts cmd.LogOptions) *logging.Logger {
	logger, err := cmd.SetupLogging(opts)
	if err != nil {
		printer.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(-compiler.ExitConfig)
	}
	return logger
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  apply          Compile the policy and install it with iptables/ip6tables
                 Options: --config (-c) <file>, --dry-run (-n), --backend exec|go-iptables,
                          --nameserver <addr>, --offline, --metrics-file <path>,
                          --history <db>, --netns <name>, --rollback
  check          Validate a policy and show what it compiles to
                 Options: --config (-c) <file>, --verbose (-v), --offline
  diff           Compare the commands two policies compile to
  sample-config  Print a sample policy (alias: --new-config)
                 Options: --output (-o) <file>
  history        List recorded runs, or the commands of one run
                 Options: --db <path>, --limit (-n) <count>
  version        Show version information

Global options:
  --log-level <level>, --log-json, --log-file <path>
  Every option can also be set as %s_<OPTION>, e.g. %s_METRICS_FILE.

Exit status:
  0 ok, 1 firewall binary missing, 2 global setup failed, 10 service failed,
  15 logging setup failed, 20 configuration error

Examples:
  %s check -v /etc/ptables/ptables.hcl
  %s apply -n -c ptables.toml
  %s sample-config -o /etc/ptables/ptables.hcl
`, brand.Name, brand.Description, brand.BinaryName, brand.ConfigEnvPrefix, brand.ConfigEnvPrefix,
		brand.BinaryName, brand.BinaryName, brand.BinaryName)
}
