package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"grimm.is/ptables/internal/brand"
	"grimm.is/ptables/internal/compiler"
	"grimm.is/ptables/internal/config"
	"grimm.is/ptables/internal/firewall"
	"grimm.is/ptables/internal/logging"
)

// CheckOptions configures RunCheck.
type CheckOptions struct {
	ConfigFile string
	Verbose    bool
	Resolve    ResolveOptions
	Out        io.Writer
	Logger     *logging.Logger
}

// RunCheck validates the configuration file and compiles it without touching
// the host. With Verbose the generated commands are printed.
func RunCheck(ctx context.Context, opts CheckOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	policy, err := loadPolicy(opts.ConfigFile)
	if err != nil {
		return &compiler.PhaseError{Phase: compiler.PhaseConfig, Err: fmt.Errorf("configuration invalid: %w", err)}
	}

	Printer.Fprintf(out, "Configuration valid!\n")
	printSummary(out, policy)

	if policy.Skipped != nil {
		Printer.Fprintf(out, "\nInvalid sections (skipped):\n%v\n", policy.Skipped)
	}

	if missing := missingInterfaces(policyInterfaces(policy)); len(missing) > 0 {
		for _, name := range missing {
			Printer.Fprintf(out, "warning: interface %s does not exist on this host\n", name)
		}
	}

	rec, result, err := compilePolicy(ctx, policy, opts.Resolve, logger, nil)
	if err != nil {
		return err
	}
	printReports(out, result)

	if opts.Verbose {
		Printer.Fprintf(out, "\n--- Generated commands ---\n")
		fmt.Fprint(out, rec.String())

		Printer.Fprintf(out, "\n--- Host ---\n")
		for _, v := range firewall.Versions {
			version, verr := firewall.NewCommandExecutor(v).BinaryVersion(ctx)
			if verr != nil {
				Printer.Fprintf(out, "%s: unavailable (%v)\n", v.Command(), verr)
				continue
			}
			Printer.Fprintf(out, "%s: %s\n", v.Command(), version)
		}
	}
	return nil
}

func printSummary(out io.Writer, p *config.Policy) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	yesNo := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}

	if p.Global != nil {
		fmt.Fprintf(w, "IPv4:\t%s\n", yesNo(p.Global.IPv4))
		fmt.Fprintf(w, "IPv6:\t%s\n", yesNo(p.Global.IPv6))
		fmt.Fprintf(w, "Closed chains:\t%v\n", p.Global.ClosedChains)
		fmt.Fprintf(w, "Port knocking:\t%s\n", yesNo(p.Knocking != nil))
	} else {
		fmt.Fprintf(w, "Global:\tnone (tables are not reset)\n")
	}
	if p.Logging != nil {
		fmt.Fprintf(w, "Logged chains:\t%v\n", p.Logging.Chains)
		fmt.Fprintf(w, "Log exemptions:\t%d\n", len(p.Logging.Ignores))
	}
	fmt.Fprintf(w, "Services:\t%d\n", len(p.Services))
}

// policyInterfaces lists every interface name the policy refers to.
func policyInterfaces(p *config.Policy) []string {
	seen := map[string]bool{}
	add := func(name string) {
		if name != "" {
			seen[name] = true
		}
	}
	if p.Global != nil {
		for _, iface := range p.Global.AllowInterfaces {
			add(iface)
		}
	}
	if p.Knocking != nil {
		add(p.Knocking.Interface)
	}
	if p.Logging != nil {
		for _, ig := range p.Logging.Ignores {
			add(ig.Interface)
		}
	}
	for _, svc := range p.Services {
		add(svc.Interface)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckUsage is printed when check gets no usable arguments.
func CheckUsage() string {
	return fmt.Sprintf("usage: %s check [-v] [--offline] [-c FILE]\nExample: %s check -v %s", brand.BinaryName, brand.BinaryName, brand.DefaultConfigPath())
}
