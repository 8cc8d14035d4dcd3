// Package compiler turns a ptables policy into ordered firewall commands
// for both IP versions.
//
// A run has three phases: global-begin resets the tables and installs the
// global rules, every service section then appends its rules in file order,
// and global-end adds logging exemptions, the knock sequence and the LOG
// rules. Commands are positional, so this order is the resulting rule order.
package compiler

import (
	"context"
	"errors"
	"fmt"

	"grimm.is/ptables/internal/config"
	"grimm.is/ptables/internal/firewall"
	"grimm.is/ptables/internal/logging"
	"grimm.is/ptables/internal/metrics"
	"grimm.is/ptables/internal/resolve"
)

// Resolver turns configuration tokens into addresses.
type Resolver interface {
	Resolve(ctx context.Context, token string) (resolve.Address, error)
}

// Compiler drives one Backend per IP version.
type Compiler struct {
	backends map[firewall.IPVersion]*firewall.Backend
	resolver Resolver
	logger   *logging.Logger
	metrics  *metrics.Registry
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// WithMetrics records skipped rules in m.
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Compiler) { c.metrics = m }
}

// New creates a compiler for the IPv4 and IPv6 backends.
func New(v4, v6 *firewall.Backend, resolver Resolver, opts ...Option) *Compiler {
	c := &Compiler{
		backends: map[firewall.IPVersion]*firewall.Backend{
			firewall.IPv4: v4,
			firewall.IPv6: v6,
		},
		resolver: resolver,
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("compiler")
	return c
}

func (c *Compiler) backend(v firewall.IPVersion) (*firewall.Backend, error) {
	b := c.backends[v]
	if b == nil {
		return nil, fmt.Errorf("no backend for %s", v)
	}
	return b, nil
}

func (c *Compiler) skipped(reason string) {
	if c.metrics != nil {
		c.metrics.RecordSkipped(reason)
	}
}

func enabledVersions(g config.Global) []firewall.IPVersion {
	var out []firewall.IPVersion
	for _, v := range g.Versions() {
		out = append(out, firewall.IPVersion(v))
	}
	return out
}

// CompileGlobalBegin resets the tables of every enabled version and installs
// the global rules: closed chain policies, established traffic, trusted
// interfaces and the invalid-state drop. Any failure is fatal.
func (c *Compiler) CompileGlobalBegin(ctx context.Context, g config.Global) error {
	for _, v := range enabledVersions(g) {
		b, err := c.backend(v)
		if err != nil {
			return err
		}
		c.logger.Info("setting up global rules", "version", v.String())

		if err := b.Reset(ctx); err != nil {
			return err
		}
		for _, chain := range g.ClosedChains {
			if err := b.SetDefault(ctx, chain, "DROP"); err != nil {
				return err
			}
		}
		if g.AllowEstablished {
			if err := b.AllowEstablished(ctx); err != nil {
				return err
			}
		}
		for _, iface := range g.AllowInterfaces {
			if err := b.AllowOnInterface(ctx, iface); err != nil {
				return err
			}
		}
		if g.DropInvalid {
			if err := b.DropInvalid(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// CompileService installs the rules of one service: one rule per
// (source, destination) combination, on each version whose flag is set and
// which matches every address of the rule. Unresolvable tokens,
// under-specified rules and mixed versions are skipped and reported; only
// executor failures are returned as errors.
func (c *Compiler) CompileService(ctx context.Context, svc config.Service) (*Report, error) {
	report := &Report{Section: svc.Name}
	log := c.logger.With("service", svc.Name)
	log.Info("compiling service")

	sources := svc.Sources
	if len(sources) == 0 {
		sources = []string{""}
	}
	destinations := svc.Destinations
	if len(destinations) == 0 {
		destinations = []string{""}
	}

	for _, src := range sources {
		for _, dst := range destinations {
			report.Attempts++

			source, err := c.resolveOptional(ctx, src)
			if err != nil {
				c.skip(log, report, metrics.ReasonUnresolved, fmt.Errorf("service %s: %w", svc.Name, err))
				continue
			}
			destination, err := c.resolveOptional(ctx, dst)
			if err != nil {
				c.skip(log, report, metrics.ReasonUnresolved, fmt.Errorf("service %s: %w", svc.Name, err))
				continue
			}

			rule, err := firewall.NewRule(firewall.Rule{
				Name:        svc.Name,
				Chain:       svc.Chain,
				Action:      svc.Action,
				Protocol:    svc.Protocol,
				Interface:   svc.Interface,
				Source:      source,
				Destination: destination,
				SourcePort:  svc.SourcePort,
				DestPort:    svc.DestPort,
				Remote:      svc.Remote,
			})
			if err != nil {
				c.skip(log, report, metrics.ReasonUnderSpecified, err)
				continue
			}

			if rule.Version() < 0 {
				c.skip(log, report, metrics.ReasonVersionMismatch,
					fmt.Errorf("service %s: %s and %s: %w", svc.Name, source, destination, ErrVersionMismatch))
				continue
			}

			installed := false
			for _, v := range firewall.Versions {
				if !serviceEnabled(svc, v) || !rule.AppliesTo(v) {
					continue
				}
				b, err := c.backend(v)
				if err != nil {
					return report, err
				}
				if err := b.AddRule(ctx, rule); err != nil {
					return report, err
				}
				report.Installed++
				installed = true
			}
			if !installed {
				log.Debug("rule matches no enabled ip version", "source", src, "destination", dst)
			}
		}
	}

	if c.metrics != nil {
		c.metrics.ServicesTotal.Inc()
	}
	return report, nil
}

func serviceEnabled(svc config.Service, v firewall.IPVersion) bool {
	if v == firewall.IPv6 {
		return svc.IPv6
	}
	return svc.IPv4
}

func (c *Compiler) skip(log *logging.Logger, report *Report, reason string, err error) {
	log.Warn("skipping rule", "reason", reason, "error", err)
	report.add(err)
	c.skipped(reason)
}

// resolveOptional resolves token; an empty token is the unset address.
func (c *Compiler) resolveOptional(ctx context.Context, token string) (resolve.Address, error) {
	if token == "" {
		return resolve.Address{}, nil
	}
	return c.resolver.Resolve(ctx, token)
}

type exemption struct {
	firewall.Exemption
	reason string
	err    error
}

// CompileGlobalEnd installs, for every enabled version, the logging
// exemptions that match the version, the knock sequence when knock is set
// and finally one LOG rule per logged chain. Exemptions that cannot be
// resolved or that match on chain alone are skipped and reported.
func (c *Compiler) CompileGlobalEnd(ctx context.Context, g config.Global, l *config.Logging, knock *firewall.KnockConfig) (*Report, error) {
	report := &Report{Section: config.SectionLogging}
	log := c.logger.With("section", config.SectionLogging)

	var exemptions []exemption
	if l != nil {
		for _, ig := range l.Ignores {
			exemptions = append(exemptions, c.buildExemption(ctx, ig))
		}
		for _, e := range exemptions {
			if e.err != nil {
				c.skip(log, report, e.reason, e.err)
			}
		}
	}

	for _, v := range enabledVersions(g) {
		b, err := c.backend(v)
		if err != nil {
			return report, err
		}

		for _, e := range exemptions {
			if e.err != nil || !e.AppliesTo(v) {
				continue
			}
			report.Attempts++
			if err := b.NoLog(ctx, e.Exemption); err != nil {
				return report, err
			}
			report.Installed++
		}

		if knock != nil {
			if err := b.BuildKnockSequence(ctx, *knock); err != nil {
				return report, err
			}
		}

		if l != nil {
			for _, chain := range l.Chains {
				if err := b.LogChain(ctx, chain, l.Prefix, l.Rate, l.Level); err != nil {
					return report, err
				}
			}
		}
	}
	return report, nil
}

func (c *Compiler) buildExemption(ctx context.Context, ig config.Ignore) exemption {
	e := exemption{Exemption: firewall.Exemption{
		Chain:      ig.Chain,
		Service:    ig.Service,
		Interface:  ig.Interface,
		Protocol:   ig.Protocol,
		SourcePort: ig.SourcePort,
		DestPort:   ig.DestPort,
	}}
	if err := ig.Check(); err != nil {
		e.reason, e.err = metrics.ReasonUnderSpecified, fmt.Errorf("%s: %w", ig.Chain, err)
		return e
	}
	e.reason = metrics.ReasonUnresolved
	var err error
	if e.Source, err = c.resolveOptional(ctx, ig.Source); err != nil {
		e.err = fmt.Errorf("exemption %s on %s: %w", ig.Service, ig.Chain, err)
		return e
	}
	if e.Destination, err = c.resolveOptional(ctx, ig.Destination); err != nil {
		e.err = fmt.Errorf("exemption %s on %s: %w", ig.Service, ig.Chain, err)
	}
	return e
}

// Result summarizes a run.
type Result struct {
	Reports []*Report
}

// Skipped returns the total number of skipped combinations.
func (r *Result) Skipped() int {
	n := 0
	for _, rep := range r.Reports {
		n += rep.Skipped()
	}
	return n
}

// Run compiles a whole policy: global-begin when there is a global section,
// every service in order, then global-end. The returned error is a
// *PhaseError naming the failing phase.
func (c *Compiler) Run(ctx context.Context, p *config.Policy) (*Result, error) {
	result := &Result{}

	if p.Skipped != nil {
		var invalid interface{ WrappedErrors() []error }
		n := 1
		if errors.As(p.Skipped, &invalid) {
			n = len(invalid.WrappedErrors())
		}
		for i := 0; i < n; i++ {
			c.skipped(metrics.ReasonInvalid)
		}
		c.logger.Warn("invalid sections skipped", "error", p.Skipped)
	}

	var knock *firewall.KnockConfig
	if p.Knocking != nil {
		k, err := firewall.NewKnockConfig(p.Knocking.Ports, p.Knocking.SSHPort, p.Knocking.Interface, p.Knocking.Timeout)
		if err != nil {
			return result, &PhaseError{Phase: PhaseConfig, Section: config.SectionKnocking, Err: err}
		}
		knock = &k
	}

	if p.Global != nil {
		if err := c.CompileGlobalBegin(ctx, *p.Global); err != nil {
			if errors.Is(err, firewall.ErrBinaryNotFound) {
				c.logger.Error("firewall binary not found in PATH, are you running as root?")
			}
			return result, &PhaseError{Phase: PhaseGlobalBegin, Err: err}
		}
	}

	for _, svc := range p.Services {
		report, err := c.CompileService(ctx, svc)
		result.Reports = append(result.Reports, report)
		if err != nil {
			return result, &PhaseError{Phase: PhaseServices, Section: svc.Name, Err: err}
		}
	}

	if p.Global != nil {
		report, err := c.CompileGlobalEnd(ctx, *p.Global, p.Logging, knock)
		result.Reports = append(result.Reports, report)
		if err != nil {
			return result, &PhaseError{Phase: PhaseGlobalEnd, Err: err}
		}
	}
	return result, nil
}
