package compiler

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ptables/internal/config"
	"grimm.is/ptables/internal/firewall"
	"grimm.is/ptables/internal/logging"
	"grimm.is/ptables/internal/metrics"
	"grimm.is/ptables/internal/resolve"
)

type harness struct {
	rec      *firewall.Recorder
	compiler *Compiler
	metrics  *metrics.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	lookup := resolve.StaticLookup{
		Hosts: map[string][]netip.Addr{
			"admin.example.org": {netip.MustParseAddr("192.0.2.10")},
			"six.example.org":   {netip.MustParseAddr("2001:db8::6")},
		},
		Names: map[netip.Addr][]string{
			netip.MustParseAddr("192.0.2.10"): {"admin.example.org."},
		},
	}
	r := resolve.New(lookup)
	rec := firewall.NewRecorder()
	m := metrics.New()
	v4 := firewall.NewBackend(firewall.IPv4, rec.Executor(firewall.IPv4), r, logging.Discard())
	v6 := firewall.NewBackend(firewall.IPv6, rec.Executor(firewall.IPv6), r, logging.Discard())
	return &harness{
		rec:      rec,
		compiler: New(v4, v6, r, WithLogger(logging.Discard()), WithMetrics(m)),
		metrics:  m,
	}
}

func loadPolicy(t *testing.T, src string) *config.Policy {
	t.Helper()
	store, err := config.LoadHCL([]byte(src), "test.hcl")
	require.NoError(t, err)
	p, err := config.NewPolicy(store)
	require.NoError(t, err)
	return p
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t)
	p := loadPolicy(t, `
defaults {
  chain  = "INPUT"
  action = "ACCEPT"
  ipv4   = true
  ipv6   = true
}

global {
  closed_chains              = ["INPUT", "FORWARD"]
  allow_established_traffic  = true
  allow_traffic_on_interface = "lo"
  drop_invalid_traffic       = true
  ssh_knocking               = true
}

logging {
  rate         = "2/sec"
  prefix       = "blocked: "
  log          = "INPUT"
  ignore_INPUT = ["Netbios NS, eth0, udp, 10.0.0.150, , 137, 137", "Dropbox, , udp, , , 17500, 17500"]
}

ssh_knocking {
  ports = [777, 888]
}

service "ssh" {
  protocol = "tcp"
  source   = ["admin.example.org", "2001:db8::/64"]
  dport    = 22
}
`)

	result, err := h.compiler.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Skipped())
	assert.Equal(t, ExitOK, ExitCode(err))

	want4 := []string{
		"-F", "-X", "-t nat -F", "-t nat -X", "-t mangle -F", "-t mangle -X",
		"-P INPUT ACCEPT", "-P OUTPUT ACCEPT", "-P FORWARD ACCEPT",
		"-P INPUT DROP",
		"-P FORWARD DROP",
		`-A INPUT -m conntrack --ctstate RELATED,ESTABLISHED -m comment --comment "Allow already authenticated traffic" -j ACCEPT`,
		`-A INPUT -i lo -m comment --comment "Allow traffic on lo" -j ACCEPT`,
		`-A INPUT -m conntrack --ctstate INVALID -m comment --comment "Drop invalid traffic" -j DROP`,
		`-A INPUT -m tcp -p tcp --src 192.0.2.10 --dport 22 -m comment --comment "Allow admin.example.org to connect to ssh" -j ACCEPT`,
		`-A INPUT -i eth0 -m udp -p udp --src 10.0.0.150 --sport 137 --dport 137 -m comment --comment "Drop Netbios NS before logging" -j DROP`,
		`-A INPUT -m udp -p udp --sport 17500 --dport 17500 -m comment --comment "Drop Dropbox before logging" -j DROP`,
	}
	knock, err := firewall.NewKnockConfig([]int{777, 888}, 22, "", 30)
	require.NoError(t, err)
	want4 = append(want4, firewall.KnockCommands(knock)...)
	want4 = append(want4, `-A INPUT -m comment --comment "Log remaining traffic" -j LOG --log-prefix "blocked: " --log-level 4 -m limit --limit 2/sec`)
	assert.Equal(t, want4, h.rec.Commands(firewall.IPv4))

	cmds6 := h.rec.Commands(firewall.IPv6)
	assert.Len(t, cmds6, len(want4)-2-1, "no nat reset, no v4-only exemption on ipv6")
	assert.Contains(t, cmds6, `-A INPUT -m tcp -p tcp --src 2001:db8::/64 --dport 22 -m comment --comment "Allow 2001:db8::/64 to connect to ssh" -j ACCEPT`)
	assert.NotContains(t, strings.Join(cmds6, "\n"), "Netbios")
	assert.Contains(t, cmds6, `-A INPUT -m udp -p udp --sport 17500 --dport 17500 -m comment --comment "Drop Dropbox before logging" -j DROP`)

	assert.Equal(t, float64(len(want4)+len(cmds6)), float64(len(h.rec.Entries())))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ServicesTotal))
}

func TestCompileService_CrossProduct(t *testing.T) {
	h := newHarness(t)
	svc := config.Service{
		Name:         "backup",
		Chain:        "OUTPUT",
		Action:       "ACCEPT",
		Protocol:     "tcp",
		Sources:      []string{"192.0.2.1", "six.example.org", "nowhere.invalid"},
		Destinations: []string{"198.51.100.0/24", "2001:db8::/32"},
		DestPort:     "873",
		IPv4:         true,
		IPv6:         true,
	}

	report, err := h.compiler.CompileService(context.Background(), svc)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Attempts)
	assert.Equal(t, 2, report.Installed)
	assert.Equal(t, 4, report.Skipped())

	var mismatches, unresolved int
	for _, p := range report.Problems() {
		switch {
		case errors.Is(p, ErrVersionMismatch):
			mismatches++
		case errors.Is(p, resolve.ErrUnresolved):
			unresolved++
		}
	}
	assert.Equal(t, 2, mismatches)
	assert.Equal(t, 2, unresolved)

	assert.Equal(t, []string{
		`-A OUTPUT -m tcp -p tcp --dst 198.51.100.0/24 --src 192.0.2.1 --dport 873 -m comment --comment "Allow to connect to backup on 198.51.100.0/24" -j ACCEPT`,
	}, h.rec.Commands(firewall.IPv4))
	assert.Equal(t, []string{
		`-A OUTPUT -m tcp -p tcp --dst 2001:db8::/32 --src 2001:db8::6 --dport 873 -m comment --comment "Allow to connect to backup on 2001:db8::/32" -j ACCEPT`,
	}, h.rec.Commands(firewall.IPv6))

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.RulesSkipped.WithLabelValues(metrics.ReasonUnresolved)))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.RulesSkipped.WithLabelValues(metrics.ReasonVersionMismatch)))
}

func TestCompileService_VersionFlags(t *testing.T) {
	tests := []struct {
		name       string
		ipv4, ipv6 bool
		sources    []string
		want4      int
		want6      int
	}{
		{"no addresses both versions", true, true, nil, 1, 1},
		{"ipv4 only", true, false, nil, 1, 0},
		{"ipv6 only", false, true, nil, 0, 1},
		{"v4 address with ipv6 flag", false, true, []string{"192.0.2.1"}, 0, 0},
		{"mapped literal stays ipv6", true, true, []string{"::ffff:192.0.2.1"}, 0, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			svc := config.Service{Name: "web", Chain: "INPUT", Action: "ACCEPT", DestPort: "80",
				Sources: tc.sources, IPv4: tc.ipv4, IPv6: tc.ipv6}

			report, err := h.compiler.CompileService(context.Background(), svc)
			require.NoError(t, err)
			assert.Zero(t, report.Skipped())
			assert.Len(t, h.rec.Commands(firewall.IPv4), tc.want4)
			assert.Len(t, h.rec.Commands(firewall.IPv6), tc.want6)
		})
	}
}

func TestCompileService_UnderSpecified(t *testing.T) {
	h := newHarness(t)
	report, err := h.compiler.CompileService(context.Background(),
		config.Service{Name: "empty", Chain: "INPUT", Action: "ACCEPT", IPv4: true, IPv6: true})
	require.NoError(t, err)

	require.Equal(t, 1, report.Skipped())
	assert.ErrorIs(t, report.Err(), firewall.ErrUnderSpecified)
	assert.Empty(t, h.rec.Entries())
	assert.Contains(t, report.String(), "1 skipped")
}

func TestRun_ExitCodes(t *testing.T) {
	const policy = `
defaults {
  ipv4 = true
}
global {
  closed_chains = "INPUT"
}
logging {
  log = "INPUT"
}
service "ssh" {
  chain    = "INPUT"
  action   = "ACCEPT"
  protocol = "tcp"
  dport    = 22
}
`
	tests := []struct {
		name  string
		fail  func(v firewall.IPVersion, command string) error
		phase Phase
		code  int
	}{
		{
			name: "binary missing",
			fail: func(firewall.IPVersion, string) error {
				return &firewall.ExecError{Binary: "iptables", NotFound: true}
			},
			phase: PhaseGlobalBegin,
			code:  ExitBinaryMissing,
		},
		{
			name: "global setup failure",
			fail: func(_ firewall.IPVersion, command string) error {
				if command == "-P INPUT DROP" {
					return &firewall.ExecError{Binary: "iptables", Command: command, ExitCode: 1, Err: errors.New("bad")}
				}
				return nil
			},
			phase: PhaseGlobalBegin,
			code:  ExitGlobalBegin,
		},
		{
			name: "service failure",
			fail: func(_ firewall.IPVersion, command string) error {
				if strings.Contains(command, "--dport 22") {
					return errors.New("rejected")
				}
				return nil
			},
			phase: PhaseServices,
			code:  ExitService,
		},
		{
			name: "log rule failure",
			fail: func(_ firewall.IPVersion, command string) error {
				if strings.Contains(command, "-j LOG") {
					return errors.New("no LOG target")
				}
				return nil
			},
			phase: PhaseGlobalEnd,
			code:  ExitGlobalEnd,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.rec.Fail = tc.fail

			_, err := h.compiler.Run(context.Background(), loadPolicy(t, policy))
			var pe *PhaseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.phase, pe.Phase)
			assert.Equal(t, tc.code, ExitCode(err))
		})
	}
}

func TestRun_KnockConfigError(t *testing.T) {
	h := newHarness(t)
	p := loadPolicy(t, "global { ssh_knocking = true }\nssh_knocking { ports = [777, 777] }")

	_, err := h.compiler.Run(context.Background(), p)
	assert.Equal(t, ExitConfig, ExitCode(err))
	assert.Empty(t, h.rec.Entries(), "nothing is installed when the knock sequence is invalid")
}

func TestRun_WithoutGlobal(t *testing.T) {
	h := newHarness(t)
	p := loadPolicy(t, `
service "dns" {
  chain    = "INPUT"
  action   = "ACCEPT"
  protocol = "udp"
  dport    = 53
  ipv4     = true
}
service "broken" {
  protocol = "bogus"
}
`)
	result, err := h.compiler.Run(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, result.Reports, 1)
	assert.Equal(t, []string{
		`-A INPUT -m udp -p udp --dport 53 -m comment --comment "Allow Anyone to connect to dns" -j ACCEPT`,
	}, h.rec.Commands(firewall.IPv4))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RulesSkipped.WithLabelValues(metrics.ReasonInvalid)))
}

func TestCompileGlobalEnd_UnresolvedExemption(t *testing.T) {
	h := newHarness(t)
	g := config.Global{IPv4: true}
	l := &config.Logging{
		Chains: []string{"INPUT"},
		Level:  -1,
		Ignores: []config.Ignore{
			{Chain: "INPUT", Service: "ghost", Source: "ghost.invalid"},
			{Chain: "INPUT", Service: "six", Destination: "six.example.org"},
		},
	}

	report, err := h.compiler.CompileGlobalEnd(context.Background(), g, l, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped())
	assert.Equal(t, []string{
		`-A INPUT -m comment --comment "Log remaining traffic" -j LOG`,
	}, h.rec.Commands(firewall.IPv4))
}

func TestCompileGlobalEnd_ExemptionWithoutMatch(t *testing.T) {
	h := newHarness(t)
	g := config.Global{IPv4: true}
	l := &config.Logging{
		Chains:  []string{"INPUT"},
		Level:   -1,
		Ignores: []config.Ignore{{Chain: "INPUT", Service: "noisy"}},
	}

	report, err := h.compiler.CompileGlobalEnd(context.Background(), g, l, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped())
	assert.ErrorIs(t, report.Err(), firewall.ErrUnderSpecified)
	assert.Equal(t, []string{
		`-A INPUT -m comment --comment "Log remaining traffic" -j LOG`,
	}, h.rec.Commands(firewall.IPv4))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RulesSkipped.WithLabelValues(metrics.ReasonUnderSpecified)))
}

func TestRun_ExemptionWithoutMatchKeepsKnocking(t *testing.T) {
	h := newHarness(t)
	p := loadPolicy(t, `
global {
  ipv4         = true
  ssh_knocking = true
}
logging {
  log          = "INPUT"
  ignore_INPUT = "noisy; quiet, , , , , ,"
}
ssh_knocking {
  ports = [777, 888]
}
`)
	require.Error(t, p.Skipped)

	_, err := h.compiler.Run(context.Background(), p)
	require.NoError(t, err)

	cmds := h.rec.Commands(firewall.IPv4)
	for _, cmd := range cmds {
		assert.NotContains(t, cmd, "before logging", "no exemption may be installed")
	}
	knock, err := firewall.NewKnockConfig([]int{777, 888}, 22, "", 30)
	require.NoError(t, err)
	for _, cmd := range firewall.KnockCommands(knock) {
		assert.Contains(t, cmds, cmd)
	}
	assert.Equal(t, `-A INPUT -m comment --comment "Log remaining traffic" -j LOG --log-level 4`, cmds[len(cmds)-1])
}

func TestPhaseError(t *testing.T) {
	err := &PhaseError{Phase: PhaseServices, Section: "ssh", Err: firewall.ErrBinaryNotFound}
	assert.Equal(t, "services phase, section ssh: firewall binary not found", err.Error())
	assert.ErrorIs(t, err, firewall.ErrBinaryNotFound)
	assert.Equal(t, ExitService, err.ExitCode())
	assert.Equal(t, ExitConfig, ExitCode(errors.New("other")))
	assert.Equal(t, ExitOK, ExitCode(nil))
}
