package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHCL = `
defaults {
  chain  = "INPUT"
  action = "ACCEPT"
  ipv4   = true
  ipv6   = true
}

global {
  closed_chains             = ["INPUT", "FORWARD"]
  allow_established_traffic = true
}

logging {
  level        = 4
  log          = "INPUT"
  ignore_INPUT = ["Dropbox, , udp, , , 17500, 17500"]
}

service "ssh" {
  protocol = "tcp"
  dport    = 22
}

service "web server" {
  protocol = "tcp"
  source   = ["10.0.0.0/8", "192.0.2.1"]
  dport    = "80"
  ipv6     = false
}
`

const testTOML = `
[DEFAULT]
chain = "INPUT"
action = "ACCEPT"
ipv4 = true
ipv6 = true

[global]
closed_chains = ["INPUT", "FORWARD"]
allow_established_traffic = true

[logging]
level = 4
log = "INPUT"
ignore_INPUT = ["Dropbox, , udp, , , 17500, 17500"]

[ssh]
protocol = "tcp"
dport = 22

["web server"]
protocol = "tcp"
source = ["10.0.0.0/8", "192.0.2.1"]
dport = "80"
ipv6 = false
`

const testYAML = `
defaults:
  chain: INPUT
  action: ACCEPT
  ipv4: true
  ipv6: true
global:
  closed_chains: [INPUT, FORWARD]
  allow_established_traffic: true
logging:
  level: 4
  log: INPUT
  ignore_INPUT:
    - "Dropbox, , udp, , , 17500, 17500"
ssh:
  protocol: tcp
  dport: 22
web server:
  protocol: tcp
  source: [10.0.0.0/8, 192.0.2.1]
  dport: "80"
  ipv6: false
`

func TestLoaders_Equivalent(t *testing.T) {
	fromHCL, err := LoadHCL([]byte(testHCL), "test.hcl")
	require.NoError(t, err)
	fromTOML, err := LoadTOML([]byte(testTOML), "test.toml")
	require.NoError(t, err)
	fromYAML, err := LoadYAML([]byte(testYAML), "test.yaml")
	require.NoError(t, err)

	assert.Equal(t, fromHCL, fromTOML)
	assert.Equal(t, fromHCL, fromYAML)

	assert.Equal(t, []string{"global", "logging", "ssh", "web server"}, fromHCL.Sections())
	assert.Equal(t, []string{"ssh", "web server"}, fromHCL.ServiceSections())
	assert.Equal(t, []string{"protocol", "source", "dport", "ipv6"}, fromHCL.Section("web server").Keys())
	assert.Equal(t, "22", fromHCL.GetString("ssh", "dport", ""))
	assert.Equal(t, "INPUT", fromHCL.GetString("ssh", "chain", ""))
}

func TestLoadHCL_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `global {`},
		{"top-level attribute", `ipv4 = true`},
		{"service without label", `service { protocol = "tcp" }`},
		{"label on reserved block", `global "x" {}`},
		{"unknown block", `firewall { }`},
		{"nested block", "service \"ssh\" {\n  inner {}\n}"},
		{"duplicate service", "service \"ssh\" {}\nservice \"ssh\" {}"},
		{"object value", `service "ssh" { dport = { a = 1 } }`},
		{"variable reference", `service "ssh" { dport = port }`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadHCL([]byte(tc.src), "bad.hcl")
			assert.Error(t, err)
		})
	}
}

func TestLoadTOML_Errors(t *testing.T) {
	for _, src := range []string{
		`ipv4 = true`,
		"[a.b]\nc = 1",
		"[ssh]\ndport = 2020-01-01",
		"[ssh",
	} {
		_, err := LoadTOML([]byte(src), "bad.toml")
		assert.Error(t, err, src)
	}
}

func TestLoadYAML_Errors(t *testing.T) {
	for _, src := range []string{
		"ssh: [a, b]",
		"ssh:\n  dport: {a: 1}",
		"ssh: {\n",
	} {
		_, err := LoadYAML([]byte(src), "bad.yaml")
		assert.Error(t, err, src)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	for _, path := range []string{
		write("ptables.hcl", testHCL),
		write("ptables.toml", testTOML),
		write("ptables.yml", testYAML),
	} {
		store, err := LoadFile(path)
		require.NoError(t, err, path)
		assert.Len(t, store.ServiceSections(), 2, path)
	}

	_, err := LoadFile(filepath.Join(dir, "missing.hcl"))
	assert.Error(t, err)

	assert.Equal(t, FormatHCL, FormatOf("/etc/ptables/ptables"))
	assert.Equal(t, FormatTOML, FormatOf("a.TOML"))
	_, err = Load(nil, "x", Format("ini"))
	assert.Error(t, err)
}
