package cmd

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFlagsFromEnv(t *testing.T) {
	t.Setenv("PTABLES_METRICS_FILE", "/tmp/ptables.prom")
	t.Setenv("PTABLES_LOG_LEVEL", "debug")
	t.Setenv("PTABLES_OFFLINE", "not-a-bool")

	fs := pflag.NewFlagSet("apply", pflag.ContinueOnError)
	var logOpts LogOptions
	var resolveOpts ResolveOptions
	AddLogFlags(fs, &logOpts)
	AddResolveFlags(fs, &resolveOpts)
	metricsFile := fs.String("metrics-file", "", "")

	require.NoError(t, fs.Parse([]string{"--log-level", "warn"}))
	SetFlagsFromEnv(fs)

	assert.Equal(t, "/tmp/ptables.prom", *metricsFile)
	assert.Equal(t, "warn", logOpts.Level, "command line wins over environment")
	assert.False(t, resolveOpts.Offline)
}

func TestFlagNameToUpper(t *testing.T) {
	assert.Equal(t, "METRICS_FILE", flagNameToUpper("metrics-file"))
	assert.Equal(t, "LOG_JSON", flagNameToUpper("log-json"))
}
