package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ptables/internal/clock"
	"grimm.is/ptables/internal/firewall"
)

func TestExecutorCountsCommands(t *testing.T) {
	r := New()
	fail := errors.New("boom")
	next := firewall.ExecutorFunc(func(_ context.Context, command string) error {
		if command == "-X" {
			return fail
		}
		return nil
	})

	exec := r.Executor(firewall.IPv6, next)
	ctx := context.Background()
	require.NoError(t, exec.Execute(ctx, "-F"))
	require.NoError(t, exec.Execute(ctx, "-P INPUT ACCEPT"))
	assert.ErrorIs(t, exec.Execute(ctx, "-X"), fail)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.CommandsTotal.WithLabelValues("ipv6", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CommandsTotal.WithLabelValues("ipv6", "error")))
}

func TestRecordRun(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	old := clock.System
	clock.System = clock.NewStepClock(start.Add(1500*time.Millisecond), 0)
	t.Cleanup(func() { clock.System = old })

	r := New()
	r.RecordSkipped(ReasonUnresolved)
	r.RecordSkipped(ReasonUnresolved)
	r.RecordRun(start, -10)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.RulesSkipped.WithLabelValues(ReasonUnresolved)))
	assert.Equal(t, 1.5, testutil.ToFloat64(r.LastRunDuration))
	assert.Equal(t, -10.0, testutil.ToFloat64(r.LastRunExitCode))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.LastRunSuccess))
	assert.Equal(t, float64(start.Unix()+1), testutil.ToFloat64(r.LastRunTimestamp))

	r.RecordRun(start, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.LastRunSuccess))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ServicesTotal.Add(3)

	path := filepath.Join(t.TempDir(), "ptables.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ptables_services_total 3")

	assert.Error(t, r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")))
}
