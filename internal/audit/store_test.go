package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history", "runs.db"), 30)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WriteAndGet(t *testing.T) {
	s := openTemp(t)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	run := Run{
		ID:       "run-1",
		Started:  start,
		Finished: start.Add(2 * time.Second),
		Config:   "/etc/ptables/ptables.hcl",
		ExitCode: 0,
		Skipped:  1,
		Commands: []Command{
			{Version: 4, Text: "-F"},
			{Version: 6, Text: "-F"},
			{Version: 4, Text: "-P INPUT DROP"},
		},
	}
	require.NoError(t, s.Write(run))

	got, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Config, got.Config)
	assert.Equal(t, 1, got.Skipped)
	assert.True(t, start.Equal(got.Started))
	assert.Equal(t, run.Commands, got.Commands)

	n, err := s.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStore_RecentNewestFirst(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		started := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Write(Run{ID: id, Started: started, Finished: started, Config: "p.hcl", ExitCode: -i}))
	}

	runs, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, -2, runs[0].ExitCode)
	assert.Empty(t, runs[0].Commands)
}

func TestStore_DuplicateID(t *testing.T) {
	s := openTemp(t)
	now := time.Now()
	require.NoError(t, s.Write(Run{ID: "x", Started: now, Finished: now, Config: "p.hcl"}))
	assert.Error(t, s.Write(Run{ID: "x", Started: now, Finished: now, Config: "p.hcl"}))
}

func TestStore_Prune(t *testing.T) {
	s := openTemp(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -60)

	require.NoError(t, s.Write(Run{ID: "old", Started: old, Finished: old, Config: "p.hcl",
		Commands: []Command{{Version: 4, Text: "-F"}}}))
	require.NoError(t, s.Write(Run{ID: "new", Started: now, Finished: now, Config: "p.hcl"}))

	removed, err := s.Prune(now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, err = s.Get("old")
	assert.Error(t, err)
	n, err := s.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStore_GetMissing(t *testing.T) {
	s := openTemp(t)
	_, err := s.Get("nope")
	assert.Error(t, err)
}
