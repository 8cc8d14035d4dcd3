package firewall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandExecutor(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Run", "iptables", "-A", "INPUT", "-i", "lo", "-m", "comment", "--comment", "Allow traffic on lo", "-j", "ACCEPT").
		Return(nil).Once()

	e := &CommandExecutor{Version: IPv4, Runner: runner}
	err := e.Execute(context.Background(), `-A INPUT -i lo -m comment --comment "Allow traffic on lo" -j ACCEPT`)
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestCommandExecutor_BinaryNotFound(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Run", "ip6tables", "-F").Return(fmt.Errorf("command ip6tables failed: %w", exec.ErrNotFound))

	e := &CommandExecutor{Version: IPv6, Runner: runner}
	err := e.Execute(context.Background(), "-F")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBinaryNotFound)
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "ip6tables", execErr.Binary)
}

func TestCommandExecutor_ExitStatus(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	exitErr := func(code int) error {
		return exec.Command(sh, "-c", fmt.Sprintf("exit %d", code)).Run()
	}

	tests := []struct {
		code     int
		notFound bool
		locked   bool
	}{
		{1, false, false},
		{4, false, true},
		{127, true, false},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			runner := new(MockCommandRunner)
			runner.On("Run", "iptables", "-X").Return(exitErr(tc.code))

			err := (&CommandExecutor{Version: IPv4, Runner: runner}).Execute(context.Background(), "-X")
			var execErr *ExecError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, tc.code, execErr.ExitCode)
			assert.Equal(t, tc.notFound, errors.Is(err, ErrBinaryNotFound))
			assert.Equal(t, tc.locked, errors.Is(err, ErrLocked))
		})
	}
}

func TestCommandExecutor_BinaryVersion(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Output", "iptables", "--version").Return([]byte("iptables v1.8.10 (nf_tables)\n"), nil)

	v, err := (&CommandExecutor{Version: IPv4, Runner: runner}).BinaryVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "iptables v1.8.10 (nf_tables)", v)

	runner = new(MockCommandRunner)
	runner.On("Output", "ip6tables", "--version").Return(nil, exec.ErrNotFound)
	_, err = (&CommandExecutor{Version: IPv6, Runner: runner}).BinaryVersion(context.Background())
	assert.ErrorIs(t, err, ErrBinaryNotFound)
}

func TestPrintExecutor(t *testing.T) {
	var buf bytes.Buffer
	b := NewBackend(IPv6, &PrintExecutor{Out: &buf, Version: IPv6}, nil, nil)

	require.NoError(t, b.SetDefault(context.Background(), "FORWARD", "DROP"))
	assert.Equal(t, "ip6tables -P FORWARD DROP\n", buf.String())
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()

	require.NoError(t, rec.Executor(IPv4).Execute(ctx, "-F"))
	require.NoError(t, rec.Executor(IPv6).Execute(ctx, "-F"))
	require.NoError(t, rec.Executor(IPv4).Execute(ctx, "-X"))

	assert.Equal(t, []string{"-F", "-X"}, rec.Commands(IPv4))
	assert.Equal(t, []string{"-F"}, rec.Commands(IPv6))
	assert.Equal(t, "iptables -F\nip6tables -F\niptables -X\n", rec.String())
	assert.Empty(t, NewRecorder().String())
}

func TestExecError(t *testing.T) {
	err := &ExecError{Binary: "iptables", Command: "-F", ExitCode: 2, Err: errors.New("bad")}
	assert.Equal(t, "iptables -F: exit status 2: bad", err.Error())
	assert.NotErrorIs(t, err, ErrBinaryNotFound)

	missing := &ExecError{Binary: "ip6tables", NotFound: true}
	assert.Contains(t, missing.Error(), ErrBinaryNotFound.Error())
}
