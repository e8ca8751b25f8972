package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixedIdentity struct {
	path     string
	resolved []string
}

func (f *fixedIdentity) Resolve(host string) (string, IdentitySource) {
	f.resolved = append(f.resolved, host)
	return f.path, IdentityFromHostConfig
}

type fakeAgent struct {
	ok     bool
	active bool
	keys   []string
}

func (a *fakeAgent) ReuseOrStart(_ context.Context, identity string) bool {
	a.keys = append(a.keys, identity)
	return a.ok
}

func (a *fakeAgent) Active() bool { return a.active }

func probeRunner(exit int, err error) *fakeRunner {
	return &fakeRunner{handler: func(ports.CommandRequest) (ports.CommandResult, error) {
		return ports.CommandResult{ExitCode: exit}, err
	}}
}

func newTestAuthenticator(t *testing.T, runner *fakeRunner, agent *fakeAgent, opts map[string]string) (*sshAuthenticator, *fixedIdentity) {
	fs := afero.NewMemMapFs()
	key := testSSHDir + "/id_ed25519"
	touch(t, fs, key)
	ids := &fixedIdentity{path: key}
	return NewSSHAuthenticator(zaptest.NewLogger(t).Sugar(), fs, runner, ids, agent, opts), ids
}

func TestSSHAuthenticator_SetupSSH(t *testing.T) {
	runner := probeRunner(1, nil)
	agent := &fakeAgent{ok: true}
	a, _ := newTestAuthenticator(t, runner, agent, nil)

	assert.True(t, a.SetupSSH(context.Background(), "github.com"))
	assert.Equal(t, []string{testSSHDir + "/id_ed25519"}, agent.keys)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "ssh", runner.calls[0].Name)
	assert.Equal(t, []string{"-T", "-o", "StrictHostKeyChecking=no", "-o", "BatchMode=yes", "git@github.com"}, runner.calls[0].Args)
	assert.Equal(t, connectionTestTimeout, runner.calls[0].Timeout)
}

func TestSSHAuthenticator_SetupSSHRejectsBadHost(t *testing.T) {
	runner := probeRunner(0, nil)
	agent := &fakeAgent{ok: true}
	a, ids := newTestAuthenticator(t, runner, agent, nil)

	for _, host := range []string{"", "bad host", "-oProxyCommand=x", "a..b"} {
		assert.False(t, a.SetupSSH(context.Background(), host), host)
	}
	assert.Empty(t, ids.resolved)
	assert.Empty(t, agent.keys)
	assert.Empty(t, runner.calls)
}

func TestSSHAuthenticator_SetupSSHMissingIdentity(t *testing.T) {
	runner := probeRunner(0, nil)
	agent := &fakeAgent{ok: true}
	a, ids := newTestAuthenticator(t, runner, agent, nil)
	ids.path = testSSHDir + "/id_missing"

	assert.False(t, a.SetupSSH(context.Background(), "github.com"))
	assert.Empty(t, agent.keys)
	assert.Empty(t, runner.calls)
}

func TestSSHAuthenticator_SetupSSHAgentFailure(t *testing.T) {
	runner := probeRunner(0, nil)
	a, _ := newTestAuthenticator(t, runner, &fakeAgent{ok: false}, nil)

	assert.False(t, a.SetupSSH(context.Background(), "github.com"))
	assert.Empty(t, runner.calls)
}

func TestSSHAuthenticator_TestSSHConnection(t *testing.T) {
	tests := []struct {
		name string
		exit int
		err  error
		want bool
	}{
		{"authenticated shell", 0, nil, true},
		{"git server greeting", 1, nil, true},
		{"permission denied", 255, nil, false},
		{"exit two", 2, nil, false},
		{"timeout", -1, fmt.Errorf("ssh: %w", domain.ErrCommandTimeout), false},
		{"not installed", -1, fmt.Errorf("exec: not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAuthenticator(t, probeRunner(tt.exit, tt.err), &fakeAgent{ok: true}, nil)
			assert.Equal(t, tt.want, a.TestSSHConnection(context.Background(), "gitlab.com"))
		})
	}
}

func TestSSHAuthenticator_AgentActive(t *testing.T) {
	a, _ := newTestAuthenticator(t, probeRunner(0, nil), &fakeAgent{active: true}, nil)
	assert.True(t, a.AgentActive())
}

func TestSSHAuthenticator_GitSSHCommand(t *testing.T) {
	opts := map[string]string{
		"ServerAliveInterval": "60",
		"Compression":         "yes",
		"Broken":              " ",
	}
	a, _ := newTestAuthenticator(t, probeRunner(1, nil), &fakeAgent{ok: true}, opts)

	cmd, err := a.GitSSHCommand(context.Background(), "github.com")
	require.NoError(t, err)
	assert.Equal(t, "ssh -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -o LogLevel=ERROR"+
		" -i "+testSSHDir+"/id_ed25519 -o Compression=yes -o ServerAliveInterval=60", cmd)
}

func TestSSHAuthenticator_GitSSHCommandErrors(t *testing.T) {
	a, _ := newTestAuthenticator(t, probeRunner(1, nil), &fakeAgent{ok: true}, nil)
	_, err := a.GitSSHCommand(context.Background(), "not a host")
	assert.ErrorIs(t, err, domain.ErrInvalidHostname)

	a, ids := newTestAuthenticator(t, probeRunner(1, nil), &fakeAgent{ok: true}, nil)
	ids.path = "/nowhere/key"
	_, err = a.GitSSHCommand(context.Background(), "github.com")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	a, _ = newTestAuthenticator(t, probeRunner(255, nil), &fakeAgent{ok: true}, nil)
	_, err = a.GitSSHCommand(context.Background(), "github.com")
	assert.Error(t, err)
}

func TestSSHAuthenticator_SSHCommandSkipsSetup(t *testing.T) {
	runner := probeRunner(1, nil)
	agent := &fakeAgent{ok: true}
	a, ids := newTestAuthenticator(t, runner, agent, map[string]string{"Compression": "yes"})

	cmd, err := a.SSHCommand("github.com")
	require.NoError(t, err)
	assert.Equal(t, "ssh -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -o LogLevel=ERROR"+
		" -i "+testSSHDir+"/id_ed25519 -o Compression=yes", cmd)
	assert.Empty(t, runner.calls)
	assert.Empty(t, agent.keys)

	_, err = a.SSHCommand("bad host")
	assert.ErrorIs(t, err, domain.ErrInvalidHostname)
	ids.path = "/nowhere/key"
	_, err = a.SSHCommand("github.com")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
}
