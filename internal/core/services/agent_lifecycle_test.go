package services

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const agentOutput = "SSH_AUTH_SOCK=/tmp/ssh-new/agent.99; export SSH_AUTH_SOCK;\nSSH_AGENT_PID=99; export SSH_AGENT_PID;\necho Agent pid 99;\n"

type fakeKeys struct {
	loaded      bool
	addResult   bool
	addCalls    int
	verifyCalls int
}

func (k *fakeKeys) VerifyLoaded(context.Context, string) bool {
	k.verifyCalls++
	return k.loaded
}

func (k *fakeKeys) AddKey(context.Context, string, *domain.Secret) bool {
	k.addCalls++
	if k.addResult {
		k.loaded = true
	}
	return k.addResult
}

// agentRunner answers `ssh-add -l` with listExit and `ssh-agent -s` with spawnExit.
func agentRunner(listExit, spawnExit int, spawnOut string) *fakeRunner {
	return &fakeRunner{handler: func(req ports.CommandRequest) (ports.CommandResult, error) {
		switch req.Name {
		case "ssh-add":
			return ports.CommandResult{ExitCode: listExit}, nil
		case "ssh-agent":
			return ports.CommandResult{ExitCode: spawnExit, Stdout: spawnOut}, nil
		}
		return ports.CommandResult{ExitCode: 127}, nil
	}}
}

type lifecycleFixture struct {
	lc     *agentLifecycle
	runner *fakeRunner
	store  *fakeAgentStore
	keys   *fakeKeys
	env    *fakeEnv
	now    time.Time
}

func newLifecycleFixture(t *testing.T, runner *fakeRunner, store *fakeAgentStore, keys *fakeKeys, reuse bool) *lifecycleFixture {
	env := newFakeEnv()
	now := time.Unix(1800000000, 0)
	lc := NewAgentLifecycle(zaptest.NewLogger(t).Sugar(), runner, store, keys, env, AgentOptions{ReuseAgent: reuse})
	lc.now = func() time.Time { return now }
	return &lifecycleFixture{lc: lc, runner: runner, store: store, keys: keys, env: env, now: now}
}

func cachedInfo(now time.Time, age time.Duration) domain.AgentInfo {
	return domain.NewAgentInfo("/tmp/ssh-old/agent.42", "42", now.Add(-age))
}

func TestAgentLifecycle_ReusesFreshLiveAgentWithKey(t *testing.T) {
	now := time.Unix(1800000000, 0)
	store := &fakeAgentStore{info: cachedInfo(now, time.Hour), present: true}
	f := newLifecycleFixture(t, agentRunner(0, 0, agentOutput), store, &fakeKeys{loaded: true}, true)

	require.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, 0, f.runner.count("ssh-agent"))
	assert.Equal(t, 0, f.keys.addCalls)
	assert.Equal(t, "/tmp/ssh-old/agent.42", f.env.Getenv("SSH_AUTH_SOCK"))
	assert.Equal(t, "42", f.env.Getenv("SSH_AGENT_PID"))
	assert.Equal(t, domain.AgentKeyLoaded, f.lc.State())
	assert.True(t, f.lc.Active())
	assert.Empty(t, store.saved)
}

func TestAgentLifecycle_ReusesAgentWithNoIdentitiesAndLoadsKey(t *testing.T) {
	now := time.Unix(1800000000, 0)
	store := &fakeAgentStore{info: cachedInfo(now, time.Hour), present: true}
	f := newLifecycleFixture(t, agentRunner(1, 0, agentOutput), store, &fakeKeys{addResult: true}, true)

	require.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, 0, f.runner.count("ssh-agent"))
	assert.Equal(t, 1, f.keys.addCalls)
	assert.Equal(t, domain.AgentKeyLoaded, f.lc.State())
}

func TestAgentLifecycle_StaleInfoSpawnsNewAgent(t *testing.T) {
	now := time.Unix(1800000000, 0)
	store := &fakeAgentStore{info: cachedInfo(now, 100000*time.Second), present: true}
	f := newLifecycleFixture(t, agentRunner(0, 0, agentOutput), store, &fakeKeys{addResult: true}, true)

	require.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, 1, f.runner.count("ssh-agent", "-s"))
	assert.Equal(t, 0, f.runner.count("ssh-add", "-l"), "a stale agent is not probed")
	assert.Equal(t, "/tmp/ssh-new/agent.99", f.env.Getenv("SSH_AUTH_SOCK"))
	assert.Equal(t, "99", f.env.Getenv("SSH_AGENT_PID"))

	require.Len(t, store.saved, 1)
	assert.Equal(t, "/tmp/ssh-new/agent.99", store.saved[0].AuthSock)
	assert.Equal(t, "99", store.saved[0].AgentPID)
	assert.Equal(t, runtime.GOOS, store.saved[0].Platform)
	assert.Equal(t, now.Unix(), store.saved[0].CreatedAt().Unix())
}

func TestAgentLifecycle_PlatformMismatchSpawns(t *testing.T) {
	now := time.Unix(1800000000, 0)
	info := cachedInfo(now, time.Minute)
	info.Platform = "plan9-not-" + runtime.GOOS
	store := &fakeAgentStore{info: info, present: true}
	f := newLifecycleFixture(t, agentRunner(0, 0, agentOutput), store, &fakeKeys{addResult: true}, true)

	require.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, 1, f.runner.count("ssh-agent", "-s"))
}

func TestAgentLifecycle_DeadAgentSpawns(t *testing.T) {
	now := time.Unix(1800000000, 0)
	store := &fakeAgentStore{info: cachedInfo(now, time.Hour), present: true}
	f := newLifecycleFixture(t, agentRunner(2, 0, agentOutput), store, &fakeKeys{addResult: true}, true)

	require.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, 1, f.runner.count("ssh-add", "-l"))
	assert.Equal(t, 1, f.runner.count("ssh-agent", "-s"))
	assert.Equal(t, "99", f.env.Getenv("SSH_AGENT_PID"))
}

func TestAgentLifecycle_MissingInfoSpawns(t *testing.T) {
	f := newLifecycleFixture(t, agentRunner(0, 0, agentOutput), &fakeAgentStore{}, &fakeKeys{addResult: true}, true)

	require.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, 1, f.runner.count("ssh-agent", "-s"))
}

func TestAgentLifecycle_SpawnFailureIsTerminal(t *testing.T) {
	keys := &fakeKeys{addResult: true}
	f := newLifecycleFixture(t, agentRunner(0, 1, ""), &fakeAgentStore{}, keys, true)

	assert.False(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, 1, f.runner.count("ssh-agent"))
	assert.Equal(t, 0, keys.addCalls)
	assert.Equal(t, domain.AgentFailed, f.lc.State())
	assert.False(t, f.lc.Active())
}

func TestAgentLifecycle_SpawnOutputWithoutPID(t *testing.T) {
	f := newLifecycleFixture(t, agentRunner(0, 0, "SSH_AUTH_SOCK=/tmp/x; export SSH_AUTH_SOCK;\n"),
		&fakeAgentStore{}, &fakeKeys{addResult: true}, true)

	assert.False(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Empty(t, f.store.saved)
}

func TestAgentLifecycle_PersistFailureIsNotFatal(t *testing.T) {
	store := &fakeAgentStore{saveErr: errors.New("read-only file system")}
	f := newLifecycleFixture(t, agentRunner(0, 0, agentOutput), store, &fakeKeys{addResult: true}, true)

	assert.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Len(t, store.saved, 1)
}

func TestAgentLifecycle_KeyLoadFailure(t *testing.T) {
	f := newLifecycleFixture(t, agentRunner(0, 0, agentOutput), &fakeAgentStore{}, &fakeKeys{addResult: false}, true)

	assert.False(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, domain.AgentFailed, f.lc.State())
}

func TestAgentLifecycle_ReuseDisabled(t *testing.T) {
	now := time.Unix(1800000000, 0)
	store := &fakeAgentStore{info: cachedInfo(now, time.Hour), present: true}
	f := newLifecycleFixture(t, agentRunner(0, 0, agentOutput), store, &fakeKeys{addResult: true}, false)

	require.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, 0, store.loads)
	assert.Equal(t, 1, f.runner.count("ssh-agent", "-s"))
}

func TestAgentLifecycle_SecondCallReusesInProcessAgent(t *testing.T) {
	keys := &fakeKeys{addResult: true}
	f := newLifecycleFixture(t, agentRunner(0, 0, agentOutput), &fakeAgentStore{}, keys, true)

	require.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	require.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, 1, f.runner.count("ssh-agent"))
	assert.Equal(t, 1, keys.addCalls)
}

func TestAgentLifecycle_LoadErrorFallsBackToSpawn(t *testing.T) {
	store := &fakeAgentStore{loadErr: errors.New("permission denied")}
	f := newLifecycleFixture(t, agentRunner(0, 0, agentOutput), store, &fakeKeys{addResult: true}, true)

	assert.True(t, f.lc.ReuseOrStart(context.Background(), "/k"))
	assert.Equal(t, 1, f.runner.count("ssh-agent", "-s"))
}

func TestParseAgentOutput(t *testing.T) {
	vars := ParseAgentOutput(agentOutput)
	assert.Equal(t, map[string]string{
		"SSH_AUTH_SOCK": "/tmp/ssh-new/agent.99",
		"SSH_AGENT_PID": "99",
	}, vars)

	assert.Empty(t, ParseAgentOutput("echo nothing here;\n"))
}
