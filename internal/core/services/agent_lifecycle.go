// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"go.uber.org/zap"
)

const (
	sshAgentBinary = "ssh-agent"

	agentSpawnTimeout = 10 * time.Second
	agentProbeTimeout = 5 * time.Second

	// ssh-add -l exits 1 when the agent holds no identities and 2 when it cannot be reached.
	sshAddNoIdentities = 1
)

var agentOutputLine = regexp.MustCompile(`^\s*(SSH_AUTH_SOCK|SSH_AGENT_PID)=([^;]+);`)

type AgentOptions struct {
	Expiration time.Duration
	ReuseAgent bool
}

type agentLifecycle struct {
	logger *zap.SugaredLogger
	runner ports.CommandRunner
	store  ports.AgentInfoStore
	keys   ports.KeyLoader
	env    ports.Environment
	now    func() time.Time

	expiration time.Duration
	reuse      bool

	state   domain.AgentState
	started bool
}

// NewAgentLifecycle creates the reuse-or-start manager for one process.
func NewAgentLifecycle(logger *zap.SugaredLogger, runner ports.CommandRunner, store ports.AgentInfoStore,
	keys ports.KeyLoader, env ports.Environment, opts AgentOptions,
) *agentLifecycle {
	if opts.Expiration <= 0 {
		opts.Expiration = domain.DefaultAgentExpiration
	}
	return &agentLifecycle{
		logger:     logger,
		runner:     runner,
		store:      store,
		keys:       keys,
		env:        env,
		now:        time.Now,
		expiration: opts.Expiration,
		reuse:      opts.ReuseAgent,
		state:      domain.AgentNoAgent,
	}
}

// ReuseOrStart makes sure an agent is reachable and holds identityFile,
// reusing a persisted agent when it is fresh and alive.
func (l *agentLifecycle) ReuseOrStart(ctx context.Context, identityFile string) bool {
	if l.started {
		if l.keys.VerifyLoaded(ctx, identityFile) {
			l.logger.Debugw("key already loaded", "key", identityFile)
			l.state = domain.AgentKeyLoaded
			return true
		}
		if l.agentAlive(ctx) {
			return l.loadKey(ctx, identityFile)
		}
		l.started = false
	}

	if l.reuse && l.tryReuse(ctx) {
		if l.keys.VerifyLoaded(ctx, identityFile) {
			l.logger.Debugw("reusing agent with key already loaded", "key", identityFile)
			l.state = domain.AgentKeyLoaded
			return true
		}
		return l.loadKey(ctx, identityFile)
	}

	if err := l.startAgent(ctx); err != nil {
		l.logger.Errorw("failed to start ssh agent", "error", err)
		l.state = domain.AgentFailed
		return false
	}
	return l.loadKey(ctx, identityFile)
}

// tryReuse adopts the persisted agent if it is fresh, from this platform and answering.
func (l *agentLifecycle) tryReuse(ctx context.Context) bool {
	info, ok, err := l.store.Load()
	if err != nil {
		l.logger.Warnw("could not read agent info", "error", err)
		return false
	}
	if !ok {
		return false
	}
	if !info.IsValid(l.now(), l.expiration) {
		l.logger.Debugw("persisted agent info unusable", "age", info.Age(l.now()), "platform", info.Platform)
		return false
	}
	l.state = domain.AgentCachedInfoFound

	l.export(info.AuthSock, info.AgentPID)
	if !l.agentAlive(ctx) {
		l.logger.Debugw("persisted agent is not running", "pid", info.AgentPID)
		return false
	}
	l.state = domain.AgentVerifiedAlive
	l.started = true
	l.logger.Debugw("reusing existing ssh agent", "pid", info.AgentPID)
	return true
}

func (l *agentLifecycle) agentAlive(ctx context.Context) bool {
	res, err := l.runner.Run(ctx, ports.CommandRequest{
		Name:    sshAddBinary,
		Args:    []string{"-l"},
		Timeout: agentProbeTimeout,
	})
	if err != nil {
		return false
	}
	return res.ExitCode == 0 || res.ExitCode == sshAddNoIdentities
}

func (l *agentLifecycle) startAgent(ctx context.Context) error {
	res, err := l.runner.Run(ctx, ports.CommandRequest{
		Name:    sshAgentBinary,
		Args:    []string{"-s"},
		Timeout: agentSpawnTimeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAgentSpawn, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: exit code %d: %s", domain.ErrAgentSpawn, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	vars := ParseAgentOutput(res.Stdout)
	sock, pid := vars[domain.EnvAuthSock], vars[domain.EnvAgentPID]
	if sock == "" || pid == "" {
		return fmt.Errorf("%w: no agent variables in output", domain.ErrAgentSpawn)
	}

	l.export(sock, pid)
	l.started = true
	l.state = domain.AgentVerifiedAlive
	l.logger.Infow("started ssh agent", "pid", pid)

	if err := l.store.Save(domain.NewAgentInfo(sock, pid, l.now())); err != nil {
		l.logger.Warnw("could not persist agent info, agent will not be reused", "error", err)
	}
	return nil
}

func (l *agentLifecycle) loadKey(ctx context.Context, identityFile string) bool {
	if !l.keys.AddKey(ctx, identityFile, nil) {
		l.logger.Errorw("failed to add key to agent", "key", identityFile)
		l.state = domain.AgentFailed
		return false
	}
	l.state = domain.AgentKeyLoaded
	return true
}

func (l *agentLifecycle) export(sock, pid string) {
	if err := l.env.Setenv(domain.EnvAuthSock, sock); err != nil {
		l.logger.Warnw("could not export agent socket", "error", err)
	}
	if err := l.env.Setenv(domain.EnvAgentPID, pid); err != nil {
		l.logger.Warnw("could not export agent pid", "error", err)
	}
}

// Active reports whether this process has started or adopted an agent.
func (l *agentLifecycle) Active() bool {
	return l.started
}

func (l *agentLifecycle) State() domain.AgentState {
	return l.state
}

// ParseAgentOutput extracts the variables from `ssh-agent -s` output.
func ParseAgentOutput(out string) map[string]string {
	vars := make(map[string]string, 2)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if m := agentOutputLine.FindStringSubmatch(scanner.Text()); m != nil {
			vars[m[1]] = strings.TrimSpace(m[2])
		}
	}
	return vars
}
