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
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	sshBinary             = "ssh"
	connectionTestTimeout = 30 * time.Second
)

// gitSSHDefaultOptions are passed to every ssh started on behalf of git.
var gitSSHDefaultOptions = [][2]string{
	{"StrictHostKeyChecking", "no"},
	{"UserKnownHostsFile", "/dev/null"},
	{"LogLevel", "ERROR"},
}

type identityResolverAPI interface {
	Resolve(host string) (string, IdentitySource)
}

type sshAuthenticator struct {
	logger     *zap.SugaredLogger
	fs         afero.Fs
	runner     ports.CommandRunner
	identities identityResolverAPI
	agent      ports.AgentManager
	sshOptions map[string]string
}

// NewSSHAuthenticator ties identity resolution, the agent and the connection probe together.
func NewSSHAuthenticator(logger *zap.SugaredLogger, fs afero.Fs, runner ports.CommandRunner,
	identities identityResolverAPI, agent ports.AgentManager, sshOptions map[string]string,
) *sshAuthenticator {
	return &sshAuthenticator{
		logger:     logger,
		fs:         fs,
		runner:     runner,
		identities: identities,
		agent:      agent,
		sshOptions: sshOptions,
	}
}

// SetupSSH prepares the agent for host and checks that the remote accepts the key.
func (a *sshAuthenticator) SetupSSH(ctx context.Context, host string) bool {
	identity, err := a.identityFor(host)
	if err != nil {
		a.logger.Errorw("ssh setup failed", "host", host, "error", err)
		return false
	}
	a.logger.Debugw("using ssh key", "host", host, "key", identity)

	if !a.agent.ReuseOrStart(ctx, identity) {
		a.logger.Errorw("failed to prepare ssh agent", "host", host)
		return false
	}
	return a.TestSSHConnection(ctx, host)
}

// TestSSHConnection probes host with `ssh -T git@host`. Git servers exit 1
// after a successful authentication, so 0 and 1 both count as success.
func (a *sshAuthenticator) TestSSHConnection(ctx context.Context, host string) bool {
	res, err := a.runner.Run(ctx, ports.CommandRequest{
		Name:    sshBinary,
		Args:    []string{"-T", "-o", "StrictHostKeyChecking=no", "-o", "BatchMode=yes", "git@" + host},
		Timeout: connectionTestTimeout,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCommandTimeout) {
			a.logger.Warnw("ssh connection test timed out", "host", host)
		} else {
			a.logger.Errorw("ssh connection test failed", "host", host, "error", err)
		}
		return false
	}
	if res.ExitCode == 0 || res.ExitCode == 1 {
		a.logger.Debugw("ssh connection test successful", "host", host)
		return true
	}
	a.logger.Errorw("ssh connection test failed", "host", host, "exit_code", res.ExitCode,
		"error", domain.ErrProbeFailed)
	return false
}

func (a *sshAuthenticator) AgentActive() bool {
	return a.agent.Active()
}

// GitSSHCommand sets up ssh for host and returns a GIT_SSH_COMMAND value
// pinned to the resolved identity.
func (a *sshAuthenticator) GitSSHCommand(ctx context.Context, host string) (string, error) {
	identity, err := a.identityFor(host)
	if err != nil {
		return "", err
	}
	if !a.SetupSSH(ctx, host) {
		return "", fmt.Errorf("ssh setup failed for %s", host)
	}
	return a.buildSSHCommand(identity), nil
}

// SSHCommand returns the GIT_SSH_COMMAND value for host without running setup.
// Callers that already authenticated host use it to skip a second connection test.
func (a *sshAuthenticator) SSHCommand(host string) (string, error) {
	identity, err := a.identityFor(host)
	if err != nil {
		return "", err
	}
	return a.buildSSHCommand(identity), nil
}

func (a *sshAuthenticator) buildSSHCommand(identity string) string {
	parts := []string{sshBinary}
	for _, opt := range gitSSHDefaultOptions {
		parts = append(parts, "-o", opt[0]+"="+opt[1])
	}
	parts = append(parts, "-i", identity)

	keys := make([]string, 0, len(a.sshOptions))
	for k := range a.sshOptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := a.sshOptions[k]
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			a.logger.Warnw("skipping invalid ssh option", "key", k, "value", v)
			continue
		}
		parts = append(parts, "-o", k+"="+v)
	}
	return strings.Join(parts, " ")
}

func (a *sshAuthenticator) identityFor(host string) (string, error) {
	if !domain.IsValidHostname(host) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidHostname, host)
	}
	identity, source := a.identities.Resolve(host)
	if _, err := a.fs.Stat(identity); err != nil {
		return "", fmt.Errorf("%w: %s (from %s)", domain.ErrIdentityNotFound, identity, source)
	}
	return identity, nil
}
