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
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"go.uber.org/zap"
)

const (
	gitBinary = "git"

	envTerminalPrompt = "GIT_TERMINAL_PROMPT"

	credentialTestTimeout = 30 * time.Second
	gitProbeTimeout       = 10 * time.Second
	gitCommandTimeout     = time.Hour

	credentialHelperClear = "credential.helper="
	// inlineCredentialHelper answers git's credential requests from the child environment.
	inlineCredentialHelper = `credential.helper=!f() { echo "username=${GIT_USERNAME}"; echo "password=${GIT_PASSWORD}"; }; f`
)

// CommonGitHosts are probed when no host is given.
var CommonGitHosts = []string{"github.com", "gitlab.com", "bitbucket.org"}

var scpLikeURL = regexp.MustCompile(`^([A-Za-z0-9._-]+@)?([A-Za-z0-9.-]+):.`)

// GitHealth summarizes the git credential setup.
type GitHealth struct {
	Status      string          `json:"status"`
	Message     string          `json:"message,omitempty"`
	Helpers     []string        `json:"helpers"`
	TestResults map[string]bool `json:"test_results"`
}

type gitCredentials struct {
	logger   *zap.SugaredLogger
	runner   ports.CommandRunner
	env      ports.Environment
	testURLs map[string]string
}

// NewGitCredentials creates the git credential-helper collaborator. testURLs
// maps a host to the repository used to check credentials against it.
func NewGitCredentials(logger *zap.SugaredLogger, runner ports.CommandRunner, env ports.Environment,
	testURLs map[string]string,
) *gitCredentials {
	return &gitCredentials{logger: logger, runner: runner, env: env, testURLs: testURLs}
}

// ResolveCredentials fills missing fields from GIT_USERNAME and GIT_PASSWORD.
func (g *gitCredentials) ResolveCredentials(creds domain.Credentials) domain.Credentials {
	if creds.Username == "" {
		creds.Username = g.env.Getenv(domain.EnvGitUsername)
	}
	if creds.Password == "" {
		creds.Password = g.env.Getenv(domain.EnvGitPassword)
	}
	return creds
}

// TestCredentials runs `git ls-remote` against host, or the common hosts when
// host is empty, using only the supplied credentials.
func (g *gitCredentials) TestCredentials(ctx context.Context, host string, creds domain.Credentials) domain.CredentialTestResult {
	hosts := CommonGitHosts
	if host != "" {
		hosts = []string{host}
	}
	result := domain.CredentialTestResult{PerHost: make(map[string]bool, len(hosts))}

	creds = g.ResolveCredentials(creds)
	if !creds.Complete() {
		g.logger.Debugw("no credentials available to test")
		for _, h := range hosts {
			result.PerHost[h] = false
		}
		return result
	}

	for _, h := range hosts {
		res, err := g.runner.Run(ctx, ports.CommandRequest{
			Name:    gitBinary,
			Args:    g.credentialArgs("ls-remote", g.testURL(h)),
			Env:     credentialEnv(creds),
			Timeout: credentialTestTimeout,
		})
		ok := err == nil && res.ExitCode == 0
		if !ok {
			g.logger.Debugw("credential test failed", "host", h, "exit_code", res.ExitCode, "error", err)
		}
		result.PerHost[h] = ok
	}
	return result
}

// Available reports whether a git binary can be run.
func (g *gitCredentials) Available(ctx context.Context) bool {
	res, err := g.runner.Run(ctx, ports.CommandRequest{
		Name:    gitBinary,
		Args:    []string{"--version"},
		Timeout: gitProbeTimeout,
	})
	return err == nil && res.ExitCode == 0
}

// CurrentHelpers lists the credential helpers configured in git.
func (g *gitCredentials) CurrentHelpers(ctx context.Context) []string {
	res, err := g.runner.Run(ctx, ports.CommandRequest{
		Name:    gitBinary,
		Args:    []string{"config", "--get-all", "credential.helper"},
		Timeout: gitProbeTimeout,
	})
	if err != nil || res.ExitCode != 0 {
		return nil
	}
	var helpers []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			helpers = append(helpers, line)
		}
	}
	return helpers
}

// Health checks configured helpers and whether the available credentials work.
func (g *gitCredentials) Health(ctx context.Context, host string) GitHealth {
	h := GitHealth{Helpers: g.CurrentHelpers(ctx)}
	if h.Helpers == nil {
		h.Helpers = []string{}
	}
	h.TestResults = g.TestCredentials(ctx, host, domain.Credentials{}).PerHost

	anyWorking := false
	for _, ok := range h.TestResults {
		anyWorking = anyWorking || ok
	}
	switch {
	case anyWorking:
		h.Status = "healthy"
	case len(h.Helpers) == 0:
		h.Status = "warning"
		h.Message = "No credential helpers configured"
	default:
		h.Status = "error"
		h.Message = "Credentials are configured but not working"
	}
	return h
}

// RunWithCredentials runs git with the inline credential helper.
func (g *gitCredentials) RunWithCredentials(ctx context.Context, args []string, creds domain.Credentials) (ports.CommandResult, error) {
	creds = g.ResolveCredentials(creds)
	return g.runner.Run(ctx, ports.CommandRequest{
		Name:        gitBinary,
		Args:        g.credentialArgs(args...),
		Env:         credentialEnv(creds),
		Timeout:     gitCommandTimeout,
		Passthrough: true,
	})
}

// RunWithSSH runs git with GIT_SSH_COMMAND set to sshCommand.
func (g *gitCredentials) RunWithSSH(ctx context.Context, args []string, sshCommand string) (ports.CommandResult, error) {
	return g.runner.Run(ctx, ports.CommandRequest{
		Name:        gitBinary,
		Args:        args,
		Env:         []string{domain.EnvGitSSHCmd + "=" + sshCommand},
		Timeout:     gitCommandTimeout,
		Passthrough: true,
	})
}

func (g *gitCredentials) credentialArgs(args ...string) []string {
	out := []string{"-c", credentialHelperClear, "-c", inlineCredentialHelper, "-c", "credential.useHttpPath=true"}
	return append(out, args...)
}

func (g *gitCredentials) testURL(host string) string {
	if u, ok := g.testURLs[host]; ok && u != "" {
		return u
	}
	return "https://" + host + "/"
}

func credentialEnv(creds domain.Credentials) []string {
	return []string{
		domain.EnvGitUsername + "=" + creds.Username,
		domain.EnvGitPassword + "=" + creds.Password,
		envTerminalPrompt + "=0",
	}
}

// ExtractHostname returns the host of a git remote URL: scp-like
// (git@host:path) or ssh://, git://, http:// and https:// forms.
func ExtractHostname(remote string) string {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return ""
	}
	if strings.Contains(remote, "://") {
		u, err := url.Parse(remote)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}
	// Refspecs such as HEAD:main share the scp shape; require a user or a dotted host.
	if m := scpLikeURL.FindStringSubmatch(remote); m != nil && (m[1] != "" || strings.Contains(m[2], ".")) {
		return m[2]
	}
	return ""
}

// HostFromArgs finds the first argument of a git command line that looks like a remote URL.
func HostFromArgs(args []string) string {
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		if h := ExtractHostname(a); h != "" && domain.IsValidHostname(h) {
			return h
		}
	}
	return ""
}
