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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"go.uber.org/zap"
)

// DefaultStrategy is used when no strategy is named.
const DefaultStrategy = domain.StrategySmart

// StrategyDeps are the collaborators shared by every strategy.
type StrategyDeps struct {
	Logger      *zap.SugaredLogger
	SSH         ports.SSHAuthenticator
	Credentials ports.CredentialTester
	Env         ports.Environment
	Now         func() time.Time
}

// Preferences are the persisted strategy settings; environment variables override them.
type Preferences struct {
	PreferSSH bool
	Extra     map[string]string
}

func (p Preferences) asMap() map[string]string {
	out := make(map[string]string, len(p.Extra)+1)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.PreferSSH {
		out["prefer_ssh"] = "true"
	}
	return out
}

// AvailableStrategies lists the names NewStrategy accepts.
func AvailableStrategies() []domain.StrategyName {
	return []domain.StrategyName{domain.StrategySmart, domain.StrategySSHOnly, domain.StrategyCredentialsOnly}
}

// NewStrategy maps a strategy name to an instance. Names are case-insensitive
// and "auto" is an alias for "smart".
func NewStrategy(name string, deps StrategyDeps, prefs Preferences) (ports.Strategy, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	n := domain.ParseStrategyName(name)
	if n == "" {
		n = DefaultStrategy
	}
	switch n {
	case domain.StrategySmart, domain.StrategyAuto:
		return newSmartStrategy(deps, prefs), nil
	case domain.StrategySSHOnly:
		return &sshOnlyStrategy{deps: deps, prefs: prefs}, nil
	case domain.StrategyCredentialsOnly:
		return &credentialsOnlyStrategy{deps: deps, prefs: prefs}, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedStrategy, name)
	}
}

// attempt runs fn, converting a panic in a collaborator into a failure.
func attempt(logger *zap.SugaredLogger, method domain.AuthMethod, host string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("authentication attempt panicked", "method", method, "host", host, "panic", r)
			ok = false
		}
	}()
	return fn()
}

func envOverrides(env ports.Environment) domain.EnvironmentOverrides {
	_, sshCmd := env.LookupEnv(domain.EnvGitSSHCmd)
	return domain.EnvironmentOverrides{
		ForceSSH:      domain.IsTruthy(env.Getenv(domain.EnvForceSSH)),
		PreferSSH:     domain.IsTruthy(env.Getenv(domain.EnvPreferSSH)),
		AuthStrategy:  env.Getenv(domain.EnvAuthStrategy),
		HasUsername:   env.Getenv(domain.EnvGitUsername) != "",
		HasPassword:   env.Getenv(domain.EnvGitPassword) != "",
		SSHCommandSet: sshCmd,
	}
}

// smartStrategy picks between SSH and credentials per host and remembers what worked.
type smartStrategy struct {
	deps  StrategyDeps
	prefs Preferences

	mu    sync.Mutex
	cache map[string]domain.AuthRecord
}

func newSmartStrategy(deps StrategyDeps, prefs Preferences) *smartStrategy {
	return &smartStrategy{deps: deps, prefs: prefs, cache: make(map[string]domain.AuthRecord)}
}

func (s *smartStrategy) Name() domain.StrategyName { return domain.StrategySmart }

func (s *smartStrategy) Authenticate(ctx context.Context, host string, creds domain.Credentials) bool {
	log := s.deps.Logger
	overrides := envOverrides(s.deps.Env)

	if overrides.ForceSSH {
		log.Debugw("ssh forced by environment", "host", host)
		return s.try(ctx, domain.AuthMethodSSH, host, creds)
	}

	order := s.defaultOrder(overrides)
	switch domain.ParseStrategyName(overrides.AuthStrategy) {
	case domain.StrategySSHOnly:
		return (&sshOnlyStrategy{deps: s.deps, prefs: s.prefs}).Authenticate(ctx, host, creds)
	case domain.StrategyCredentialsOnly:
		return (&credentialsOnlyStrategy{deps: s.deps, prefs: s.prefs}).Authenticate(ctx, host, creds)
	case domain.StrategySSHFirst:
		order = []domain.AuthMethod{domain.AuthMethodSSH, domain.AuthMethodCredentials}
	case domain.StrategyCredentialsFirst:
		order = []domain.AuthMethod{domain.AuthMethodCredentials, domain.AuthMethodSSH}
	}

	if rec, ok := s.cached(host); ok {
		order = promote(order, rec.Method)
		log.Debugw("trying cached method first", "host", host, "method", rec.Method)
	}

	for _, method := range order {
		if method == domain.AuthMethodCredentials && !s.credentialsApplicable(creds) {
			log.Debugw("skipping credentials, none supplied", "host", host)
			continue
		}
		if s.try(ctx, method, host, creds) {
			return true
		}
	}

	log.Warnw("authentication failed", "host", host, "error", domain.ErrStrategyExhausted)
	return false
}

func (s *smartStrategy) defaultOrder(o domain.EnvironmentOverrides) []domain.AuthMethod {
	if o.PreferSSH || s.prefs.PreferSSH {
		return []domain.AuthMethod{domain.AuthMethodSSH, domain.AuthMethodCredentials}
	}
	return []domain.AuthMethod{domain.AuthMethodCredentials, domain.AuthMethodSSH}
}

// try runs one method and records it on success.
func (s *smartStrategy) try(ctx context.Context, method domain.AuthMethod, host string, creds domain.Credentials) bool {
	ok := attempt(s.deps.Logger, method, host, func() bool {
		switch method {
		case domain.AuthMethodSSH:
			return s.deps.SSH.SetupSSH(ctx, host)
		case domain.AuthMethodCredentials:
			return s.deps.Credentials.TestCredentials(ctx, host, creds).Passed(host)
		}
		return false
	})
	if ok {
		s.record(host, method)
		s.deps.Logger.Debugw("authenticated", "host", host, "method", method)
	}
	return ok
}

func (s *smartStrategy) credentialsApplicable(creds domain.Credentials) bool {
	if creds.Complete() {
		return true
	}
	if creds.Username == "" {
		creds.Username = s.deps.Env.Getenv(domain.EnvGitUsername)
	}
	if creds.Password == "" {
		creds.Password = s.deps.Env.Getenv(domain.EnvGitPassword)
	}
	return creds.Complete()
}

func (s *smartStrategy) cached(host string) (domain.AuthRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.cache[host]
	if !ok || !rec.Fresh(s.deps.Now()) {
		return domain.AuthRecord{}, false
	}
	return rec, true
}

func (s *smartStrategy) record(host string, method domain.AuthMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[host] = domain.AuthRecord{Method: method, Success: true, Timestamp: s.deps.Now()}
}

// TestConnection succeeds if either the raw ssh probe or the credential test passes.
func (s *smartStrategy) TestConnection(ctx context.Context, host string) bool {
	sshOK := attempt(s.deps.Logger, domain.AuthMethodSSH, host, func() bool {
		return s.deps.SSH.TestSSHConnection(ctx, host)
	})
	if sshOK {
		return true
	}
	return attempt(s.deps.Logger, domain.AuthMethodCredentials, host, func() bool {
		return s.deps.Credentials.TestCredentials(ctx, host, domain.Credentials{}).Passed(host)
	})
}

func (s *smartStrategy) Status(string) domain.StrategyStatus {
	s.mu.Lock()
	last := make(map[string]domain.AuthMethod, len(s.cache))
	for h, rec := range s.cache {
		last[h] = rec.Method
	}
	s.mu.Unlock()

	return domain.StrategyStatus{
		StrategyType:          domain.StrategySmart,
		LastSuccessfulMethods: last,
		Preferences:           s.prefs.asMap(),
		EnvironmentOverrides:  envOverrides(s.deps.Env),
		SupportedMethods:      []domain.AuthMethod{domain.AuthMethodSSH, domain.AuthMethodCredentials},
	}
}

// sshOnlyStrategy never uses credentials.
type sshOnlyStrategy struct {
	deps  StrategyDeps
	prefs Preferences
}

func (s *sshOnlyStrategy) Name() domain.StrategyName { return domain.StrategySSHOnly }

func (s *sshOnlyStrategy) Authenticate(ctx context.Context, host string, _ domain.Credentials) bool {
	return attempt(s.deps.Logger, domain.AuthMethodSSH, host, func() bool {
		return s.deps.SSH.SetupSSH(ctx, host)
	})
}

func (s *sshOnlyStrategy) TestConnection(ctx context.Context, host string) bool {
	return attempt(s.deps.Logger, domain.AuthMethodSSH, host, func() bool {
		return s.deps.SSH.TestSSHConnection(ctx, host)
	})
}

func (s *sshOnlyStrategy) Status(string) domain.StrategyStatus {
	active := attempt(s.deps.Logger, domain.AuthMethodSSH, "", func() bool {
		return s.deps.SSH.AgentActive()
	})
	return domain.StrategyStatus{
		StrategyType:          domain.StrategySSHOnly,
		LastSuccessfulMethods: map[string]domain.AuthMethod{},
		Preferences:           s.prefs.asMap(),
		EnvironmentOverrides:  envOverrides(s.deps.Env),
		SupportedMethods:      []domain.AuthMethod{domain.AuthMethodSSH},
		SSHAgentActive:        &active,
	}
}

// credentialsOnlyStrategy never touches the ssh agent.
type credentialsOnlyStrategy struct {
	deps  StrategyDeps
	prefs Preferences
}

func (s *credentialsOnlyStrategy) Name() domain.StrategyName { return domain.StrategyCredentialsOnly }

func (s *credentialsOnlyStrategy) Authenticate(ctx context.Context, host string, creds domain.Credentials) bool {
	return attempt(s.deps.Logger, domain.AuthMethodCredentials, host, func() bool {
		return s.deps.Credentials.TestCredentials(ctx, host, creds).Passed(host)
	})
}

func (s *credentialsOnlyStrategy) TestConnection(ctx context.Context, host string) bool {
	return s.Authenticate(ctx, host, domain.Credentials{})
}

func (s *credentialsOnlyStrategy) Status(string) domain.StrategyStatus {
	available := attempt(s.deps.Logger, domain.AuthMethodCredentials, "", func() bool {
		return s.deps.Credentials.Available(context.Background())
	})
	return domain.StrategyStatus{
		StrategyType:            domain.StrategyCredentialsOnly,
		LastSuccessfulMethods:   map[string]domain.AuthMethod{},
		Preferences:             s.prefs.asMap(),
		EnvironmentOverrides:    envOverrides(s.deps.Env),
		SupportedMethods:        []domain.AuthMethod{domain.AuthMethodCredentials},
		GitIntegrationAvailable: &available,
	}
}

// promote moves method to the front of order.
func promote(order []domain.AuthMethod, method domain.AuthMethod) []domain.AuthMethod {
	out := []domain.AuthMethod{method}
	for _, m := range order {
		if m != method {
			out = append(out, m)
		}
	}
	return out
}

// SortedHosts returns the hosts of a status snapshot in stable order.
func SortedHosts(st domain.StrategyStatus) []string {
	hosts := make([]string, 0, len(st.LastSuccessfulMethods))
	for h := range st.LastSuccessfulMethods {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// WinningMethod reports which method s used for host on its last success.
// Single-method strategies always answer with their method.
func WinningMethod(s ports.Strategy, host string) domain.AuthMethod {
	switch s.Name() {
	case domain.StrategySSHOnly:
		return domain.AuthMethodSSH
	case domain.StrategyCredentialsOnly:
		return domain.AuthMethodCredentials
	}
	st := s.Status(host)
	if m, ok := st.LastSuccessfulMethods[host]; ok {
		return m
	}
	if domain.ParseStrategyName(st.EnvironmentOverrides.AuthStrategy) == domain.StrategyCredentialsOnly {
		return domain.AuthMethodCredentials
	}
	return domain.AuthMethodSSH
}
