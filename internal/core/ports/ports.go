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

package ports

import (
	"context"
	"time"

	"github.com/Adembc/lazyagent/internal/core/domain"
)

type ConfigProvider interface {
	HomeDir() string
	SSHDir() string
	ConfigPath(elems ...string) string
	LogPath(filename string) string
	GetEnvOrDefault(envVar, defaultValue string) string
}

type FlagsProvider interface {
	IsDebug() bool
	IsVerbose() bool
	GetFlag(name string) string
}

// Environment is the process environment. Setenv affects children started afterwards.
type Environment interface {
	Getenv(key string) string
	LookupEnv(key string) (string, bool)
	Setenv(key, value string) error
}

type CommandRequest struct {
	Name    string
	Args    []string
	Stdin   []byte
	Env     []string
	Timeout time.Duration
	// Passthrough also streams the child's output to this process's stdout and stderr.
	Passthrough bool
}

// CommandResult holds the outcome of a command that ran to completion.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandRunner runs a subprocess to completion. A non-zero exit is reported in
// the result, not as an error. Failure to start and timeouts are errors; a
// timeout wraps domain.ErrCommandTimeout.
type CommandRunner interface {
	Run(ctx context.Context, req CommandRequest) (CommandResult, error)
}

type AgentInfoStore interface {
	Load() (domain.AgentInfo, bool, error)
	Save(info domain.AgentInfo) error
}

type SettingsStore interface {
	Load() (domain.Settings, error)
	Save(settings domain.Settings) error
}

// PassphraseCipher protects passphrases at rest.
type PassphraseCipher interface {
	Encrypt(plain []byte) (string, error)
	Decrypt(encoded string) ([]byte, error)
}

// PassphrasePrompt asks the user interactively.
type PassphrasePrompt interface {
	Available() bool
	ReadPassphrase(prompt string) ([]byte, error)
}

type HostConfigLookup interface {
	Lookup(host string) (domain.HostConfigEntry, bool)
}

// SystemConfig answers questions from the system-wide ssh_config.
type SystemConfig interface {
	IdentityFiles(host string) []string
	User(host string) string
}

type KeyLoader interface {
	VerifyLoaded(ctx context.Context, keyPath string) bool
	AddKey(ctx context.Context, keyPath string, explicit *domain.Secret) bool
}

type AgentManager interface {
	ReuseOrStart(ctx context.Context, identityFile string) bool
	Active() bool
}

type SSHAuthenticator interface {
	SetupSSH(ctx context.Context, host string) bool
	TestSSHConnection(ctx context.Context, host string) bool
	AgentActive() bool
}

type CredentialTester interface {
	TestCredentials(ctx context.Context, host string, creds domain.Credentials) domain.CredentialTestResult
	Available(ctx context.Context) bool
}

// Strategy decides how to authenticate against a Git remote host.
type Strategy interface {
	Name() domain.StrategyName
	Authenticate(ctx context.Context, host string, creds domain.Credentials) bool
	TestConnection(ctx context.Context, host string) bool
	Status(host string) domain.StrategyStatus
}

// SSHConfigParser parses an OpenSSH client config into entries keyed by host
// pattern, returning the patterns in file order.
type SSHConfigParser interface {
	ParseFile(path string) (map[string]domain.HostConfigEntry, []string, error)
}

// AgentKey describes one identity held by a running agent.
type AgentKey struct {
	Type        string
	Fingerprint string
	Comment     string
}

// AgentKeyLister talks to an agent socket directly.
type AgentKeyLister interface {
	List(socket string) ([]AgentKey, error)
}
