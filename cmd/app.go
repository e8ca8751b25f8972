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

package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/Adembc/lazyagent/internal/adapters/agentsock"
	"github.com/Adembc/lazyagent/internal/adapters/config"
	"github.com/Adembc/lazyagent/internal/adapters/data/file"
	"github.com/Adembc/lazyagent/internal/adapters/data/ssh_config_file"
	"github.com/Adembc/lazyagent/internal/adapters/logger"
	"github.com/Adembc/lazyagent/internal/adapters/process"
	"github.com/Adembc/lazyagent/internal/adapters/prompt"
	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/Adembc/lazyagent/internal/core/services"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

const (
	settingsFileName = "config.yaml"
	logFileName      = "lazyagent.log"
)

type keyManager interface {
	ports.KeyLoader
	Discover() []string
	Fingerprint(keyPath string) (string, error)
	PublicKey(keyPath string) (ssh.PublicKey, error)
}

type agentManager interface {
	ports.AgentManager
	State() domain.AgentState
}

type sshSetup interface {
	ports.SSHAuthenticator
	GitSSHCommand(ctx context.Context, host string) (string, error)
	SSHCommand(host string) (string, error)
}

type gitClient interface {
	ports.CredentialTester
	Health(ctx context.Context, host string) services.GitHealth
	RunWithCredentials(ctx context.Context, args []string, creds domain.Credentials) (ports.CommandResult, error)
	RunWithSSH(ctx context.Context, args []string, sshCommand string) (ports.CommandResult, error)
}

type identityResolver interface {
	Resolve(host string) (string, services.IdentitySource)
}

// app holds the wired collaborators for one CLI invocation.
type app struct {
	log      *zap.SugaredLogger
	cfg      ports.ConfigProvider
	fs       afero.Fs
	env      ports.Environment
	runner   ports.CommandRunner
	store    ports.SettingsStore
	settings domain.Settings
	cipher   ports.PassphraseCipher
	prompt   ports.PassphrasePrompt

	agentInfo  ports.AgentInfoStore
	agentKeys  ports.AgentKeyLister
	hosts      ports.HostConfigLookup
	identities identityResolver
	keys       keyManager
	agent      agentManager
	ssh        sshSetup
	git        gitClient
}

type appOptions struct {
	debug        bool
	verbose      bool
	identityFile string
}

func newApp(opts appOptions) *app {
	cfg := config.NewOSConfig()
	env := config.NewOSEnvironment()
	debug := opts.debug || domain.IsTruthy(env.Getenv(domain.EnvDebug))

	log := logger.New("LAZYAGENT", logger.Options{
		LogFile: cfg.LogPath(logFileName),
		Debug:   debug,
		Verbose: opts.verbose,
	})

	fs := afero.NewOsFs()
	store := file.NewSettingsManager(log, fs, cfg.ConfigPath(settingsFileName))
	settings, err := store.Load()
	if err != nil {
		log.Warnw("settings unreadable, using defaults", "error", err)
	}
	installID := file.EnsureInstallID(log, store)
	if err == nil {
		settings.InstallID = installID
	}

	a := &app{
		log:       log,
		cfg:       cfg,
		fs:        fs,
		env:       env,
		runner:    process.NewExecRunner(log),
		store:     store,
		settings:  settings,
		cipher:    file.NewPassphraseCipher(log, fs, cfg.HomeDir(), installID),
		prompt:    prompt.NewTerminalPrompt(),
		agentInfo: file.NewAgentInfoStore(log, fs, filepath.Join(cfg.SSHDir(), file.AgentInfoFileName)),
		agentKeys: agentsock.NewClient(log),
	}

	parser := file.NewSSHConfigParser(log, fs, cfg.HomeDir())
	a.hosts = services.NewHostConfigCache(log, parser, filepath.Join(cfg.SSHDir(), "config"))
	system := ssh_config_file.NewSystemConfig(log, fs, ssh_config_file.DefaultSystemConfigPath)

	keys := services.NewKeyStore(log, fs, a.runner, store, a.cipher, a.prompt, services.KeyStoreOptions{
		SSHDir:  cfg.SSHDir(),
		HomeDir: cfg.HomeDir(),
	})
	a.keys = keys

	override := opts.identityFile
	if override == "" {
		override = settings.IdentityFile
	}
	a.identities = services.NewIdentityResolver(log, fs, env, a.hosts, system, keys, services.IdentityOptions{
		HomeDir:  cfg.HomeDir(),
		SSHDir:   cfg.SSHDir(),
		Override: override,
	})

	a.agent = services.NewAgentLifecycle(log, a.runner, a.agentInfo, keys, env, services.AgentOptions{
		Expiration: settings.Expiration(),
		ReuseAgent: settings.ReuseEnabled(),
	})
	a.ssh = services.NewSSHAuthenticator(log, fs, a.runner, a.identities, a.agent, settings.SSHOptions)
	a.git = services.NewGitCredentials(log, a.runner, env, settings.CredentialTestURLs)
	return a
}

// strategy builds the named strategy, falling back to the configured one.
func (a *app) strategy(name string) (ports.Strategy, error) {
	if strings.TrimSpace(name) == "" {
		name = a.settings.AuthStrategy
	}
	return services.NewStrategy(name, services.StrategyDeps{
		Logger:      a.log,
		SSH:         a.ssh,
		Credentials: a.git,
		Env:         a.env,
	}, services.Preferences{PreferSSH: a.settings.PreferSSH})
}

// expandPath resolves "~/" against the home directory.
func (a *app) expandPath(p string) string {
	if p == "~" {
		return a.cfg.HomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(a.cfg.HomeDir(), p[2:])
	}
	return p
}

// keyPath maps a configured key name to its path; anything else is treated as a path.
func (a *app) keyPath(nameOrPath string) string {
	if p, ok := a.settings.Keys[nameOrPath]; ok {
		return a.expandPath(p)
	}
	return a.expandPath(nameOrPath)
}

func (a *app) saveSettings() error {
	return a.store.Save(a.settings)
}
