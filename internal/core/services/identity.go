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
	"path/filepath"
	"strings"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const defaultKeyName = "id_rsa"

// IdentitySource names where a resolved identity file came from.
type IdentitySource string

const (
	IdentityFromOverride     IdentitySource = "override"
	IdentityFromEnv          IdentitySource = "environment"
	IdentityFromHostConfig   IdentitySource = "ssh_config"
	IdentityFromSystemConfig IdentitySource = "system_ssh_config"
	IdentityFromDiscovery    IdentitySource = "discovered"
	IdentityFromDefault      IdentitySource = "default"
)

type keyDiscoverer interface {
	Discover() []string
}

type identityResolver struct {
	logger   *zap.SugaredLogger
	fs       afero.Fs
	env      ports.Environment
	homeDir  string
	sshDir   string
	override string

	hosts  ports.HostConfigLookup
	system ports.SystemConfig
	keys   keyDiscoverer
}

type IdentityOptions struct {
	HomeDir string
	SSHDir  string
	// Override, when it names an existing file, wins over every other source.
	Override string
}

func NewIdentityResolver(logger *zap.SugaredLogger, fs afero.Fs, env ports.Environment, hosts ports.HostConfigLookup,
	system ports.SystemConfig, keys keyDiscoverer, opts IdentityOptions,
) *identityResolver {
	return &identityResolver{
		logger:   logger,
		fs:       fs,
		env:      env,
		homeDir:  opts.HomeDir,
		sshDir:   opts.SSHDir,
		override: opts.Override,
		hosts:    hosts,
		system:   system,
		keys:     keys,
	}
}

// Resolve picks exactly one identity file for host. The default key path is
// returned even when it does not exist.
func (r *identityResolver) Resolve(host string) (string, IdentitySource) {
	if path, ok := r.existing(r.override); ok {
		return path, IdentityFromOverride
	}
	if path, ok := r.existing(r.env.Getenv(domain.EnvIdentityFile)); ok {
		return path, IdentityFromEnv
	}
	if r.hosts != nil {
		if entry, found := r.hosts.Lookup(host); found {
			for _, candidate := range entry.IdentityFiles {
				if path, ok := r.existing(candidate); ok {
					return path, IdentityFromHostConfig
				}
			}
		}
	}
	if r.system != nil {
		for _, candidate := range r.system.IdentityFiles(host) {
			if path, ok := r.existing(candidate); ok {
				return path, IdentityFromSystemConfig
			}
		}
	}
	if r.keys != nil {
		if found := r.keys.Discover(); len(found) > 0 {
			return found[0], IdentityFromDiscovery
		}
	}
	return filepath.Join(r.sshDir, defaultKeyName), IdentityFromDefault
}

// existing expands candidate and reports whether it names a file.
func (r *identityResolver) existing(candidate string) (string, bool) {
	if strings.TrimSpace(candidate) == "" {
		return "", false
	}
	path := r.expand(candidate)
	if _, err := r.fs.Stat(path); err != nil {
		r.logger.Debugw("identity candidate missing", "path", path)
		return "", false
	}
	return path, true
}

// expand resolves "~" and ssh_config %d tokens, and makes relative paths
// relative to the ssh directory.
func (r *identityResolver) expand(p string) string {
	p = strings.ReplaceAll(p, "%d", r.homeDir)
	switch {
	case p == "~":
		p = r.homeDir
	case strings.HasPrefix(p, "~/"):
		p = filepath.Join(r.homeDir, p[2:])
	case !filepath.IsAbs(p):
		p = filepath.Join(r.sshDir, p)
	}
	return filepath.Clean(p)
}
