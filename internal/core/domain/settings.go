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

package domain

import "time"

// Settings represents the persisted application configuration.
type Settings struct {
	// IdentityFile overrides key selection for every host when set.
	IdentityFile string `yaml:"identity_file,omitempty"`

	// Passphrase is stored encrypted; see PassphraseCipher.
	Passphrase string `yaml:"passphrase,omitempty"`

	// ExpirationHours bounds how long a persisted agent is reused.
	ExpirationHours int `yaml:"expiration_hours"`

	// ReuseAgent controls whether an existing agent may be reused. Nil means true.
	ReuseAgent *bool `yaml:"reuse_agent,omitempty"`

	Keys       map[string]string `yaml:"keys,omitempty"`
	SSHOptions map[string]string `yaml:"ssh_options,omitempty"`

	AuthStrategy string `yaml:"auth_strategy,omitempty"`
	PreferSSH    bool   `yaml:"prefer_ssh,omitempty"`

	CredentialTestURLs map[string]string `yaml:"credential_test_urls,omitempty"`

	// InstallID seeds passphrase encryption on machines without a machine id.
	InstallID string `yaml:"install_id,omitempty"`
}

// DefaultSettings returns the configuration used when no file exists yet.
func DefaultSettings() Settings {
	return Settings{
		ExpirationHours: int(DefaultAgentExpiration / time.Hour),
		AuthStrategy:    string(StrategySmart),
	}
}

func (s Settings) Expiration() time.Duration {
	if s.ExpirationHours <= 0 {
		return DefaultAgentExpiration
	}
	return time.Duration(s.ExpirationHours) * time.Hour
}

func (s Settings) ReuseEnabled() bool {
	return s.ReuseAgent == nil || *s.ReuseAgent
}

// Portable returns the subset of s that can be exported. The encrypted
// passphrase and install id are kept only when includeSecrets is set.
func (s Settings) Portable(includeSecrets bool) Settings {
	out := Settings{
		IdentityFile:       s.IdentityFile,
		ExpirationHours:    s.ExpirationHours,
		ReuseAgent:         s.ReuseAgent,
		Keys:               s.Keys,
		SSHOptions:         s.SSHOptions,
		AuthStrategy:       s.AuthStrategy,
		PreferSSH:          s.PreferSSH,
		CredentialTestURLs: s.CredentialTestURLs,
	}
	if includeSecrets {
		out.Passphrase = s.Passphrase
		out.InstallID = s.InstallID
	}
	return out
}
