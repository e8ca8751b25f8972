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

import (
	"strings"
	"time"
)

// AuthMethod is one way of authenticating to a Git remote.
type AuthMethod string

const (
	AuthMethodSSH         AuthMethod = "ssh"
	AuthMethodCredentials AuthMethod = "credentials"
)

// StrategyName selects an authentication strategy or, for the smart
// strategy, the order it tries methods in.
type StrategyName string

const (
	StrategySmart            StrategyName = "smart"
	StrategyAuto             StrategyName = "auto"
	StrategySSHFirst         StrategyName = "ssh_first"
	StrategyCredentialsFirst StrategyName = "credentials_first"
	StrategySSHOnly          StrategyName = "ssh_only"
	StrategyCredentialsOnly  StrategyName = "credentials_only"
)

// ParseStrategyName normalizes a user-supplied strategy name.
func ParseStrategyName(s string) StrategyName {
	return StrategyName(strings.ToLower(strings.TrimSpace(s)))
}

const AuthCacheDuration = time.Hour

// AuthRecord remembers which method last worked for a host.
type AuthRecord struct {
	Method    AuthMethod
	Success   bool
	Timestamp time.Time
}

// Fresh reports whether the record is still usable at now.
func (r AuthRecord) Fresh(now time.Time) bool {
	return r.Success && now.Sub(r.Timestamp) <= AuthCacheDuration
}

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// CredentialTestResult is either a single verdict or a verdict per host.
type CredentialTestResult struct {
	Verdict bool
	PerHost map[string]bool
}

// Passed reports whether credentials worked for host.
// A per-host result without an entry for host counts as a failure.
func (r CredentialTestResult) Passed(host string) bool {
	if r.PerHost != nil {
		return r.PerHost[host]
	}
	return r.Verdict
}

// AnyPassed reports whether at least one host accepted the credentials.
func (r CredentialTestResult) AnyPassed() bool {
	if r.PerHost == nil {
		return r.Verdict
	}
	for _, ok := range r.PerHost {
		if ok {
			return true
		}
	}
	return false
}

// EnvironmentOverrides captures the environment switches that steer strategy selection.
type EnvironmentOverrides struct {
	ForceSSH      bool   `json:"force_ssh"`
	PreferSSH     bool   `json:"prefer_ssh"`
	AuthStrategy  string `json:"auth_strategy,omitempty"`
	HasUsername   bool   `json:"git_username_set"`
	HasPassword   bool   `json:"git_password_set"`
	SSHCommandSet bool   `json:"git_ssh_command_set"`
}

// StrategyStatus is a diagnostic snapshot of a strategy.
type StrategyStatus struct {
	StrategyType          StrategyName          `json:"strategy_type"`
	LastSuccessfulMethods map[string]AuthMethod `json:"last_successful_methods"`
	Preferences           map[string]string     `json:"preferences"`
	EnvironmentOverrides  EnvironmentOverrides  `json:"environment_overrides"`
	SupportedMethods      []AuthMethod          `json:"supported_methods,omitempty"`

	SSHAgentActive          *bool `json:"ssh_agent_active,omitempty"`
	GitIntegrationAvailable *bool `json:"git_integration_available,omitempty"`
}
