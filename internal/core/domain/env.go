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

import "strings"

// Environment variables read or exported by the tool.
const (
	EnvAuthSock     = "SSH_AUTH_SOCK"
	EnvAgentPID     = "SSH_AGENT_PID"
	EnvIdentityFile = "SSH_IDENTITY_FILE"
	EnvForceSSH     = "FORCE_SSH_AUTH"
	EnvPreferSSH    = "PREFER_SSH_AUTH"
	EnvAuthStrategy = "AUTH_STRATEGY"
	EnvGitUsername  = "GIT_USERNAME"
	EnvGitPassword  = "GIT_PASSWORD"
	EnvGitSSHCmd    = "GIT_SSH_COMMAND"
	EnvDebug        = "LAZYAGENT_DEBUG"
)

// IsTruthy reports whether an environment value means "on".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
