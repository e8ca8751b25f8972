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
	"runtime"
	"time"
)

const DefaultAgentExpiration = 24 * time.Hour

// AgentInfo is the persisted pointer to a running ssh-agent.
// The JSON keys match what earlier versions of the tool wrote. Those versions
// recorded the platform as "posix" or "nt"; see samePlatform.
type AgentInfo struct {
	AuthSock  string  `json:"SSH_AUTH_SOCK"`
	AgentPID  string  `json:"SSH_AGENT_PID"`
	Timestamp float64 `json:"timestamp"`
	Platform  string  `json:"platform"`
}

func NewAgentInfo(authSock, agentPID string, now time.Time) AgentInfo {
	return AgentInfo{
		AuthSock:  authSock,
		AgentPID:  agentPID,
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
		Platform:  runtime.GOOS,
	}
}

func (a AgentInfo) CreatedAt() time.Time {
	sec := int64(a.Timestamp)
	nsec := int64((a.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// Age returns how old the record is relative to now.
func (a AgentInfo) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt())
}

// IsValid reports whether the record is complete, younger than maxAge and
// was written on the current platform.
func (a AgentInfo) IsValid(now time.Time, maxAge time.Duration) bool {
	if a.AuthSock == "" || a.AgentPID == "" || a.Timestamp == 0 || a.Platform == "" {
		return false
	}
	if !samePlatform(a.Platform, runtime.GOOS) {
		return false
	}
	return a.Age(now) <= maxAge
}

func samePlatform(recorded, goos string) bool {
	switch recorded {
	case goos:
		return true
	case "nt":
		return goos == "windows"
	case "posix":
		return goos != "windows"
	}
	return false
}

// AgentState tracks where a ReuseOrStart call is in its lifecycle.
type AgentState int

const (
	AgentNoAgent AgentState = iota
	AgentCachedInfoFound
	AgentVerifiedAlive
	AgentKeyLoaded
	AgentFailed
)

func (s AgentState) String() string {
	switch s {
	case AgentNoAgent:
		return "no_agent"
	case AgentCachedInfoFound:
		return "cached_info_found"
	case AgentVerifiedAlive:
		return "verified_alive"
	case AgentKeyLoaded:
		return "key_loaded"
	case AgentFailed:
		return "failed"
	default:
		return "unknown"
	}
}
