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

import "errors"

var (
	ErrAgentSpawn          = errors.New("failed to start ssh-agent")
	ErrKeyLoad             = errors.New("failed to load key into agent")
	ErrNeedsPassphrase     = errors.New("key requires a passphrase")
	ErrProbeFailed         = errors.New("connection probe failed")
	ErrStrategyExhausted   = errors.New("all authentication methods failed")
	ErrUnsupportedStrategy = errors.New("unsupported authentication strategy")
	ErrCommandTimeout      = errors.New("command timed out")
	ErrInvalidHostname     = errors.New("invalid hostname")
	ErrIdentityNotFound    = errors.New("identity file not found")
)
