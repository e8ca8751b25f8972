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

package config

import (
	"os"
	"sync"

	"github.com/Adembc/lazyagent/internal/core/ports"
)

type osEnvironment struct{}

// NewOSEnvironment returns the real process environment.
func NewOSEnvironment() ports.Environment {
	return osEnvironment{}
}

func (osEnvironment) Getenv(key string) string { return os.Getenv(key) }

func (osEnvironment) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

func (osEnvironment) Setenv(key, value string) error { return os.Setenv(key, value) }

// MapEnvironment is an in-memory Environment, used by tests and dry runs.
type MapEnvironment struct {
	mu   sync.RWMutex
	vars map[string]string
}

func NewMapEnvironment(vars map[string]string) *MapEnvironment {
	m := &MapEnvironment{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		m.vars[k] = v
	}
	return m
}

func (m *MapEnvironment) Getenv(key string) string {
	v, _ := m.LookupEnv(key)
	return v
}

func (m *MapEnvironment) LookupEnv(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[key]
	return v, ok
}

func (m *MapEnvironment) Setenv(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[key] = value
	return nil
}
