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
	"regexp"
	"strings"
	"sync"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"go.uber.org/zap"
)

// hostConfigCache parses the user's ssh config at most once per instance.
type hostConfigCache struct {
	logger *zap.SugaredLogger
	parser ports.SSHConfigParser
	path   string

	once    sync.Once
	entries map[string]domain.HostConfigEntry
	order   []string
}

// NewHostConfigCache creates a lookup over the ssh config at path.
func NewHostConfigCache(logger *zap.SugaredLogger, parser ports.SSHConfigParser, path string) *hostConfigCache {
	return &hostConfigCache{logger: logger, parser: parser, path: path}
}

func (c *hostConfigCache) load() {
	c.once.Do(func() {
		entries, order, err := c.parser.ParseFile(c.path)
		if err != nil {
			c.logger.Warnw("ssh config unreadable, treating as empty", "path", c.path, "error", err)
			entries, order = map[string]domain.HostConfigEntry{}, nil
		}
		c.entries = entries
		c.order = order
		c.logger.Debugw("ssh config loaded", "path", c.path, "hosts", len(order))
	})
}

// Lookup returns the entry for host. An exact pattern match wins; otherwise
// the first glob pattern in file order that matches is used.
func (c *hostConfigCache) Lookup(host string) (domain.HostConfigEntry, bool) {
	c.load()
	if e, ok := c.entries[host]; ok {
		return e, true
	}
	for _, pattern := range c.order {
		if matchHostPattern(pattern, host) {
			return c.entries[pattern], true
		}
	}
	return domain.HostConfigEntry{}, false
}

// Entries returns every parsed entry in file order.
func (c *hostConfigCache) Entries() []domain.HostConfigEntry {
	c.load()
	out := make([]domain.HostConfigEntry, 0, len(c.order))
	for _, p := range c.order {
		out = append(out, c.entries[p])
	}
	return out
}

// matchHostPattern applies OpenSSH host pattern rules: whitespace or comma
// separated tokens, '*' and '?' wildcards, and '!' negation.
func matchHostPattern(pattern, host string) bool {
	matched := false
	for _, tok := range strings.FieldsFunc(pattern, func(r rune) bool { return r == ' ' || r == '\t' || r == ',' }) {
		negated := strings.HasPrefix(tok, "!")
		if negated {
			tok = tok[1:]
		}
		if !globToRegexp(tok).MatchString(host) {
			continue
		}
		if negated {
			return false
		}
		matched = true
	}
	return matched
}

func globToRegexp(glob string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(glob)
	quoted = strings.ReplaceAll(quoted, `\*`, `.*`)
	quoted = strings.ReplaceAll(quoted, `\?`, `.`)
	return regexp.MustCompile(`^` + quoted + `$`)
}
