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

package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	sshConfigHostField     = "host"
	sshConfigMatchField    = "match"
	sshConfigHostNameField = "hostname"
	sshConfigUserField     = "user"
	sshConfigPortField     = "port"
	sshConfigKeyField      = "identityfile"
	sshConfigInclude       = "include"

	maxIncludeDepth  = 16
	invalidHostChars = `|[]{}\;`
)

// SSHConfigParser reads the subset of OpenSSH client configuration this tool
// cares about. It never fails on content: unknown or malformed lines are dropped.
type SSHConfigParser struct {
	fs      afero.Fs
	logger  *zap.SugaredLogger
	homeDir string
}

func NewSSHConfigParser(logger *zap.SugaredLogger, fs afero.Fs, homeDir string) *SSHConfigParser {
	return &SSHConfigParser{fs: fs, logger: logger, homeDir: homeDir}
}

// parseState is shared across included files so an Include inside a Host
// block contributes to that block.
type parseState struct {
	entries map[string]*domain.HostConfigEntry
	order   []string
	current *domain.HostConfigEntry
	// skipping is set inside Match blocks and after invalid Host lines.
	skipping bool
	baseDir  string
	visited  map[string]bool
}

// Parse returns the host entries of path keyed by pattern. A missing or
// unreadable file yields an empty mapping.
func (p *SSHConfigParser) Parse(path string) map[string]domain.HostConfigEntry {
	entries, _, err := p.ParseFile(path)
	if err != nil {
		p.logger.Warnw("ssh config unreadable, continuing without it", "path", path, "error", err)
		return map[string]domain.HostConfigEntry{}
	}
	return entries
}

// ParseFile is Parse with the host patterns in file order and the read error
// surfaced. A missing file is not an error.
func (p *SSHConfigParser) ParseFile(path string) (map[string]domain.HostConfigEntry, []string, error) {
	path = p.expandPath(path)
	st := &parseState{
		entries: make(map[string]*domain.HostConfigEntry),
		baseDir: filepath.Dir(path),
		visited: make(map[string]bool),
	}

	if err := p.parseInto(st, path, 0); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]domain.HostConfigEntry{}, nil, nil
		}
		return nil, nil, fmt.Errorf("read ssh config %s: %w", path, err)
	}

	out := make(map[string]domain.HostConfigEntry, len(st.entries))
	for k, v := range st.entries {
		out[k] = *v
	}
	return out, st.order, nil
}

func (p *SSHConfigParser) parseInto(st *parseState, path string, depth int) error {
	// #nosec G304 -- path comes from the user's own ssh config
	file, err := p.fs.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	st.visited[path] = true

	// Lines are read whole; a generated config may carry very long values.
	reader := bufio.NewReader(file)
	lineNo := 0
	for {
		raw, err := reader.ReadString('\n')
		if raw != "" {
			lineNo++
			p.parseLine(st, strings.TrimSpace(raw), path, lineNo, depth)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *SSHConfigParser) parseLine(st *parseState, line, path string, lineNo, depth int) {
	if p.shouldSkipLine(line) {
		return
	}

	key, value := p.parseKeyValue(line)
	if key == "" {
		p.logger.Debugw("skipping malformed ssh config line", "path", path, "line", lineNo)
		return
	}

	switch key {
	case sshConfigHostField:
		p.openHost(st, value, path, lineNo)
	case sshConfigMatchField:
		st.current = nil
		st.skipping = true
	case sshConfigInclude:
		p.include(st, value, depth)
	default:
		if st.skipping || st.current == nil {
			return
		}
		p.applyOption(st.current, key, value, path, lineNo)
	}
}

func (p *SSHConfigParser) openHost(st *parseState, pattern, path string, lineNo int) {
	if pattern == "" || strings.ContainsAny(pattern, invalidHostChars) {
		p.logger.Debugw("skipping invalid host pattern", "path", path, "line", lineNo, "pattern", pattern)
		st.current = nil
		st.skipping = true
		return
	}
	st.skipping = false
	if existing, ok := st.entries[pattern]; ok {
		st.current = existing
		return
	}
	entry := domain.NewHostConfigEntry(pattern)
	st.entries[pattern] = entry
	st.order = append(st.order, pattern)
	st.current = entry
}

func (p *SSHConfigParser) include(st *parseState, value string, depth int) {
	if depth >= maxIncludeDepth {
		p.logger.Warnw("include nesting too deep, ignoring", "include", value)
		return
	}
	for _, raw := range strings.Fields(value) {
		pattern := p.expandPath(unquote(raw))
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(st.baseDir, pattern)
		}
		matches, err := afero.Glob(p.fs, pattern)
		if err != nil {
			p.logger.Debugw("bad include pattern", "pattern", pattern, "error", err)
			continue
		}
		sort.Strings(matches)
		for _, match := range matches {
			if st.visited[match] {
				continue
			}
			if err := p.parseInto(st, match, depth+1); err != nil {
				p.logger.Warnw("failed to read included ssh config", "path", match, "error", err)
			}
		}
	}
}

func (p *SSHConfigParser) applyOption(entry *domain.HostConfigEntry, key, value, path string, lineNo int) {
	validate, known := optionValidators[key]
	if !known {
		p.logger.Debugw("ignoring unsupported ssh option", "option", key, "path", path, "line", lineNo)
		return
	}
	normalized, ok := validate(value)
	if !ok {
		p.logger.Debugw("ignoring invalid ssh option value", "option", key, "value", value, "path", path, "line", lineNo)
		return
	}

	if multiValueOptions[key] {
		entry.MultiOptions[key] = append(entry.MultiOptions[key], normalized)
		if key == sshConfigKeyField {
			entry.IdentityFiles = append(entry.IdentityFiles, normalized)
		}
		return
	}

	entry.Options[key] = normalized
	switch key {
	case sshConfigHostNameField:
		entry.HostName = normalized
	case sshConfigUserField:
		entry.User = normalized
	case sshConfigPortField:
		// validatePort already range-checked the value.
		entry.Port, _ = strconv.Atoi(normalized)
	}
}

func (p *SSHConfigParser) shouldSkipLine(line string) bool {
	return line == "" || strings.HasPrefix(line, "#")
}

// parseKeyValue splits "Key value", "Key=value" and "Key = value".
// The whole remainder after the separator is the value.
func (p *SSHConfigParser) parseKeyValue(line string) (string, string) {
	idx := strings.IndexAny(line, " \t=")
	if idx < 0 {
		// A bare "Host" still opens a (rejected) block.
		if strings.ToLower(line) == sshConfigHostField {
			return sshConfigHostField, ""
		}
		return "", ""
	}
	if idx == 0 {
		return "", ""
	}
	key := strings.ToLower(line[:idx])
	rest := strings.TrimLeft(line[idx:], " \t")
	if strings.HasPrefix(rest, "=") {
		rest = strings.TrimLeft(rest[1:], " \t")
	}
	rest = strings.TrimSpace(rest)
	if key != sshConfigHostField && rest == "" {
		return "", ""
	}
	if key != sshConfigHostField && key != sshConfigInclude {
		rest = unquote(rest)
	}
	return key, rest
}

func (p *SSHConfigParser) expandPath(path string) string {
	if path == "~" {
		return p.homeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(p.homeDir, path[2:])
	}
	return path
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
