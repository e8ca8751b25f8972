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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const AgentInfoFileName = "agent_info.json"

type agentInfoStore struct {
	fs       afero.Fs
	logger   *zap.SugaredLogger
	filePath string
}

// NewAgentInfoStore persists agent info as JSON at filePath.
func NewAgentInfoStore(logger *zap.SugaredLogger, fs afero.Fs, filePath string) ports.AgentInfoStore {
	return &agentInfoStore{fs: fs, logger: logger, filePath: filePath}
}

// Load returns the stored record. A missing or corrupt file is reported as
// absent; only unexpected read errors are returned.
func (s *agentInfoStore) Load() (domain.AgentInfo, bool, error) {
	data, err := afero.ReadFile(s.fs, s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.AgentInfo{}, false, nil
		}
		return domain.AgentInfo{}, false, fmt.Errorf("read agent info: %w", err)
	}

	var info domain.AgentInfo
	if err := json.Unmarshal(data, &info); err != nil {
		s.logger.Warnw("ignoring corrupt agent info file", "path", s.filePath, "error", err)
		return domain.AgentInfo{}, false, nil
	}
	return info, true, nil
}

func (s *agentInfoStore) Save(info domain.AgentInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	if isOsFs(s.fs) {
		if err := s.fs.MkdirAll(filepath.Dir(s.filePath), privateDirPerms); err != nil {
			return err
		}
		lock := flock.New(s.filePath + ".lock")
		if err := lock.Lock(); err != nil {
			s.logger.Warnw("could not lock agent info file, writing anyway", "error", err)
		} else {
			defer func() { _ = lock.Unlock() }()
		}
	}

	if err := writeFileAtomic(s.fs, s.filePath, data); err != nil {
		return fmt.Errorf("write agent info: %w", err)
	}
	s.logger.Debugw("saved agent info", "path", s.filePath, "pid", info.AgentPID)
	return nil
}
