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

package ssh_config_file

import (
	"os"
	"sync"

	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/kevinburke/ssh_config"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const DefaultSystemConfigPath = "/etc/ssh/ssh_config"

// SystemConfig answers lookups against the system-wide ssh_config. The file is
// decoded once, lazily; any failure leaves it empty.
type SystemConfig struct {
	fs         afero.Fs
	logger     *zap.SugaredLogger
	configPath string

	once sync.Once
	cfg  *ssh_config.Config
}

func NewSystemConfig(logger *zap.SugaredLogger, fs afero.Fs, configPath string) ports.SystemConfig {
	return &SystemConfig{fs: fs, logger: logger, configPath: configPath}
}

func (s *SystemConfig) IdentityFiles(host string) []string {
	cfg := s.load()
	if cfg == nil {
		return nil
	}
	values, err := cfg.GetAll(host, "IdentityFile")
	if err != nil {
		s.logger.Debugw("system ssh config lookup failed", "host", host, "error", err)
		return nil
	}
	return values
}

func (s *SystemConfig) User(host string) string {
	cfg := s.load()
	if cfg == nil {
		return ""
	}
	value, err := cfg.Get(host, "User")
	if err != nil {
		return ""
	}
	return value
}

func (s *SystemConfig) load() *ssh_config.Config {
	s.once.Do(func() {
		file, err := s.fs.Open(s.configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warnf("failed to open system ssh config: %v", err)
			}
			return
		}
		defer func() {
			if cerr := file.Close(); cerr != nil {
				s.logger.Warnf("failed to close system ssh config: %v", cerr)
			}
		}()

		cfg, err := ssh_config.Decode(file)
		if err != nil {
			s.logger.Debugw("system ssh config not decodable, ignoring", "path", s.configPath, "error", err)
			return
		}
		s.cfg = cfg
	})
	return s.cfg
}
