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
	"fmt"
	"path/filepath"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type settingsManager struct {
	fs       afero.Fs
	logger   *zap.SugaredLogger
	filePath string
}

// NewSettingsManager stores application settings as YAML at filePath.
func NewSettingsManager(logger *zap.SugaredLogger, fs afero.Fs, filePath string) ports.SettingsStore {
	return &settingsManager{fs: fs, logger: logger, filePath: filePath}
}

func (sm *settingsManager) Load() (domain.Settings, error) {
	// If the settings file doesn't exist, create the default one and save it
	if !fileExists(sm.fs, sm.filePath) {
		defaults := domain.DefaultSettings()
		if err := sm.Save(defaults); err != nil {
			sm.logger.Warnw("could not write default settings", "path", sm.filePath, "error", err)
		}
		return defaults, nil
	}

	data, err := afero.ReadFile(sm.fs, sm.filePath)
	if err != nil {
		return domain.DefaultSettings(), fmt.Errorf("read settings: %w", err)
	}

	settings := domain.DefaultSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return domain.DefaultSettings(), fmt.Errorf("parse settings %s: %w", sm.filePath, err)
	}
	return settings, nil
}

func (sm *settingsManager) Save(settings domain.Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(sm.fs, sm.filePath, data); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// ImportSettings merges the YAML (or JSON) document in data into the stored
// settings. Keys absent from data keep their current values.
func ImportSettings(store ports.SettingsStore, data []byte) (domain.Settings, error) {
	current, err := store.Load()
	if err != nil {
		return current, err
	}
	if err := yaml.Unmarshal(data, &current); err != nil {
		return current, fmt.Errorf("parse imported settings: %w", err)
	}
	if err := store.Save(current); err != nil {
		return current, err
	}
	return current, nil
}

// BackupSettings copies the settings file at path to backups/<name>.backup
// next to it, overwriting any previous backup. A missing file is not backed up.
func BackupSettings(fs afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if fileExists(fs, path) {
			return "", fmt.Errorf("read settings for backup: %w", err)
		}
		return "", nil
	}
	backupPath := filepath.Join(filepath.Dir(path), "backups", filepath.Base(path)+".backup")
	if err := writeFileAtomic(fs, backupPath, data); err != nil {
		return "", fmt.Errorf("write settings backup: %w", err)
	}
	return backupPath, nil
}
