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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

const (
	machineIDPath    = "/etc/machine-id"
	pbkdf2Iterations = 100000
	saltSize         = 16
	keySize          = 32
)

var errCiphertextTooShort = errors.New("encrypted passphrase is truncated")

type passphraseCipher struct {
	logger   *zap.SugaredLogger
	password []byte
}

// NewPassphraseCipher derives its key material from this machine: host name,
// machine id (or installID when there is none) and the home directory.
func NewPassphraseCipher(logger *zap.SugaredLogger, fs afero.Fs, homeDir, installID string) ports.PassphraseCipher {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	machineID := installID
	if data, err := afero.ReadFile(fs, machineIDPath); err == nil && strings.TrimSpace(string(data)) != "" {
		machineID = strings.TrimSpace(string(data))
	} else {
		logger.Debugw("no machine id, using install id for passphrase key", "path", machineIDPath)
	}
	return &passphraseCipher{
		logger:   logger,
		password: []byte(hostname + ":" + machineID + ":" + homeDir),
	}
}

func (c *passphraseCipher) Encrypt(plain []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plain)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt returns the plaintext; the caller owns and must wipe it.
func (c *passphraseCipher) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode passphrase: %w", err)
	}
	if len(raw) < saltSize {
		return nil, errCiphertextTooShort
	}
	gcm, err := c.aead(raw[:saltSize])
	if err != nil {
		return nil, err
	}
	rest := raw[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, errCiphertextTooShort
	}
	plain, err := gcm.Open(nil, rest[:gcm.NonceSize()], rest[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt passphrase: %w", err)
	}
	return plain, nil
}

func (c *passphraseCipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.password, salt, pbkdf2Iterations, keySize, sha256.New)
	defer domain.Wipe(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EnsureInstallID returns the persisted install id, generating and saving one on first use.
func EnsureInstallID(logger *zap.SugaredLogger, store ports.SettingsStore) string {
	settings, err := store.Load()
	if err != nil {
		logger.Warnw("could not load settings for install id", "error", err)
		return uuid.NewString()
	}
	if settings.InstallID != "" {
		return settings.InstallID
	}
	settings.InstallID = uuid.NewString()
	if err := store.Save(settings); err != nil {
		logger.Warnw("could not persist install id", "error", err)
	}
	return settings.InstallID
}
