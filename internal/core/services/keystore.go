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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

const (
	sshAddBinary = "ssh-add"

	noPassphraseTimeout = time.Second
	passphraseTimeout   = 5 * time.Second
	listKeysTimeout     = 5 * time.Second

	passphrasePromptMarker = "Enter passphrase"
)

// KeyTypes lists private key base names in preference order.
var KeyTypes = []string{
	"id_ed25519",
	"id_ecdsa",
	"id_ecdsa_sk",
	"id_ed25519_sk",
	"id_rsa",
	"id_dsa",
}

// PassphraseSource names where a passphrase came from.
type PassphraseSource string

const (
	PassphraseExplicit   PassphraseSource = "explicit"
	PassphraseConfigured PassphraseSource = "configured"
	PassphraseStored     PassphraseSource = "stored"
	PassphrasePrompted   PassphraseSource = "prompt"
)

type KeyStoreOptions struct {
	SSHDir  string
	HomeDir string
	// Passphrase is used for every key that needs one, ahead of the stored one.
	Passphrase string
}

type keyStore struct {
	logger *zap.SugaredLogger
	fs     afero.Fs
	runner ports.CommandRunner

	sshDir     string
	homeDir    string
	passphrase string

	settings ports.SettingsStore
	cipher   ports.PassphraseCipher
	prompt   ports.PassphrasePrompt
}

// NewKeyStore wires key discovery and ssh-add orchestration. settings, cipher
// and prompt may be nil, which disables the corresponding passphrase source.
func NewKeyStore(logger *zap.SugaredLogger, fs afero.Fs, runner ports.CommandRunner, settings ports.SettingsStore,
	cipher ports.PassphraseCipher, prompt ports.PassphrasePrompt, opts KeyStoreOptions,
) *keyStore {
	return &keyStore{
		logger:     logger,
		fs:         fs,
		runner:     runner,
		sshDir:     opts.SSHDir,
		homeDir:    opts.HomeDir,
		passphrase: opts.Passphrase,
		settings:   settings,
		cipher:     cipher,
		prompt:     prompt,
	}
}

// Discover lists usable private keys in preference order. Each key type is
// followed by its numbered variants (id_rsa2, id_rsa10) in numeric order.
// Keys without a matching .pub file are skipped.
func (k *keyStore) Discover() []string {
	names := k.dirNames()
	var keys []string
	for _, keyType := range KeyTypes {
		base := filepath.Join(k.sshDir, keyType)
		if k.hasKeyPair(base) {
			keys = append(keys, base)
		}

		numbered := regexp.MustCompile(`^` + regexp.QuoteMeta(keyType) + `([0-9]+)$`)
		type variant struct {
			path string
			n    int
		}
		var variants []variant
		for _, name := range names {
			m := numbered.FindStringSubmatch(name)
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			path := filepath.Join(k.sshDir, name)
			if k.hasKeyPair(path) {
				variants = append(variants, variant{path: path, n: n})
			}
		}
		sort.Slice(variants, func(i, j int) bool { return variants[i].n < variants[j].n })
		for _, v := range variants {
			keys = append(keys, v.path)
		}
	}
	return keys
}

func (k *keyStore) dirNames() []string {
	infos, err := afero.ReadDir(k.fs, k.sshDir)
	if err != nil {
		if !os.IsNotExist(err) {
			k.logger.Warnw("cannot list ssh directory", "dir", k.sshDir, "error", err)
		}
		return nil
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	return names
}

func (k *keyStore) hasKeyPair(path string) bool {
	if _, err := k.fs.Stat(path); err != nil {
		return false
	}
	_, err := k.fs.Stat(path + ".pub")
	return err == nil
}

// TryLoadWithoutPassphrase runs ssh-add with empty input. A prompt marker on
// stderr or a timeout means the key needs a passphrase.
func (k *keyStore) TryLoadWithoutPassphrase(ctx context.Context, keyPath string) (loaded, needsPassphrase bool) {
	res, err := k.runner.Run(ctx, ports.CommandRequest{
		Name:    sshAddBinary,
		Args:    []string{keyPath},
		Stdin:   []byte{},
		Timeout: noPassphraseTimeout,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCommandTimeout) {
			k.logger.Debugw("ssh-add waited for input, assuming passphrase", "key", keyPath)
			return false, true
		}
		k.logger.Errorw("error adding key", "key", keyPath, "error", err)
		return false, false
	}
	if res.ExitCode == 0 {
		k.logger.Debugw("key added without passphrase", "key", keyPath)
		return true, false
	}
	if strings.Contains(res.Stderr, passphrasePromptMarker) {
		return false, true
	}
	k.logger.Errorw("failed to add key", "key", keyPath, "stderr", strings.TrimSpace(res.Stderr))
	return false, false
}

// LoadWithPassphrase feeds the secret to ssh-add. The secret is wiped before
// returning, whatever the outcome.
func (k *keyStore) LoadWithPassphrase(ctx context.Context, keyPath string, secret *domain.Secret) bool {
	defer secret.Wipe()
	if secret.Empty() {
		return false
	}
	input := secret.Line()
	defer domain.Wipe(input)

	res, err := k.runner.Run(ctx, ports.CommandRequest{
		Name:    sshAddBinary,
		Args:    []string{keyPath},
		Stdin:   input,
		Timeout: passphraseTimeout,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCommandTimeout) {
			k.logger.Errorw("timeout while adding key with passphrase", "key", keyPath)
		} else {
			k.logger.Errorw("error adding key with passphrase", "key", keyPath, "error", err)
		}
		return false
	}
	if res.ExitCode != 0 {
		k.logger.Errorw("failed to add key with passphrase", "key", keyPath, "exit_code", res.ExitCode)
		return false
	}
	k.logger.Debugw("key added with passphrase", "key", keyPath)
	return true
}

// VerifyLoaded reports whether the agent lists keyPath, matched either by
// path or by the fingerprint of its public key.
func (k *keyStore) VerifyLoaded(ctx context.Context, keyPath string) bool {
	res, err := k.runner.Run(ctx, ports.CommandRequest{
		Name:    sshAddBinary,
		Args:    []string{"-l"},
		Timeout: listKeysTimeout,
	})
	if err != nil || res.ExitCode != 0 {
		return false
	}
	if listsField(res.Stdout, keyPath) || listsField(res.Stdout, k.expand(keyPath)) {
		return true
	}
	fp, err := k.Fingerprint(keyPath)
	if err != nil {
		return false
	}
	return listsField(res.Stdout, fp)
}

// listsField reports whether any line of ssh-add -l output carries want as a
// whole field.
func listsField(out, want string) bool {
	if want == "" {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		for _, field := range strings.Fields(line) {
			if field == want {
				return true
			}
		}
	}
	return false
}

// Fingerprint returns the SHA256 fingerprint of keyPath's public half.
func (k *keyStore) Fingerprint(keyPath string) (string, error) {
	pub, err := k.PublicKey(keyPath)
	if err != nil {
		return "", err
	}
	return ssh.FingerprintSHA256(pub), nil
}

// PublicKey reads and parses keyPath.pub.
func (k *keyStore) PublicKey(keyPath string) (ssh.PublicKey, error) {
	data, err := afero.ReadFile(k.fs, k.expand(keyPath)+".pub")
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key %s.pub: %w", keyPath, err)
	}
	return pub, nil
}

// AddKey loads keyPath into the agent, trying without a passphrase first and
// then with the first passphrase source that yields a value.
func (k *keyStore) AddKey(ctx context.Context, keyPath string, explicit *domain.Secret) bool {
	defer explicit.Wipe()

	keyPath = k.expand(keyPath)
	if _, err := k.fs.Stat(keyPath); err != nil {
		k.logger.Errorw("identity file not found", "key", keyPath, "error", domain.ErrIdentityNotFound)
		return false
	}

	loaded, needsPassphrase := k.TryLoadWithoutPassphrase(ctx, keyPath)
	if loaded {
		return true
	}
	if !needsPassphrase {
		return false
	}

	secret, source := k.passphraseFor(keyPath, explicit)
	if secret.Empty() {
		k.logger.Warnw("key needs a passphrase but none is available", "key", keyPath, "error", domain.ErrNeedsPassphrase)
		return false
	}
	k.logger.Debugw("retrying key with passphrase", "key", keyPath, "source", source)
	if !k.LoadWithPassphrase(ctx, keyPath, secret) {
		k.logger.Errorw("failed to add key to agent", "key", keyPath, "error", domain.ErrKeyLoad)
		return false
	}
	return true
}

// passphraseFor walks the passphrase sources in order: explicit, configured,
// stored (encrypted in settings), interactive prompt.
func (k *keyStore) passphraseFor(keyPath string, explicit *domain.Secret) (*domain.Secret, PassphraseSource) {
	if !explicit.Empty() {
		return explicit.Take(), PassphraseExplicit
	}
	if k.passphrase != "" {
		return domain.NewSecret(k.passphrase), PassphraseConfigured
	}
	if s := k.storedPassphrase(); !s.Empty() {
		return s, PassphraseStored
	}
	if k.prompt != nil && k.prompt.Available() {
		b, err := k.prompt.ReadPassphrase(fmt.Sprintf("Enter passphrase for %s: ", keyPath))
		if err != nil {
			k.logger.Warnw("passphrase prompt failed", "error", err)
			return nil, PassphrasePrompted
		}
		return domain.NewSecretBytes(b), PassphrasePrompted
	}
	return nil, ""
}

func (k *keyStore) storedPassphrase() *domain.Secret {
	if k.settings == nil || k.cipher == nil {
		return nil
	}
	settings, err := k.settings.Load()
	if err != nil || settings.Passphrase == "" {
		return nil
	}
	plain, err := k.cipher.Decrypt(settings.Passphrase)
	if err != nil {
		k.logger.Warnw("stored passphrase could not be decrypted", "error", err)
		return nil
	}
	return domain.NewSecretBytes(plain)
}

func (k *keyStore) expand(p string) string {
	if p == "~" {
		return k.homeDir
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(k.homeDir, p[2:])
	}
	return p
}
