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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Adembc/lazyagent/internal/adapters/data/file"
	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const passphrasePrompt = "Enter SSH key passphrase: "

func newSetupCmd(get func() *app) *cobra.Command {
	var (
		passphrase       string
		promptPassphrase bool
		expiration       int
		reuseAgent       bool
		strategyName     string
		preferSSH        bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Store the identity file, passphrase and agent settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			out := cmd.OutOrStdout()
			changed := false

			if cmd.Flags().Changed("identity-file") {
				path, _ := cmd.Flags().GetString("identity-file")
				if _, err := a.fs.Stat(a.expandPath(path)); err != nil {
					return fmt.Errorf("identity file %s: %w", path, domain.ErrIdentityNotFound)
				}
				a.settings.IdentityFile = path
				_, _ = fmt.Fprintf(out, "identity file set to %s\n", path)
				changed = true
			}

			var secret []byte
			switch {
			case passphrase != "":
				secret = []byte(passphrase)
			case promptPassphrase:
				if !a.prompt.Available() {
					return fmt.Errorf("cannot prompt for a passphrase without a terminal")
				}
				read, err := a.prompt.ReadPassphrase(passphrasePrompt)
				if err != nil {
					return fmt.Errorf("read passphrase: %w", err)
				}
				secret = read
			}
			if len(secret) > 0 {
				encrypted, err := a.cipher.Encrypt(secret)
				domain.Wipe(secret)
				if err != nil {
					return fmt.Errorf("encrypt passphrase: %w", err)
				}
				a.settings.Passphrase = encrypted
				_, _ = fmt.Fprintln(out, "passphrase stored")
				changed = true
			}

			if cmd.Flags().Changed("expiration") {
				if expiration <= 0 {
					return fmt.Errorf("expiration must be a positive number of hours")
				}
				a.settings.ExpirationHours = expiration
				_, _ = fmt.Fprintf(out, "agent expiration set to %dh\n", expiration)
				changed = true
			}
			if cmd.Flags().Changed("reuse-agent") {
				a.settings.ReuseAgent = &reuseAgent
				_, _ = fmt.Fprintf(out, "agent reuse %s\n", map[bool]string{true: "enabled", false: "disabled"}[reuseAgent])
				changed = true
			}
			if cmd.Flags().Changed("strategy") {
				if _, err := a.strategy(strategyName); err != nil {
					return err
				}
				a.settings.AuthStrategy = string(domain.ParseStrategyName(strategyName))
				_, _ = fmt.Fprintf(out, "strategy set to %s\n", a.settings.AuthStrategy)
				changed = true
			}
			if cmd.Flags().Changed("prefer-ssh") {
				a.settings.PreferSSH = preferSSH
				changed = true
			}

			if !changed {
				return cmd.Help()
			}
			return a.saveSettings()
		},
	}
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Passphrase to store encrypted")
	cmd.Flags().BoolVar(&promptPassphrase, "prompt-passphrase", false, "Prompt for the passphrase to store")
	cmd.MarkFlagsMutuallyExclusive("passphrase", "prompt-passphrase")
	cmd.Flags().IntVar(&expiration, "expiration", 0, "Hours a persisted agent may be reused")
	cmd.Flags().BoolVar(&reuseAgent, "reuse-agent", true, "Reuse a persisted agent")
	cmd.Flags().StringVar(&strategyName, "strategy", "", strategyHelp())
	cmd.Flags().BoolVar(&preferSSH, "prefer-ssh", false, "Try SSH before credentials")
	return cmd
}

func newConfigCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, export, import or clear stored settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := get().settings
			if s.Passphrase != "" {
				s.Passphrase = "<encrypted>"
			}
			return writeYAML(cmd.OutOrStdout(), s)
		},
	})

	var output string
	var includeSensitive bool
	export := &cobra.Command{
		Use:   "export",
		Short: "Export settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			portable := a.settings.Portable(includeSensitive)
			if output == "" {
				return writeYAML(cmd.OutOrStdout(), portable)
			}
			data, err := yaml.Marshal(portable)
			if err != nil {
				return err
			}
			if err := afero.WriteFile(a.fs, a.expandPath(output), data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "settings exported to %s\n", output)
			return nil
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	export.Flags().BoolVar(&includeSensitive, "include-sensitive", false, "Include the encrypted passphrase")
	cmd.AddCommand(export)

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Merge settings from a YAML or JSON file ('-' for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = afero.ReadFile(a.fs, a.expandPath(args[0]))
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if err := a.backupSettings(cmd); err != nil {
				return err
			}
			settings, err := file.ImportSettings(a.store, data)
			if err != nil {
				return err
			}
			a.settings = settings
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "settings imported")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Reset settings to defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.backupSettings(cmd); err != nil {
				return err
			}
			defaults := domain.DefaultSettings()
			defaults.InstallID = a.settings.InstallID
			a.settings = defaults
			if err := a.saveSettings(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "settings cleared")
			return nil
		},
	})
	return cmd
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (a *app) backupSettings(cmd *cobra.Command) error {
	path, err := file.BackupSettings(a.fs, a.cfg.ConfigPath(settingsFileName))
	if err != nil {
		return err
	}
	if path != "" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "previous settings saved to %s\n", path)
	}
	return nil
}
