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
	"strings"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

func newKeysCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage named SSH keys",
	}
	cmd.AddCommand(
		newKeysListCmd(get),
		newKeysDiscoverCmd(get),
		newKeysAddCmd(get),
		newKeysRemoveCmd(get),
		newKeysPubkeyCmd(get),
		newKeysLoadCmd(get),
	)
	return cmd
}

func (a *app) fingerprintOrDash(path string) string {
	fp, err := a.keys.Fingerprint(path)
	if err != nil {
		a.log.Debugw("no fingerprint for key", "path", path, "error", err)
		return "-"
	}
	return fp
}

func newKeysListCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if len(a.settings.Keys) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no keys configured")
				return nil
			}
			t := newTable("NAME", "PATH", "FINGERPRINT")
			for _, name := range sortedKeys(a.settings.Keys) {
				path := a.settings.Keys[name]
				t.add(name, path, a.fingerprintOrDash(a.expandPath(path)))
			}
			t.render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newKeysDiscoverCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List usable keys in ~/.ssh in preference order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			found := a.keys.Discover()
			if len(found) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no key pairs found in "+a.cfg.SSHDir())
				return nil
			}
			t := newTable("PATH", "FINGERPRINT")
			for _, path := range found {
				t.add(path, a.fingerprintOrDash(path))
			}
			t.render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newKeysAddCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <path>",
		Short: "Register a key under a name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			name, path := args[0], args[1]
			if _, err := a.fs.Stat(a.expandPath(path)); err != nil {
				return fmt.Errorf("key %s: %w", path, domain.ErrIdentityNotFound)
			}
			if a.settings.Keys == nil {
				a.settings.Keys = map[string]string{}
			}
			a.settings.Keys[name] = path
			if err := a.saveSettings(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "key %s added\n", name)
			return nil
		},
	}
}

func newKeysRemoveCmd(get func() *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "remove [name]",
		Short: "Remove a named key, or all of them with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if all {
				a.settings.Keys = nil
				if err := a.saveSettings(); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "all keys removed")
				return nil
			}
			name := args[0]
			if _, ok := a.settings.Keys[name]; !ok {
				return fmt.Errorf("no key named %s", name)
			}
			delete(a.settings.Keys, name)
			if err := a.saveSettings(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "key %s removed\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every configured key")
	return cmd
}

func newKeysPubkeyCmd(get func() *app) *cobra.Command {
	var copyKey bool
	cmd := &cobra.Command{
		Use:   "pubkey <name-or-path>",
		Short: "Print a key's public half in authorized_keys format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			pub, err := a.keys.PublicKey(a.keyPath(args[0]))
			if err != nil {
				return err
			}
			line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			if copyKey {
				if err := clipboard.WriteAll(line); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "copied to clipboard")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&copyKey, "copy", false, "Also copy the key to the clipboard")
	return cmd
}

func newKeysLoadCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <name-or-path>",
		Short: "Load a key into the persistent agent and print its environment",
		Long: "Load a key into the persistent agent, starting or reusing it, then print\n" +
			"shell assignments for its socket, e.g. eval \"$(lazyagent keys load work)\".",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			path := a.keyPath(args[0])
			if !a.agent.ReuseOrStart(cmd.Context(), path) {
				return fmt.Errorf("could not load %s into the agent (state %s)", path, a.agent.State())
			}
			out := cmd.OutOrStdout()
			for _, name := range []string{domain.EnvAuthSock, domain.EnvAgentPID} {
				if v := a.env.Getenv(name); v != "" {
					_, _ = fmt.Fprintf(out, "%s=%s; export %s;\n", name, v, name)
				}
			}
			return nil
		},
	}
}
