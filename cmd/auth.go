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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"github.com/Adembc/lazyagent/internal/core/services"
	"github.com/spf13/cobra"
)

const gitPassthroughTimeout = time.Hour

func strategyHelp() string {
	names := make([]string, 0, 3)
	for _, n := range services.AvailableStrategies() {
		names = append(names, string(n))
	}
	return "Authentication strategy (" + strings.Join(names, ", ") + ")"
}

func newAuthCmd(get func() *app) *cobra.Command {
	var username, password, strategyName string
	cmd := &cobra.Command{
		Use:   "auth <host>",
		Short: "Authenticate to a Git host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, host := get(), args[0]
			s, err := a.strategy(strategyName)
			if err != nil {
				return err
			}
			if !s.Authenticate(cmd.Context(), host, domain.Credentials{Username: username, Password: password}) {
				return fmt.Errorf("authentication failed for host %s", host)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "authenticated to %s via %s\n", host, services.WinningMethod(s, host))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Git username (default $GIT_USERNAME)")
	cmd.Flags().StringVar(&password, "password", "", "Git password or token (default $GIT_PASSWORD)")
	cmd.Flags().StringVar(&strategyName, "strategy", "", strategyHelp())
	return cmd
}

func newTestCmd(get func() *app) *cobra.Command {
	var strategyName string
	cmd := &cobra.Command{
		Use:   "test <host>",
		Short: "Check that a Git host accepts the current SSH key or credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, host := get(), args[0]
			s, err := a.strategy(strategyName)
			if err != nil {
				return err
			}
			if !s.TestConnection(cmd.Context(), host) {
				return fmt.Errorf("connection test failed for host %s", host)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "connection to %s ok\n", host)
			return nil
		},
	}
	cmd.Flags().StringVar(&strategyName, "strategy", "", strategyHelp())
	return cmd
}

type agentReport struct {
	Socket   string           `json:"socket,omitempty"`
	PID      string           `json:"pid,omitempty"`
	Recorded bool             `json:"recorded"`
	Valid    bool             `json:"valid"`
	Age      string           `json:"age,omitempty"`
	Keys     []ports.AgentKey `json:"keys"`
	KeyError string           `json:"key_error,omitempty"`
}

type statusReport struct {
	Strategy       domain.StrategyStatus   `json:"strategy"`
	Agent          agentReport             `json:"agent"`
	Identity       string                  `json:"identity,omitempty"`
	IdentitySource services.IdentitySource `json:"identity_source,omitempty"`
}

func (a *app) agentReport() agentReport {
	r := agentReport{
		Socket: a.env.Getenv(domain.EnvAuthSock),
		PID:    a.env.Getenv(domain.EnvAgentPID),
		Keys:   []ports.AgentKey{},
	}
	info, ok, err := a.agentInfo.Load()
	if err != nil {
		a.log.Warnw("could not read agent info", "error", err)
	}
	if ok {
		now := time.Now()
		r.Recorded = true
		r.Valid = info.IsValid(now, a.settings.Expiration())
		r.Age = info.Age(now).Round(time.Second).String()
		if r.Socket == "" {
			r.Socket, r.PID = info.AuthSock, info.AgentPID
		}
	}
	if r.Socket == "" {
		return r
	}
	keys, err := a.agentKeys.List(r.Socket)
	if err != nil {
		r.KeyError = err.Error()
		return r
	}
	r.Keys = keys
	return r
}

func newStatusCmd(get func() *app) *cobra.Command {
	var strategyName string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [host]",
		Short: "Show the agent, loaded keys and strategy state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			host := ""
			if len(args) == 1 {
				host = args[0]
			}
			s, err := a.strategy(strategyName)
			if err != nil {
				return err
			}
			report := statusReport{Strategy: s.Status(host), Agent: a.agentReport()}
			if host != "" {
				report.Identity, report.IdentitySource = a.identities.Resolve(host)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			ag := report.Agent
			kv(out,
				"strategy", string(report.Strategy.StrategyType),
				"agent socket", orDash(ag.Socket),
				"agent pid", orDash(ag.PID),
				"recorded agent", recordedAgent(ag),
			)
			if host != "" {
				kv(out, "identity", fmt.Sprintf("%s (%s)", report.Identity, report.IdentitySource))
			}
			ov := report.Strategy.EnvironmentOverrides
			kv(out,
				domain.EnvForceSSH, yesNo(ov.ForceSSH),
				domain.EnvPreferSSH, yesNo(ov.PreferSSH),
				domain.EnvAuthStrategy, orDash(ov.AuthStrategy),
				"GIT_USERNAME set", yesNo(ov.HasUsername),
				"GIT_PASSWORD set", yesNo(ov.HasPassword),
			)

			_, _ = fmt.Fprintln(out)
			switch {
			case ag.KeyError != "":
				_, _ = fmt.Fprintf(out, "agent keys unavailable: %s\n", ag.KeyError)
			case len(ag.Keys) == 0:
				_, _ = fmt.Fprintln(out, "agent holds no keys")
			default:
				t := newTable("TYPE", "FINGERPRINT", "COMMENT")
				for _, k := range ag.Keys {
					t.add(k.Type, k.Fingerprint, k.Comment)
				}
				t.render(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&strategyName, "strategy", "", strategyHelp())
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func recordedAgent(r agentReport) string {
	switch {
	case !r.Recorded:
		return "none"
	case r.Valid:
		return "valid, age " + r.Age
	default:
		return "stale, age " + r.Age
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newHealthCmd(get func() *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health [host]",
		Short: "Check git credential helpers and whether the credentials work",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			host := ""
			if len(args) == 1 {
				host = args[0]
			}
			h := a.git.Health(cmd.Context(), host)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(h); err != nil {
					return err
				}
			} else {
				kv(out, "status", h.Status, "message", orDash(h.Message), "helpers", orDash(strings.Join(h.Helpers, ", ")))
				t := newTable("HOST", "CREDENTIALS")
				for _, host := range sortedKeys(h.TestResults) {
					t.add(host, map[bool]string{true: "ok", false: "failed"}[h.TestResults[host]])
				}
				t.render(out)
			}
			if h.Status == "error" {
				return exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newGitSSHCommandCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "git-ssh-command <host>",
		Short: "Prepare the agent for host and print a GIT_SSH_COMMAND value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sshCmd, err := get().ssh.GitSSHCommand(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), sshCmd)
			return nil
		},
	}
}

func newGitCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:                "git [git args...]",
		Short:              "Run git after authenticating to the remote's host",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && args[0] == "--" {
				args = args[1:]
			}
			res, err := get().runGit(cmd, args)
			if err != nil {
				return err
			}
			if res.ExitCode != 0 {
				return exitError{code: res.ExitCode}
			}
			return nil
		},
	}
}

func (a *app) runGit(cmd *cobra.Command, args []string) (ports.CommandResult, error) {
	ctx := cmd.Context()
	host := services.HostFromArgs(args)
	if host == "" {
		a.log.Debugw("no remote host in git arguments, running git as is", "args", args)
		return a.runner.Run(ctx, ports.CommandRequest{
			Name:        "git",
			Args:        args,
			Timeout:     gitPassthroughTimeout,
			Passthrough: true,
		})
	}

	s, err := a.strategy("")
	if err != nil {
		return ports.CommandResult{}, err
	}
	if !s.Authenticate(ctx, host, domain.Credentials{}) {
		return ports.CommandResult{}, fmt.Errorf("authentication failed for host %s", host)
	}
	if services.WinningMethod(s, host) == domain.AuthMethodCredentials {
		return a.git.RunWithCredentials(ctx, args, domain.Credentials{})
	}
	sshCmd, err := a.ssh.SSHCommand(host)
	if err != nil {
		return ports.CommandResult{}, err
	}
	return a.git.RunWithSSH(ctx, args, sshCmd)
}
