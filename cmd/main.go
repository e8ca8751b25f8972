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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adembc/lazyagent/internal/adapters/flags"
	"github.com/spf13/cobra"
)

const appName = "lazyagent"

var (
	version   = "develop"
	gitCommit = "unknown"
)

// exitError carries a child process exit code out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	var a *app

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Reuse one ssh-agent across runs and pick SSH or credentials for Git hosts",
		Version:       fmt.Sprintf("%s (%s)", version, gitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	fp := flags.NewCobraFlags(rootCmd)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		a = newApp(appOptions{
			debug:        fp.IsDebug(),
			verbose:      fp.IsVerbose(),
			identityFile: fp.GetFlag("identity-file"),
		})
	}

	get := func() *app { return a }
	rootCmd.AddCommand(
		newAuthCmd(get),
		newTestCmd(get),
		newStatusCmd(get),
		newHealthCmd(get),
		newSetupCmd(get),
		newConfigCmd(get),
		newKeysCmd(get),
		newGitSSHCommandCmd(get),
		newGitCmd(get),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if a != nil {
		//nolint:errcheck // log.Sync may return an error which is safe to ignore here
		a.log.Sync()
	}
	if err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
