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

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

type execRunner struct {
	logger     *zap.SugaredLogger
	newCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
	waitDelay  time.Duration
	// terminal is handed to passthrough commands that bring no stdin of their own.
	terminal io.Reader
}

// NewExecRunner creates a CommandRunner backed by os/exec.
func NewExecRunner(logger *zap.SugaredLogger) ports.CommandRunner {
	return &execRunner{
		logger:     logger,
		newCommand: exec.CommandContext,
		waitDelay:  time.Second,
		terminal:   os.Stdin,
	}
}

func (r *execRunner) Run(ctx context.Context, req ports.CommandRequest) (ports.CommandResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := r.newCommand(ctx, req.Name, req.Args...)
	if cmd == nil {
		return ports.CommandResult{ExitCode: -1}, fmt.Errorf("run %s: command factory returned nil", req.Name)
	}
	// Orphaned grandchildren can hold the pipes open after the kill.
	cmd.WaitDelay = r.waitDelay
	if len(req.Env) > 0 {
		base := cmd.Env
		if base == nil {
			base = os.Environ()
		}
		cmd.Env = append(base, req.Env...)
	}

	cmd.Stdin = bytes.NewReader(req.Stdin)
	if req.Passthrough && req.Stdin == nil && r.terminal != nil {
		cmd.Stdin = r.terminal
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if req.Passthrough {
		cmd.Stdout = io.MultiWriter(&stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	}

	start := time.Now()
	err := cmd.Run()
	res := ports.CommandResult{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.logger.Warnw("command timed out", "cmd", req.Name, "args", req.Args, "timeout", timeout)
		return res, fmt.Errorf("%s after %s: %w", req.Name, timeout, domain.ErrCommandTimeout)
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("run %s: %w", req.Name, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.Debugw("command exited non-zero", "cmd", req.Name, "args", req.Args,
				"exit_code", res.ExitCode, "elapsed", time.Since(start))
			return res, nil
		}
		r.logger.Errorw("command failed to run", "cmd", req.Name, "error", err)
		return res, fmt.Errorf("run %s: %w", req.Name, err)
	}

	r.logger.Debugw("command finished", "cmd", req.Name, "args", req.Args, "elapsed", time.Since(start))
	return res, nil
}
