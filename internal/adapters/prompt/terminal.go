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

package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Adembc/lazyagent/internal/core/ports"
	"golang.org/x/term"
)

var errNotTerminal = errors.New("stdin is not a terminal")

// TerminalPrompt reads passphrases from the controlling terminal with echo disabled.
type TerminalPrompt struct {
	in  *os.File
	out io.Writer

	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
}

func NewTerminalPrompt() ports.PassphrasePrompt {
	return &TerminalPrompt{
		in:           os.Stdin,
		out:          os.Stderr,
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
	}
}

func (p *TerminalPrompt) Available() bool {
	fd, ok := terminalFD(p.in)
	return ok && p.isTerminal(fd)
}

// ReadPassphrase returns the raw bytes; the caller must wipe them.
func (p *TerminalPrompt) ReadPassphrase(prompt string) ([]byte, error) {
	fd, ok := terminalFD(p.in)
	if !ok || !p.isTerminal(fd) {
		return nil, errNotTerminal
	}
	_, _ = fmt.Fprint(p.out, prompt)
	b, err := p.readPassword(fd)
	_, _ = fmt.Fprintln(p.out)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return b, nil
}

func terminalFD(file *os.File) (int, bool) {
	if file == nil {
		return 0, false
	}
	maxInt := int(^uint(0) >> 1)
	fd := file.Fd()
	if fd > uintptr(maxInt) {
		return 0, false
	}
	return int(fd), true // #nosec G115 -- os.File descriptors fit into int on supported platforms
}
