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

package domain

// Secret holds a passphrase for a single use. Callers must Wipe it once
// the consuming subprocess has returned.
type Secret struct {
	b []byte
}

func NewSecret(s string) *Secret {
	if s == "" {
		return nil
	}
	return &Secret{b: []byte(s)}
}

func NewSecretBytes(b []byte) *Secret {
	if len(b) == 0 {
		return nil
	}
	return &Secret{b: b}
}

func (s *Secret) Empty() bool {
	return s == nil || len(s.b) == 0
}

// Line returns a fresh copy of the secret followed by a newline, suitable for
// writing to a child's stdin. The caller owns and must wipe the copy.
func (s *Secret) Line() []byte {
	if s.Empty() {
		return nil
	}
	out := make([]byte, len(s.b)+1)
	copy(out, s.b)
	out[len(s.b)] = '\n'
	return out
}

// Take moves the bytes into a new Secret, leaving s empty.
func (s *Secret) Take() *Secret {
	if s.Empty() {
		return nil
	}
	out := &Secret{b: s.b}
	s.b = nil
	return out
}

func (s *Secret) Wipe() {
	if s == nil {
		return
	}
	Wipe(s.b)
	s.b = nil
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
