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

// HostConfigEntry is the resolved set of options for one Host block of an SSH config file.
type HostConfigEntry struct {
	Pattern       string
	HostName      string
	User          string
	Port          int
	IdentityFiles []string

	// Options holds every retained single-value option, keyed by lower-cased name.
	Options map[string]string
	// MultiOptions holds options that accumulate in file order.
	MultiOptions map[string][]string
}

func NewHostConfigEntry(pattern string) *HostConfigEntry {
	return &HostConfigEntry{
		Pattern:      pattern,
		Options:      make(map[string]string),
		MultiOptions: make(map[string][]string),
	}
}

// Option returns the first value recorded for name, single or multi.
func (e HostConfigEntry) Option(name string) (string, bool) {
	if v, ok := e.Options[name]; ok {
		return v, true
	}
	if vs, ok := e.MultiOptions[name]; ok && len(vs) > 0 {
		return vs[0], true
	}
	return "", false
}
