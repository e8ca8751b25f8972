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
	"regexp"
	"strconv"
	"strings"

	"github.com/Adembc/lazyagent/internal/core/domain"
)

type optionValidator func(value string) (string, bool)

var durationPattern = regexp.MustCompile(`^([0-9]+[sSmMhHdDwW]?)+$`)

// multiValueOptions accumulate across lines instead of overwriting.
var multiValueOptions = map[string]bool{
	"identityfile":    true,
	"certificatefile": true,
	"sendenv":         true,
	"setenv":          true,
	"localforward":    true,
	"remoteforward":   true,
	"dynamicforward":  true,
}

var optionValidators = map[string]optionValidator{
	"hostname": validateHostname,
	"port":     validatePort,
	"user":     validateUser,

	"identityfile":    nonEmpty,
	"certificatefile": nonEmpty,
	"identityagent":   nonEmpty,
	"proxycommand":    nonEmpty,
	"proxyjump":       nonEmpty,

	"userknownhostsfile": nonEmpty,
	"controlpath":        nonEmpty,
	"controlpersist":     validateControlPersist,

	"identitiesonly":         oneOf("yes", "no"),
	"forwardagent":           oneOf("yes", "no"),
	"batchmode":              oneOf("yes", "no"),
	"compression":            oneOf("yes", "no"),
	"tcpkeepalive":           oneOf("yes", "no"),
	"pubkeyauthentication":   oneOf("yes", "no"),
	"passwordauthentication": oneOf("yes", "no"),
	"stricthostkeychecking":  oneOf("yes", "no", "accept-new", "off", "ask"),
	"requesttty":             oneOf("yes", "no", "force", "auto"),
	"controlmaster":          oneOf("yes", "no", "ask", "auto", "autoask"),
	"canonicalizehostname":   oneOf("yes", "no", "always"),
	"addkeystoagent":         oneOf("yes", "no", "ask", "confirm"),
	"addressfamily":          oneOf("any", "inet", "inet6"),
	"loglevel":               oneOf("quiet", "fatal", "error", "info", "verbose", "debug", "debug1", "debug2", "debug3"),

	"connecttimeout":      intAtLeast(1),
	"connectionattempts":  intAtLeast(1),
	"serveraliveinterval": intAtLeast(0),
	"serveralivecountmax": intAtLeast(0),
	"canonicalizemaxdots": intAtLeast(0),

	"preferredauthentications": nonEmpty,
	"hostkeyalgorithms":        nonEmpty,
	"kexalgorithms":            nonEmpty,
	"ciphers":                  nonEmpty,
	"macs":                     nonEmpty,

	"sendenv":        nonEmpty,
	"setenv":         nonEmpty,
	"localforward":   nonEmpty,
	"remoteforward":  nonEmpty,
	"dynamicforward": nonEmpty,
}

func nonEmpty(v string) (string, bool) {
	v = strings.TrimSpace(v)
	return v, v != ""
}

// oneOf accepts the allowed literals case-insensitively and stores them lower-cased.
func oneOf(allowed ...string) optionValidator {
	return func(v string) (string, bool) {
		lv := strings.ToLower(strings.TrimSpace(v))
		for _, a := range allowed {
			if lv == a {
				return lv, true
			}
		}
		return "", false
	}
}

func intAtLeast(min int) optionValidator {
	return func(v string) (string, bool) {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < min {
			return "", false
		}
		return strconv.Itoa(n), true
	}
}

func parseIntInRange(v string, min, max int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}

func validatePort(v string) (string, bool) {
	n, ok := parseIntInRange(v, 1, 65535)
	if !ok {
		return "", false
	}
	return strconv.Itoa(n), true
}

func validateUser(v string) (string, bool) {
	if v == "" || strings.ContainsAny(v, " \t") {
		return "", false
	}
	return v, true
}

func validateControlPersist(v string) (string, bool) {
	lv := strings.ToLower(strings.TrimSpace(v))
	if lv == "yes" || lv == "no" || durationPattern.MatchString(lv) {
		return lv, true
	}
	return "", false
}

// validateHostname accepts IP literals and RFC 1123 host names.
func validateHostname(v string) (string, bool) {
	return v, domain.IsValidHostname(v)
}
