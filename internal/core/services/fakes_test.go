package services

import (
	"context"
	"strings"
	"sync"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/Adembc/lazyagent/internal/core/ports"
)

// fakeRunner records every request and answers through handler.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []ports.CommandRequest
	handler func(req ports.CommandRequest) (ports.CommandResult, error)
}

func (f *fakeRunner) Run(_ context.Context, req ports.CommandRequest) (ports.CommandResult, error) {
	f.mu.Lock()
	cp := req
	cp.Stdin = append([]byte(nil), req.Stdin...)
	f.calls = append(f.calls, cp)
	f.mu.Unlock()
	if f.handler == nil {
		return ports.CommandResult{}, nil
	}
	return f.handler(req)
}

// count returns how many recorded calls match name and start with args.
func (f *fakeRunner) count(name string, args ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Name != name || len(c.Args) < len(args) {
			continue
		}
		if strings.Join(c.Args[:len(args)], "\x00") == strings.Join(args, "\x00") {
			n++
		}
	}
	return n
}

type fakeEnv struct {
	mu   sync.Mutex
	vars map[string]string
}

func newFakeEnv(kv ...string) *fakeEnv {
	e := &fakeEnv{vars: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		e.vars[kv[i]] = kv[i+1]
	}
	return e
}

func (e *fakeEnv) Getenv(k string) string {
	v, _ := e.LookupEnv(k)
	return v
}

func (e *fakeEnv) LookupEnv(k string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vars[k]
	return v, ok
}

func (e *fakeEnv) Setenv(k, v string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[k] = v
	return nil
}

type fakeAgentStore struct {
	info    domain.AgentInfo
	present bool
	loadErr error
	saveErr error
	loads   int
	saved   []domain.AgentInfo
}

func (s *fakeAgentStore) Load() (domain.AgentInfo, bool, error) {
	s.loads++
	return s.info, s.present, s.loadErr
}

func (s *fakeAgentStore) Save(info domain.AgentInfo) error {
	s.saved = append(s.saved, info)
	return s.saveErr
}

type fakeSettingsStore struct {
	settings domain.Settings
	err      error
}

func (s *fakeSettingsStore) Load() (domain.Settings, error) { return s.settings, s.err }

func (s *fakeSettingsStore) Save(settings domain.Settings) error {
	s.settings = settings
	return nil
}

// reverseCipher "encrypts" by reversing; enough to prove the stored source is decrypted.
type reverseCipher struct{}

func (reverseCipher) Encrypt(plain []byte) (string, error) { return reverse(string(plain)), nil }

func (reverseCipher) Decrypt(encoded string) ([]byte, error) { return []byte(reverse(encoded)), nil }

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

type fakePrompt struct {
	available bool
	answer    string
	asked     int
}

func (p *fakePrompt) Available() bool { return p.available }

func (p *fakePrompt) ReadPassphrase(string) ([]byte, error) {
	p.asked++
	return []byte(p.answer), nil
}
