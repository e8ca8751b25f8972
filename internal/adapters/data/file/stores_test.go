package file

import (
	"strings"
	"testing"
	"time"

	"github.com/Adembc/lazyagent/internal/core/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAgentInfoStore_RoundTripAndFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := testHome + "/.ssh/" + AgentInfoFileName
	store := NewAgentInfoStore(zaptest.NewLogger(t).Sugar(), fs, path)

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	info := domain.NewAgentInfo("/tmp/ssh-abc/agent.1", "1234", time.Unix(1700000000, 0))
	require.NoError(t, store.Save(info))

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	for _, key := range []string{`"SSH_AUTH_SOCK"`, `"SSH_AGENT_PID"`, `"timestamp"`, `"platform"`} {
		assert.Contains(t, string(raw), key)
	}

	st, err := fs.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", st.Mode().Perm().String())

	got, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, info, got)
}

func TestAgentInfoStore_CorruptFileIsAbsent(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := testHome + "/.ssh/" + AgentInfoFileName
	require.NoError(t, afero.WriteFile(fs, path, []byte("{not json"), 0o600))

	_, ok, err := NewAgentInfoStore(zaptest.NewLogger(t).Sugar(), fs, path).Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAgentInfoStore_ReadsLegacyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := testHome + "/.ssh/" + AgentInfoFileName
	legacy := `{"SSH_AUTH_SOCK": "/tmp/sock", "SSH_AGENT_PID": "42", "timestamp": 1700000000.5, "platform": "linux"}`
	require.NoError(t, afero.WriteFile(fs, path, []byte(legacy), 0o600))

	got, ok, err := NewAgentInfoStore(zaptest.NewLogger(t).Sugar(), fs, path).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/tmp/sock", got.AuthSock)
	assert.Equal(t, "42", got.AgentPID)
	assert.Equal(t, int64(1700000000), got.CreatedAt().Unix())
}

func TestSettingsManager_CreatesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := testHome + "/.lazyagent/config.yaml"
	sm := NewSettingsManager(zaptest.NewLogger(t).Sugar(), fs, path)

	settings, err := sm.Load()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), settings)

	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSettingsManager_SaveLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := testHome + "/.lazyagent/config.yaml"
	sm := NewSettingsManager(zaptest.NewLogger(t).Sugar(), fs, path)

	reuse := false
	want := domain.DefaultSettings()
	want.IdentityFile = "~/.ssh/id_work"
	want.ReuseAgent = &reuse
	want.Keys = map[string]string{"work": "~/.ssh/id_work"}
	want.SSHOptions = map[string]string{"ConnectTimeout": "10"}
	require.NoError(t, sm.Save(want))

	got, err := sm.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, got.ReuseEnabled())
}

func TestSettingsManager_InvalidYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := testHome + "/.lazyagent/config.yaml"
	require.NoError(t, afero.WriteFile(fs, path, []byte("keys: [unterminated"), 0o600))

	settings, err := NewSettingsManager(zaptest.NewLogger(t).Sugar(), fs, path).Load()
	assert.Error(t, err)
	assert.Equal(t, domain.DefaultSettings(), settings)
}

func TestPassphraseCipher_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, machineIDPath, []byte("abc123\n"), 0o444))
	c := NewPassphraseCipher(zaptest.NewLogger(t).Sugar(), fs, testHome, "")

	enc, err := c.Encrypt([]byte("hunter2"))
	require.NoError(t, err)
	assert.NotContains(t, enc, "hunter2")

	again, err := c.Encrypt([]byte("hunter2"))
	require.NoError(t, err)
	assert.NotEqual(t, enc, again, "salt and nonce must differ per encryption")

	plain, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(plain))
}

func TestPassphraseCipher_DifferentMachineCannotDecrypt(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	a := NewPassphraseCipher(log, afero.NewMemMapFs(), testHome, "install-a")
	b := NewPassphraseCipher(log, afero.NewMemMapFs(), testHome, "install-b")

	enc, err := a.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = b.Decrypt(enc)
	assert.Error(t, err)
}

func TestPassphraseCipher_RejectsGarbage(t *testing.T) {
	c := NewPassphraseCipher(zaptest.NewLogger(t).Sugar(), afero.NewMemMapFs(), testHome, "id")

	_, err := c.Decrypt("!!!not base64")
	assert.Error(t, err)
	_, err = c.Decrypt("AAAA")
	assert.Error(t, err)
}

func TestEnsureInstallID(t *testing.T) {
	fs := afero.NewMemMapFs()
	log := zaptest.NewLogger(t).Sugar()
	sm := NewSettingsManager(log, fs, testHome+"/.lazyagent/config.yaml")

	first := EnsureInstallID(log, sm)
	require.NotEmpty(t, first)
	assert.Equal(t, 4, strings.Count(first, "-"))
	assert.Equal(t, first, EnsureInstallID(log, sm))
}

func TestImportSettings_MergesPresentKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	sm := NewSettingsManager(zaptest.NewLogger(t).Sugar(), fs, testHome+"/.lazyagent/config.yaml")
	current := domain.DefaultSettings()
	current.IdentityFile = "~/.ssh/id_rsa"
	current.Passphrase = "c2VjcmV0"
	current.Keys = map[string]string{"home": "~/.ssh/id_home"}
	require.NoError(t, sm.Save(current))

	got, err := ImportSettings(sm, []byte("expiration_hours: 8\nkeys:\n  work: ~/.ssh/id_work\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, got.ExpirationHours)
	assert.Equal(t, "~/.ssh/id_rsa", got.IdentityFile)
	assert.Equal(t, "c2VjcmV0", got.Passphrase)
	assert.Equal(t, "~/.ssh/id_work", got.Keys["work"])

	reloaded, err := sm.Load()
	require.NoError(t, err)
	assert.Equal(t, got, reloaded)
}

func TestImportSettings_AcceptsJSON(t *testing.T) {
	sm := NewSettingsManager(zaptest.NewLogger(t).Sugar(), afero.NewMemMapFs(), testHome+"/config.yaml")

	got, err := ImportSettings(sm, []byte(`{"identity_file": "/keys/id", "reuse_agent": false}`))
	require.NoError(t, err)
	assert.Equal(t, "/keys/id", got.IdentityFile)
	assert.False(t, got.ReuseEnabled())
}

func TestImportSettings_RejectsGarbage(t *testing.T) {
	sm := NewSettingsManager(zaptest.NewLogger(t).Sugar(), afero.NewMemMapFs(), testHome+"/config.yaml")

	_, err := ImportSettings(sm, []byte("keys: [unterminated"))
	assert.Error(t, err)
	settings, err := sm.Load()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), settings)
}

func TestSettings_Portable(t *testing.T) {
	s := domain.DefaultSettings()
	s.Passphrase = "encrypted"
	s.InstallID = "install"
	s.Keys = map[string]string{"work": "~/.ssh/id_work"}

	plain := s.Portable(false)
	assert.Empty(t, plain.Passphrase)
	assert.Empty(t, plain.InstallID)
	assert.Equal(t, s.Keys, plain.Keys)

	full := s.Portable(true)
	assert.Equal(t, s, full)
}

func TestBackupSettings(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := testHome + "/.lazyagent/config.yaml"

	backup, err := BackupSettings(fs, path)
	require.NoError(t, err)
	assert.Empty(t, backup)

	require.NoError(t, afero.WriteFile(fs, path, []byte("expiration_hours: 3\n"), 0o600))
	backup, err = BackupSettings(fs, path)
	require.NoError(t, err)
	assert.Equal(t, testHome+"/.lazyagent/backups/config.yaml.backup", backup)

	data, err := afero.ReadFile(fs, backup)
	require.NoError(t, err)
	assert.Equal(t, "expiration_hours: 3\n", string(data))

	require.NoError(t, afero.WriteFile(fs, path, []byte("expiration_hours: 4\n"), 0o600))
	_, err = BackupSettings(fs, path)
	require.NoError(t, err)
	data, err = afero.ReadFile(fs, backup)
	require.NoError(t, err)
	assert.Equal(t, "expiration_hours: 4\n", string(data))
}
