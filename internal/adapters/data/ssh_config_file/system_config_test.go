package ssh_config_file

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSystemConfig_Lookup(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "Host git.internal\n  User deploy\n  IdentityFile /etc/ssh/keys/deploy\n  IdentityFile /etc/ssh/keys/backup\n\nHost *\n  SendEnv LANG\n"
	require.NoError(t, afero.WriteFile(fs, DefaultSystemConfigPath, []byte(content), 0o644))

	sc := NewSystemConfig(zaptest.NewLogger(t).Sugar(), fs, DefaultSystemConfigPath)

	assert.Equal(t, []string{"/etc/ssh/keys/deploy", "/etc/ssh/keys/backup"}, sc.IdentityFiles("git.internal"))
	assert.Equal(t, "deploy", sc.User("git.internal"))
	assert.Empty(t, sc.IdentityFiles("github.com"))
	assert.Equal(t, "", sc.User("github.com"))
}

func TestSystemConfig_MissingFile(t *testing.T) {
	sc := NewSystemConfig(zaptest.NewLogger(t).Sugar(), afero.NewMemMapFs(), DefaultSystemConfigPath)

	assert.Nil(t, sc.IdentityFiles("github.com"))
	assert.Equal(t, "", sc.User("github.com"))
}
