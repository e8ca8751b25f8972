package agentsock

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// pipeDialer serves an in-memory keyring on the far end of a net.Pipe.
func pipeDialer(t *testing.T, keyring agent.Agent) dialFunc {
	return func(network, address string, _ time.Duration) (net.Conn, error) {
		assert.Equal(t, "unix", network)
		client, server := net.Pipe()
		go func() {
			_ = agent.ServeAgent(keyring, server)
			_ = server.Close()
		}()
		return client, nil
	}
}

func TestClient_List(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	keyring := agent.NewKeyring()
	require.NoError(t, keyring.Add(agent.AddedKey{PrivateKey: priv, Comment: "me@laptop"}))

	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	c := NewClient(zaptest.NewLogger(t).Sugar())
	c.dial = pipeDialer(t, keyring)

	keys, err := c.List("/tmp/agent.sock")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, ssh.KeyAlgoED25519, keys[0].Type)
	assert.Equal(t, ssh.FingerprintSHA256(signer.PublicKey()), keys[0].Fingerprint)
	assert.Equal(t, "me@laptop", keys[0].Comment)
}

func TestClient_ListEmptyAgent(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t).Sugar())
	c.dial = pipeDialer(t, agent.NewKeyring())

	keys, err := c.List("/tmp/agent.sock")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestClient_ListErrors(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t).Sugar())
	_, err := c.List("  ")
	assert.Error(t, err)

	c.dial = func(string, string, time.Duration) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	_, err = c.List("/tmp/agent.sock")
	assert.ErrorContains(t, err, "connection refused")
}
