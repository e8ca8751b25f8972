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

package agentsock

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Adembc/lazyagent/internal/core/ports"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const dialTimeout = 5 * time.Second

type dialFunc func(network, address string, timeout time.Duration) (net.Conn, error)

type Client struct {
	logger *zap.SugaredLogger
	dial   dialFunc
}

// NewClient creates an AgentKeyLister that speaks the agent protocol over a unix socket.
func NewClient(logger *zap.SugaredLogger) *Client {
	return &Client{logger: logger, dial: net.DialTimeout}
}

var _ ports.AgentKeyLister = (*Client)(nil)

func (c *Client) List(socket string) ([]ports.AgentKey, error) {
	socket = strings.TrimSpace(socket)
	if socket == "" {
		return nil, fmt.Errorf("agent socket is not set")
	}
	conn, err := c.dial("unix", socket, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to agent at %s: %w", socket, err)
	}
	defer func() { _ = conn.Close() }()

	keys, err := agent.NewClient(conn).List()
	if err != nil {
		return nil, fmt.Errorf("list agent keys: %w", err)
	}
	out := make([]ports.AgentKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, ports.AgentKey{
			Type:        k.Type(),
			Fingerprint: ssh.FingerprintSHA256(k),
			Comment:     k.Comment,
		})
	}
	c.logger.Debugw("listed agent keys", "socket", socket, "count", len(out))
	return out, nil
}
