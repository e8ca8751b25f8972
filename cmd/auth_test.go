package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordedAgent(t *testing.T) {
	assert.Equal(t, "none", recordedAgent(agentReport{}))
	assert.Equal(t, "valid, age 5m0s", recordedAgent(agentReport{Recorded: true, Valid: true, Age: "5m0s"}))
	assert.Equal(t, "stale, age 25h0m0s", recordedAgent(agentReport{Recorded: true, Age: "25h0m0s"}))
}

func TestStrategyHelp(t *testing.T) {
	assert.Contains(t, strategyHelp(), "smart, ssh_only, credentials_only")
}

func TestExitErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("git: %w", exitError{code: 128})
	var ee exitError
	assert.True(t, errors.As(err, &ee))
	assert.Equal(t, 128, ee.code)
	assert.Equal(t, "exit status 128", ee.Error())
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "x", orDash("x"))
}
