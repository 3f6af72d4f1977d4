//go:build !windows

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonCommand_NewSession(t *testing.T) {
	proc := daemonCommand("/usr/local/bin/cadence", "daemon", "--config", "cadence.yaml")
	require.NotNil(t, proc.SysProcAttr)
	assert.True(t, proc.SysProcAttr.Setsid)
	assert.Equal(t, []string{"/usr/local/bin/cadence", "daemon", "--config", "cadence.yaml"}, proc.Args)
	assert.Nil(t, proc.Stdin)
	assert.Nil(t, proc.Stdout)
}
