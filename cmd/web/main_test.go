package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allocator/pkg/contracts"
)

func TestRootCmd_Version(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, contracts.ReadBuildInfo().String()+"\n", out.String())
}

func TestRootCmd_RejectsBadPort(t *testing.T) {
	t.Setenv("ALLOC_CONFIG_FILE", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--port", "70000"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}

func TestRootCmd_RejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"extra"})
	assert.Error(t, cmd.Execute())
}
