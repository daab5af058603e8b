package main

import (
	"bytes"
	"strings"
	"testing"

	"ChatSync/tools/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"token", "alice", "--secret", "dev", "--ttl", "1h"})
	require.NoError(t, rootCmd.Execute())

	sub, err := security.SubjectUnverified(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
	assert.Contains(t, errOut.String(), "expires")
}
