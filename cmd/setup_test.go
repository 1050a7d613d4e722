package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupCmd_ReportsExistingBinaryWithoutDownloading(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "my-chrome")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\n"), 0o755))
	setupChromePath = fake
	defer func() { setupChromePath = "" }()

	var out bytes.Buffer
	setupCmd.SetOut(&out)
	setupCmd.SetErr(&out)

	require.NoError(t, runSetup(setupCmd))
	assert.Contains(t, out.String(), fake)
}

func TestSetupCmd_RegistersChromePathFlag(t *testing.T) {
	flag := setupCmd.Flags().Lookup("chrome-path")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}
