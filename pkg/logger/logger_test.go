package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, NoConsole: true}))
	t.Cleanup(func() { _ = Init(Config{Level: "info", NoConsole: true}) })

	Component("ledger").Infof("entry recorded product=%d", 8)
	Debugf("debug line")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "component=ledger")
	assert.Contains(t, string(b), "product=8")
	assert.Contains(t, string(b), "debug line")
	assert.Equal(t, path, CurrentFile())
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, Init(Config{Level: "chatty", OutputFile: path, NoConsole: true}))
	t.Cleanup(func() { _ = Init(Config{Level: "info", NoConsole: true}) })

	Debugf("hidden")
	Infof("shown")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hidden")
	assert.Contains(t, string(b), "shown")
	assert.Contains(t, string(b), "chatty")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "0x1234...cdef", MaskSecret("0x1234567890abcdef"))
	assert.Equal(t, "***", MaskSecret("short"))
}
