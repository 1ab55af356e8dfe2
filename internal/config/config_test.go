package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Initialize()
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, cfg.ProtectedBranches)
	assert.Equal(t, 60*time.Second, cfg.MergeTimeout())
	assert.Equal(t, 3, cfg.MaxRetries)

	// Initializing twice fails
	_, err = Initialize()
	require.Error(t, err)

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.ProtectedBranches, loaded.ProtectedBranches)
	assert.Equal(t, cfg.MergeTimeoutSeconds, loaded.MergeTimeoutSeconds)
	assert.Equal(t, filepath.Join(dir, OVCDir, RegistryFile), loaded.RegistryPath())
	assert.Equal(t, filepath.Join(dir, OVCDir, SnapshotFile), loaded.SnapshotPath())
}

func TestFindRoot_WalksUp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, OVCDir), 0755))
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	t.Chdir(nested)

	root, err := FindRoot()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, OVCDir), root)
}

func TestFindRoot_NotARepository(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := FindRoot()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an ovc repository")
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Initialize()
	require.NoError(t, err)

	cfg.MergeTimeoutSeconds = 120
	cfg.LogFormat = "json"
	require.NoError(t, cfg.Save())

	loaded, err := LoadFrom(filepath.Join(dir, OVCDir))
	require.NoError(t, err)
	assert.Equal(t, 120, loaded.MergeTimeoutSeconds)
	assert.Equal(t, "json", loaded.LogFormat)
}

func TestMergeTimeout_ZeroWhenUnset(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, time.Duration(0), cfg.MergeTimeout())
}

func TestNewLogger_HonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn", LogFormat: "text"}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "info", LogFormat: "json"}
	cfg.NewLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
