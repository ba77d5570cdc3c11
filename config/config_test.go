package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Redundancy/go-scan/chunks"
)

// isolate points HOME and the working directory at an empty temporary directory
func isolate(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)

	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	return dir
}

func TestDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, chunks.DefaultSearchChunkSize, cfg.SearchChunkSize)
	assert.Equal(t, chunks.DefaultDigestChunkSize, cfg.DigestChunkSize)
	assert.True(t, cfg.PreferAccelerated)
	assert.Zero(t, cfg.ReadAhead)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "goscan", cfg.NATSSubject)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.OTelEndpoint)
	assert.Empty(t, cfg.File)
}

func TestHomeFileAndEnvironment(t *testing.T) {
	dir := isolate(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".goscan.yaml"), []byte(
		"search_chunk_size: 4096\nprefer_accelerated: false\nhttp_timeout: 5s\n",
	), 0o644))

	t.Setenv("GOSCAN_PREFER_ACCELERATED", "true")
	t.Setenv("GOSCAN_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4096, cfg.SearchChunkSize)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.PreferAccelerated, "environment overrides the file")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, filepath.Join(dir, ".goscan.yaml"), cfg.File)
}

func TestEnvFile(t *testing.T) {
	dir := isolate(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GOSCAN_READ_AHEAD=3\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("GOSCAN_READ_AHEAD") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.ReadAhead)
}

func TestExplicitFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")

	_, err := Load(path)
	assert.Error(t, err, "an explicit file must exist")

	require.NoError(t, os.WriteFile(path, []byte("digest_chunk_size: 65536\nnats_subject: scans\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 65536, cfg.DigestChunkSize)
	assert.Equal(t, "scans", cfg.NATSSubject)
}

func TestValidation(t *testing.T) {
	isolate(t)

	t.Setenv("GOSCAN_SEARCH_CHUNK_SIZE", "-1")
	_, err := Load("")
	assert.Equal(t, chunks.ErrInvalidChunkSize, errors.Cause(err))

	t.Setenv("GOSCAN_SEARCH_CHUNK_SIZE", "1024")
	t.Setenv("GOSCAN_LOG_LEVEL", "loud")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	cfg := &Config{LogLevel: "warn"}
	log := cfg.Logger("goscan")

	assert.True(t, log.IsWarn())
	assert.False(t, log.IsInfo())
	assert.Equal(t, "goscan", log.Name())
}
