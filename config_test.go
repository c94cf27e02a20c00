package avb

import (
	"os"
	"path"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := path.Join(dir, "avb.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(
		"data_dir: /tmp/avb_data\nseed: 17\n"), 0644))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/avb_data", cfg.DataDir)
	assert.Equal(t, int64(17), cfg.Seed)

	// Fields not present in the file keep their defaults.
	assert.Equal(t, NewConfig().OutputDir, cfg.OutputDir)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(path.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIO))

	configPath := path.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("data_dir: [unterminated"), 0644))
	_, err = LoadConfig(configPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	configPath = path.Join(t.TempDir(), "empty_data_dir.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("data_dir: \"\"\n"), 0644))
	_, err = LoadConfig(configPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestConfigSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	configPath := path.Join(dir, "avb.yaml")
	cfg := &Config{DataDir: dir, OutputDir: path.Join(dir, "out"), Seed: 3}
	require.NoError(t, cfg.Save(configPath))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
