package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remsync/remsync/internal/preset"
)

func TestBuildConfigEnv(t *testing.T) {
	t.Setenv("REMSYNC_DEVICE_ADDRESS", "127.0.0.1:9090")
	t.Setenv("REMSYNC_MODEL", "rm2")
	t.Setenv("REMSYNC_FORMAT", "epub")
	t.Setenv("REMSYNC_FOLDER", "Calibre")
	t.Setenv("REMSYNC_MARGIN_PT", "50")

	require.NoError(t, loadConfig(rootCmd))
	cfg, err := buildConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "127.0.0.1:9090", cfg.DeviceAddress)
	assert.Equal(t, "rm2", cfg.Model)
	assert.Equal(t, "epub", cfg.Format)
	assert.Equal(t, "Calibre", cfg.Folder)
	assert.Equal(t, 50, cfg.MarginPt)
	// untouched settings keep their defaults
	assert.True(t, cfg.InjectCover)
	assert.True(t, cfg.EmbedAllFonts)
}

func TestBuildConfigJSON(t *testing.T) {
	dummyConfig := `
{
	"device_address": "10.11.99.5",
	"model": "pro-move",
	"format": "pdf",
	"folder": "Books/Calibre",
	"font_size_pt": 16,
	"workers": 2
}
`
	dummyConfigFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(dummyConfigFile, []byte(dummyConfig), 0644))

	require.NoError(t, rootCmd.PersistentFlags().Set("config", dummyConfigFile))

	require.NoError(t, loadConfig(rootCmd))
	cfg, err := buildConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, dummyConfigFile, cfg.Path)
	assert.Equal(t, "10.11.99.5", cfg.DeviceAddress)
	assert.Equal(t, preset.ModelProMove, cfg.DeviceModel())
	assert.Equal(t, "Books/Calibre", cfg.Folder)
	assert.Equal(t, 16, cfg.FontSizePt)
	assert.Equal(t, 2, cfg.Workers)
}

func TestBuildConfigRejectsBadModel(t *testing.T) {
	t.Setenv("REMSYNC_MODEL", "rm9000")

	require.NoError(t, loadConfig(rootCmd))
	_, err := buildConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rm9000")
}
