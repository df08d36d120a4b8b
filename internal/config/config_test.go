package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remsync/remsync/internal/preset"
)

func TestConfig_Validate_FillsDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "10.11.99.1", cfg.DeviceAddress)
	assert.Equal(t, "paper-pro", cfg.Model)
	assert.Equal(t, FormatPDF, cfg.Format)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestConfig_Validate_NormalizesPaths(t *testing.T) {
	tmp := t.TempDir()
	cfg := Default()
	cfg.LibraryDir = filepath.Join(tmp, "..", filepath.Base(tmp), "library")
	cfg.DataDir = tmp

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.LibraryDir))
	assert.NotContains(t, cfg.LibraryDir, "..")
}

func TestConfig_Validate_ErrorsOnInvalidInputs(t *testing.T) {
	t.Run("bad model", func(t *testing.T) {
		cfg := Default()
		cfg.Model = "rm9000"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model")
	})

	t.Run("bad format", func(t *testing.T) {
		cfg := Default()
		cfg.Format = "mobi"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "format")
	})

	t.Run("negative margin", func(t *testing.T) {
		cfg := Default()
		cfg.MarginPt = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("too many workers", func(t *testing.T) {
		cfg := Default()
		cfg.Workers = 64
		assert.Error(t, cfg.Validate())
	})
}

func TestConfig_PresetOverrides(t *testing.T) {
	cfg := Default()
	cfg.MarginPt = 12
	cfg.FontFamily = "EB Garamond"
	cfg.EmbedAllFonts = false
	require.NoError(t, cfg.Validate())

	p, err := preset.PresetFor(cfg.DeviceModel(), cfg.PresetOverrides())
	require.NoError(t, err)

	assert.Equal(t, 12, p.MarginPt)
	assert.Equal(t, 20, p.FontSizePt, "unset font size keeps the model default")
	assert.Equal(t, "EB Garamond", p.FontFamily)
	assert.False(t, p.EmbedAllFonts)
}

func TestConfig_SaveAndLoad_Roundtrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")

	cfg := Default()
	cfg.DeviceAddress = "192.168.1.44"
	cfg.Model = "rm2"
	cfg.Folder = "Books/Calibre"
	cfg.LibraryDir = tmp
	cfg.WatchGlobs = []string{"**/*.epub"}
	require.NoError(t, cfg.Validate())

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, loaded.Path)
	assert.Equal(t, "192.168.1.44", loaded.DeviceAddress)
	assert.Equal(t, "rm2", loaded.Model)
	assert.Equal(t, "Books/Calibre", loaded.Folder)
	assert.Equal(t, []string{"**/*.epub"}, loaded.WatchGlobs)
	assert.NoError(t, loaded.Validate())
}

func TestConfig_Load_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
