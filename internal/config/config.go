package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/remsync/remsync/internal/preset"
	"github.com/remsync/remsync/internal/utils"
	"github.com/remsync/remsync/internal/workspace"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".remsync", "config.json")
)

// DefaultDeviceAddress is the address the tablet exposes over USB.
const DefaultDeviceAddress = "10.11.99.1"

// Target upload formats.
const (
	FormatPDF  = "pdf"
	FormatEPUB = "epub"
)

// Config is one immutable snapshot of the client's settings. Commands
// build it once (flags over env over file over defaults) and pass it down;
// nothing mutates it after Validate.
type Config struct {
	DeviceAddress string   `json:"device_address"`
	Model         string   `json:"model"`
	Format        string   `json:"format"`
	Folder        string   `json:"folder"`
	LibraryDir    string   `json:"library_dir"`
	DataDir       string   `json:"data_dir"`
	ConverterPath string   `json:"converter_path"`
	InjectCover   bool     `json:"inject_cover"`
	MarginPt      int      `json:"margin_pt"`
	FontSizePt    int      `json:"font_size_pt"`
	FontFamily    string   `json:"font_family"`
	EmbedAllFonts bool     `json:"embed_all_fonts"`
	Workers       int      `json:"workers"`
	WatchGlobs    []string `json:"watch_globs"`

	Path string `json:"-"`
}

// Default returns a config carrying every built-in default.
func Default() *Config {
	return &Config{
		DeviceAddress: DefaultDeviceAddress,
		Model:         string(preset.DefaultModel),
		Format:        FormatPDF,
		DataDir:       workspace.DefaultRoot,
		InjectCover:   true,
		EmbedAllFonts: true,
	}
}

// Validate fills defaults, normalizes paths and rejects values the rest of
// the client cannot work with.
func (c *Config) Validate() error {
	if c.DeviceAddress == "" {
		c.DeviceAddress = DefaultDeviceAddress
	}

	if c.Model == "" {
		c.Model = string(preset.DefaultModel)
	}
	if _, err := preset.ParseModel(c.Model); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}

	if c.Format == "" {
		c.Format = FormatPDF
	}
	if c.Format != FormatPDF && c.Format != FormatEPUB {
		return fmt.Errorf("invalid format %q: must be %s or %s", c.Format, FormatPDF, FormatEPUB)
	}

	if c.MarginPt < 0 {
		return fmt.Errorf("invalid margin %d: must be >= 0", c.MarginPt)
	}
	if c.FontSizePt < 0 {
		return fmt.Errorf("invalid font size %d: must be >= 0", c.FontSizePt)
	}
	if c.Workers < 0 || c.Workers > 16 {
		return fmt.Errorf("invalid workers %d: must be between 0 and 16", c.Workers)
	}

	if c.DataDir == "" {
		c.DataDir = workspace.DefaultRoot
	}
	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("invalid data dir: %w", err)
	}
	c.DataDir = dataDir

	if c.LibraryDir != "" {
		libraryDir, err := utils.ResolvePath(c.LibraryDir)
		if err != nil {
			return fmt.Errorf("invalid library dir: %w", err)
		}
		c.LibraryDir = libraryDir
	}

	if c.ConverterPath != "" {
		converterPath, err := utils.ResolvePath(c.ConverterPath)
		if err != nil {
			return fmt.Errorf("invalid converter path: %w", err)
		}
		c.ConverterPath = converterPath
	}

	return nil
}

// DeviceModel returns the validated model.
func (c *Config) DeviceModel() preset.Model {
	return preset.Model(c.Model)
}

// PresetOverrides maps the user's geometry settings onto preset overrides.
// Zero margin/font values keep the model defaults.
func (c *Config) PresetOverrides() preset.Overrides {
	embed := c.EmbedAllFonts
	return preset.Overrides{
		MarginPt:      c.MarginPt,
		FontSizePt:    c.FontSizePt,
		FontFamily:    c.FontFamily,
		EmbedAllFonts: &embed,
	}
}

// Save writes the config to path as JSON.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Load reads a config file written by Save.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Path = path

	return cfg, nil
}
