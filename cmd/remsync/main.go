package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/remsync/remsync/internal/config"
	"github.com/remsync/remsync/internal/logging"
	"github.com/remsync/remsync/internal/preset"
	"github.com/remsync/remsync/internal/version"
	"github.com/remsync/remsync/internal/workspace"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

// closeLogs flushes the file log sink before the process exits. It is
// replaced by setupApp once logging is wired.
var closeLogs = func() error { return nil }

var rootCmd = &cobra.Command{
	Use:   "remsync",
	Short: "Sync documents to a reMarkable tablet over its USB web interface",
	Long: `remsync converts documents for a reMarkable tablet's screen and uploads
them over the device's USB web interface. No cloud account is involved;
the tablet only needs to be plugged in with the web interface enabled.`,
	Version: version.Detailed(),
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.SortFlags = false
	pf.StringP("config", "c", config.DefaultConfigPath, "remsync config file")
	pf.StringP("address", "a", config.DefaultDeviceAddress, "device address (host[:port])")
	pf.StringP("model", "m", string(preset.DefaultModel), "device model ("+modelList()+")")
	pf.StringP("format", "f", config.FormatPDF, "preferred upload format (pdf|epub)")
	pf.String("folder", "", "device folder to upload into (name or path)")
	pf.StringP("data-dir", "d", workspace.DefaultRoot, "directory for staging, logs and the upload journal")
	pf.Bool("debug", false, "verbose logging")
	pf.Bool("no-color", false, "disable colored output")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	code := 0
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		code = 1
	}

	stop()
	_ = closeLogs()
	os.Exit(code)
}

// setupApp resolves the effective config (flags over env over file over
// defaults) and installs the process logger. Every command that touches the
// device or the workspace calls it first.
func setupApp(cmd *cobra.Command) (*config.Config, error) {
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		color.NoColor = true
	}

	if err := loadConfig(cmd); err != nil {
		return nil, err
	}
	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}

	ws, err := workspace.NewWorkspace(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	closer, err := logging.Setup(logging.Options{
		Level: level,
		// Logs go to stderr so command output on stdout stays pipeable.
		Console: os.Stderr,
		LogDir:  ws.LogsDir,
		NoColor: color.NoColor,
	})
	if err != nil {
		return nil, err
	}
	closeLogs = closer

	return cfg, nil
}

func loadConfig(cmd *cobra.Command) error {
	// config path. cmd.Flag falls back to persistent flags, so this works
	// for subcommands and for the root command alike.
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		viper.SetConfigFile(cfgFlag.Value.String())
	} else {
		viper.AddConfigPath(filepath.Join(home, ".remsync"))        // Then check .remsync
		viper.AddConfigPath(filepath.Join(home, ".config/remsync")) // Then check .config/remsync
		viper.SetConfigName(configFileName)                         // Name of config file (without extension)
		viper.SetConfigType("json")
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	viper.BindPFlag("device_address", cmd.Flag("address"))
	viper.BindPFlag("model", cmd.Flag("model"))
	viper.BindPFlag("format", cmd.Flag("format"))
	viper.BindPFlag("folder", cmd.Flag("folder"))
	viper.BindPFlag("data_dir", cmd.Flag("data-dir"))

	// Set up environment variables
	viper.SetEnvPrefix("REMSYNC")
	viper.AutomaticEnv()

	// Booleans that default to true have no flag; without these, an absent
	// key would read as false.
	viper.SetDefault("inject_cover", true)
	viper.SetDefault("embed_all_fonts", true)

	return nil
}

// buildConfig snapshots viper state into a validated Config.
func buildConfig() (*config.Config, error) {
	cfg := &config.Config{
		Path:          viper.ConfigFileUsed(),
		DeviceAddress: viper.GetString("device_address"),
		Model:         viper.GetString("model"),
		Format:        viper.GetString("format"),
		Folder:        viper.GetString("folder"),
		LibraryDir:    viper.GetString("library_dir"),
		DataDir:       viper.GetString("data_dir"),
		ConverterPath: viper.GetString("converter_path"),
		InjectCover:   viper.GetBool("inject_cover"),
		MarginPt:      viper.GetInt("margin_pt"),
		FontSizePt:    viper.GetInt("font_size_pt"),
		FontFamily:    viper.GetString("font_family"),
		EmbedAllFonts: viper.GetBool("embed_all_fonts"),
		Workers:       viper.GetInt("workers"),
		WatchGlobs:    viper.GetStringSlice("watch_globs"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func modelList() string {
	models := preset.Models()
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = string(m)
	}
	return strings.Join(names, "|")
}
