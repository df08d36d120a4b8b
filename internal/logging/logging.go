// Package logging wires the process-wide slog logger: colorized console
// output plus a per-run log file under the workspace.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/remsync/remsync/internal/utils"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Options selects the sinks for Setup.
type Options struct {
	// Level applies to every sink. Nil means slog.LevelInfo.
	Level slog.Leveler
	// LogDir receives one timestamped log file per run. Empty disables
	// the file sink.
	LogDir string
	// Console receives the human-facing stream. Nil means os.Stdout.
	Console io.Writer
	// NoColor forces plain output even on a terminal.
	NoColor bool
}

// Setup installs the default logger and returns a closer that flushes the
// file sink.
func Setup(opts Options) (func() error, error) {
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}

	noColor := opts.NoColor
	if f, ok := opts.Console.(*os.File); ok {
		noColor = noColor || !isatty.IsTerminal(f.Fd())
	} else {
		noColor = true
	}

	handlers := []slog.Handler{
		tint.NewHandler(opts.Console, &tint.Options{
			Level:      opts.Level,
			TimeFormat: consoleTimeFormat,
			NoColor:    noColor,
		}),
	}

	var file *os.File
	if opts.LogDir != "" {
		if err := utils.EnsureDir(opts.LogDir); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		name := fmt.Sprintf("remsync-%s.log", time.Now().Format("20060102-150405"))
		f, err := os.OpenFile(filepath.Join(opts.LogDir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f

		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{
			Level: opts.Level,
		}))
	}

	slog.SetDefault(slog.New(NewMultiHandler(handlers...)))

	return func() error {
		if file == nil {
			return nil
		}
		if err := file.Sync(); err != nil {
			return err
		}
		return file.Close()
	}, nil
}
