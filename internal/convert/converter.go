// Package convert turns library documents into device-matched PDFs.
//
// The heavy lifting is Calibre's ebook-convert binary, driven as a black
// box: arguments in, progress lines on stderr, a PDF out. Everything above
// it only sees the Converter contract, so tests and future engines swap in
// without touching the batch machinery.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/remsync/remsync/internal/preset"
	"github.com/remsync/remsync/internal/utils"
)

// ConverterBin is the binary EbookConvert drives.
const ConverterBin = "ebook-convert"

var ErrConverterNotFound = errors.New("convert: ebook-convert not found")

// Converter is the narrow contract between the batch scheduler and
// whatever does the converting.
type Converter interface {
	// Convert produces a PDF for sourcePath using the preset's page
	// geometry and returns its path. The output lands in converter-owned
	// scratch space; callers take ownership of the file.
	Convert(ctx context.Context, sourcePath string, p preset.Preset) (string, error)
}

// Error carries what went wrong with one conversion. Failures are
// per-document: an Error never implies anything about sibling jobs.
type Error struct {
	Source string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("convert %s: %s", filepath.Base(e.Source), e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// FindConverter resolves the converter binary: an explicit configured path
// wins, then $PATH, then the usual Calibre install locations.
func FindConverter(explicit string) (string, error) {
	if explicit != "" {
		resolved, err := utils.ResolvePath(explicit)
		if err != nil {
			return "", err
		}
		if !utils.FileExists(resolved) {
			return "", fmt.Errorf("%w: %s", ErrConverterNotFound, explicit)
		}
		return resolved, nil
	}

	if path, err := exec.LookPath(ConverterBin); err == nil {
		return path, nil
	}

	for _, dir := range conventionalCalibreDirs() {
		candidate := filepath.Join(dir, converterBinName())
		if utils.FileExists(candidate) {
			return candidate, nil
		}
	}

	return "", ErrConverterNotFound
}

func converterBinName() string {
	if runtime.GOOS == "windows" {
		return ConverterBin + ".exe"
	}
	return ConverterBin
}

func conventionalCalibreDirs() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/Applications/calibre.app/Contents/MacOS"}
	case "windows":
		return []string{`C:\Program Files\Calibre2`, `C:\Program Files (x86)\Calibre2`}
	default:
		return []string{"/usr/bin", "/usr/local/bin", "/opt/calibre"}
	}
}
