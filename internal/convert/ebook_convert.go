package convert

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/remsync/remsync/internal/preset"
)

// defaultConvertTimeout caps one converter invocation. Large image-heavy
// books take minutes; anything past this is wedged.
const defaultConvertTimeout = 5 * time.Minute

// progress lines look like "34% Converting input to HTML..."
var progressRe = regexp.MustCompile(`(\d+)%`)

// commandResult is one external command's outcome.
type commandResult struct {
	ExitCode int
	Output   string
}

// commandRunner abstracts process execution for testability. onStderrLine
// observes the child's stderr line by line while it runs.
type commandRunner interface {
	Run(ctx context.Context, name string, args []string, onStderrLine func(string)) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string, onStderrLine func(string)) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return commandResult{ExitCode: -1}, err
	}

	if err := cmd.Start(); err != nil {
		return commandResult{ExitCode: -1}, err
	}

	// Drain stderr before Wait; Wait closes the pipe.
	var stderr strings.Builder
	scanner := bufio.NewScanner(stderrPipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stderr.WriteString(line)
		stderr.WriteByte('\n')
		if onStderrLine != nil {
			onStderrLine(line)
		}
	}

	waitErr := cmd.Wait()

	result := commandResult{
		ExitCode: 0,
		Output:   stdout.String() + stderr.String(),
	}
	if waitErr != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, waitErr
	}
	return result, nil
}

// EbookConvert drives Calibre's converter CLI.
type EbookConvert struct {
	binPath    string
	outDir     string
	timeout    time.Duration
	runner     commandRunner
	onProgress func(sourcePath string, fraction float64)
	validate   func(path string) error
}

// EbookConvertOption customizes the converter.
type EbookConvertOption func(*EbookConvert)

// WithTimeout overrides the per-invocation deadline.
func WithTimeout(d time.Duration) EbookConvertOption {
	return func(e *EbookConvert) { e.timeout = d }
}

// WithProgress registers a progress observer fed from the converter's
// stderr percent lines, as a 0..1 fraction.
func WithProgress(fn func(sourcePath string, fraction float64)) EbookConvertOption {
	return func(e *EbookConvert) { e.onProgress = fn }
}

// NewEbookConvert builds the production converter. binPath is the resolved
// converter binary; outDir is where produced PDFs land.
func NewEbookConvert(binPath, outDir string, opts ...EbookConvertOption) *EbookConvert {
	e := &EbookConvert{
		binPath:  binPath,
		outDir:   outDir,
		timeout:  defaultConvertTimeout,
		runner:   execRunner{},
		validate: validatePDF,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Convert runs one document through ebook-convert and validates the
// produced PDF. The output file is removed on any failure.
func (e *EbookConvert) Convert(ctx context.Context, sourcePath string, p preset.Preset) (string, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return "", &Error{Source: sourcePath, Detail: "source not readable", Err: err}
	}
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return "", &Error{Source: sourcePath, Detail: "cannot create output directory", Err: err}
	}

	outPath, err := e.scratchFile(sourcePath)
	if err != nil {
		return "", &Error{Source: sourcePath, Detail: "cannot create output file", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := buildConvertArgs(sourcePath, outPath, p)
	slog.Debug("running converter", "bin", e.binPath, "source", filepath.Base(sourcePath), "size", p.CustomSize())

	res, runErr := e.runner.Run(ctx, e.binPath, args, func(line string) {
		if e.onProgress == nil {
			return
		}
		if m := progressRe.FindStringSubmatch(line); m != nil {
			if pct, err := strconv.Atoi(m[1]); err == nil && pct >= 0 && pct <= 100 {
				e.onProgress(sourcePath, float64(pct)/100)
			}
		}
	})

	if runErr != nil || res.ExitCode != 0 {
		os.Remove(outPath)
		if ctx.Err() == context.DeadlineExceeded {
			return "", &Error{
				Source: sourcePath,
				Detail: fmt.Sprintf("converter timed out after %s", e.timeout),
				Err:    ctx.Err(),
			}
		}
		return "", &Error{
			Source: sourcePath,
			Detail: fmt.Sprintf("converter exited with status %d: %s", res.ExitCode, outputTail(res.Output)),
			Err:    runErr,
		}
	}

	if err := e.validate(outPath); err != nil {
		os.Remove(outPath)
		return "", &Error{Source: sourcePath, Detail: "converter produced no usable output", Err: err}
	}

	return outPath, nil
}

// scratchFile reserves a unique output path next to the other conversions.
func (e *EbookConvert) scratchFile(sourcePath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	f, err := os.CreateTemp(e.outDir, base+"-*.pdf")
	if err != nil {
		return "", err
	}
	path := f.Name()
	f.Close()
	return path, nil
}

func buildConvertArgs(sourcePath, outPath string, p preset.Preset) []string {
	margin := strconv.Itoa(p.MarginPt)
	args := []string{
		sourcePath, outPath,
		"--output-profile", "generic_eink_hd",
		"--custom-size", p.CustomSize(),
		"--pdf-page-margin-top", margin,
		"--pdf-page-margin-bottom", margin,
		"--pdf-page-margin-left", margin,
		"--pdf-page-margin-right", margin,
		"--pdf-default-font-size", strconv.Itoa(p.FontSizePt),
	}
	if p.EmbedAllFonts {
		args = append(args, "--embed-all-fonts")
	}
	if p.FontFamily != "" {
		args = append(args, "--pdf-serif-family", p.FontFamily)
	}
	return args
}

// validatePDF rejects empty or truncated converter output: the file must
// parse as a PDF with at least one page.
func validatePDF(path string) error {
	f, r, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("parse pdf: %w", err)
	}
	defer f.Close()

	if r.NumPage() < 1 {
		return errors.New("pdf has no pages")
	}
	return nil
}

// outputTail trims converter output for error messages.
func outputTail(out string) string {
	const max = 500
	out = strings.TrimSpace(out)
	if len(out) <= max {
		return out
	}
	return "…" + out[len(out)-max:]
}
