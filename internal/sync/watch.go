package sync

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rjeczalik/notify"
	gitignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/remsync/remsync/internal/utils"
)

const (
	eventBufferSize = 64

	// flushTick is how often the quiet window is checked.
	flushTick = 500 * time.Millisecond

	// defaultQuietWindow is how long the library must stay silent before a
	// pending batch is sent. Library managers write several files per save;
	// sending on the first write would upload half-written books.
	defaultQuietWindow = 2 * time.Second

	ignoreFileName = ".remsyncignore"
)

// defaultWatchGlobs select the formats the device accepts.
var defaultWatchGlobs = []string{"**/*.epub", "**/*.pdf"}

// defaultIgnoreLines filter out working files that look like documents.
var defaultIgnoreLines = []string{
	ignoreFileName,
	".git",
	".DS_Store",
	"*.tmp",
	"*.part",
	"*.crdownload",
	"*.swp",
	// calibre library internals
	"metadata.db*",
	"*.original_epub",
	".caltrash/",
	".calnotes/",
}

// BatchFunc receives a quiet batch of changed files, sorted.
type BatchFunc func(ctx context.Context, paths []string)

// Watcher turns filesystem noise under a library directory into calm
// batches of changed documents.
type Watcher struct {
	dir     string
	globs   []string
	ignore  *gitignore.GitIgnore
	quiet   time.Duration
	onBatch BatchFunc

	mu        sync.Mutex
	pending   map[string]struct{}
	lastEvent time.Time
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithGlobs replaces the default document globs.
func WithGlobs(globs []string) WatcherOption {
	return func(w *Watcher) {
		if len(globs) > 0 {
			w.globs = globs
		}
	}
}

// WithQuietWindow overrides how long the library must be silent before a
// batch flushes.
func WithQuietWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.quiet = d }
}

// NewWatcher builds a watcher over dir. Ignore rules combine built-in
// noise filters with an optional .remsyncignore in dir.
func NewWatcher(dir string, onBatch BatchFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:     dir,
		globs:   defaultWatchGlobs,
		quiet:   defaultQuietWindow,
		onBatch: onBatch,
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ignore = loadIgnoreRules(dir)
	return w
}

// loadIgnoreRules merges the built-in rules with the library's own ignore
// file, when present.
func loadIgnoreRules(dir string) *gitignore.GitIgnore {
	lines := make([]string, 0, len(defaultIgnoreLines))
	lines = append(lines, defaultIgnoreLines...)

	ignorePath := filepath.Join(dir, ignoreFileName)
	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()
			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					lines = append(lines, line)
					rules++
				}
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	return gitignore.CompileIgnoreLines(lines...)
}

// Scan walks the library once and returns every document the watcher
// would react to, sorted. Ignored directories are pruned whole.
func (w *Watcher) Scan() ([]string, error) {
	var out []string
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(w.dir, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.ignore != nil && w.ignore.MatchesPath(rel+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if w.matches(rel) {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// Run watches until the context is canceled. Matching events accumulate;
// once the library stays quiet, the batch is handed to onBatch. Collection
// continues while onBatch runs, so a long send never loses events.
func (w *Watcher) Run(ctx context.Context) error {
	events := make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(filepath.Join(w.dir, "..."), events, notify.Write, notify.Create, notify.Rename); err != nil {
		return err
	}
	defer notify.Stop(events)

	slog.Info("watching library", "dir", w.dir, "globs", w.globs)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				w.observe(ev.Path())
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(flushTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if batch := w.drainQuiet(); len(batch) > 0 {
					slog.Info("library changed", "files", len(batch))
					w.onBatch(ctx, batch)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// observe records one raw event if it names a document we care about.
func (w *Watcher) observe(path string) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if !w.matches(rel) {
		return
	}

	w.mu.Lock()
	w.pending[path] = struct{}{}
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

// matches applies ignore rules first, then the document globs.
func (w *Watcher) matches(rel string) bool {
	if w.ignore != nil && w.ignore.MatchesPath(rel) {
		return false
	}
	for _, glob := range w.globs {
		if ok, err := doublestar.Match(glob, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// drainQuiet returns the pending batch once the quiet window has passed,
// dropping paths that no longer exist as files.
func (w *Watcher) drainQuiet() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 || time.Since(w.lastEvent) < w.quiet {
		return nil
	}

	batch := make([]string, 0, len(w.pending))
	for path := range w.pending {
		if utils.FileExists(path) {
			batch = append(batch, path)
		}
	}
	w.pending = make(map[string]struct{})

	sort.Strings(batch)
	return batch
}
