// Package workspace owns the client's on-disk state directory: conversion
// staging space, log files, the upload journal, and the single-instance
// lock.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/remsync/remsync/internal/utils"
)

const (
	stagingDir  = "staging"
	logsDir     = "logs"
	journalFile = "journal.db"
	lockFile    = "remsync.lock"
)

// DefaultRoot is where the workspace lives unless configured otherwise.
const DefaultRoot = "~/.remsync"

var ErrWorkspaceLocked = errors.New("workspace locked by another process")

// Workspace is the resolved state directory layout. Staging holds
// converted and cover-staged documents between conversion and upload; the
// journal records what has already been sent.
type Workspace struct {
	Root        string
	StagingDir  string
	LogsDir     string
	JournalPath string

	flock *flock.Flock
}

// NewWorkspace resolves rootDir (expanding ~) and prepares the layout
// without touching the filesystem. Call Setup before using it.
func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	return &Workspace{
		Root:        root,
		StagingDir:  filepath.Join(root, stagingDir),
		LogsDir:     filepath.Join(root, logsDir),
		JournalPath: filepath.Join(root, journalFile),
		flock:       flock.New(filepath.Join(root, lockFile)),
	}, nil
}

// Lock takes the single-instance lock so concurrent runs cannot interleave
// uploads against the device's stateful folder navigation.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

// Unlock releases the lock and removes the lock file. Safe to call when
// this process never held the lock.
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Ensure creates the directory layout without taking the lock. Read-only
// commands use it so they can run beside an active send or watch.
func (w *Workspace) Ensure() error {
	for _, dir := range []string{w.Root, w.StagingDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Setup locks the workspace and creates the directory layout.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)
	return w.Ensure()
}

// CleanStaging wipes staged conversion output and recreates the empty
// directory. Cached conversion results become invalid after this.
func (w *Workspace) CleanStaging() error {
	if err := os.RemoveAll(w.StagingDir); err != nil {
		return fmt.Errorf("failed to clean staging: %w", err)
	}
	return utils.EnsureDir(w.StagingDir)
}

// StagingSize reports the total bytes held in staging.
func (w *Workspace) StagingSize() (int64, error) {
	var total int64
	err := filepath.WalkDir(w.StagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return total, err
}
