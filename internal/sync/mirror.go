package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/remsync/remsync/internal/device"
	"github.com/remsync/remsync/internal/utils"
)

// WatchOptions tune one Watch run.
type WatchOptions struct {
	SendOptions

	// ScanOnStart sends the library's current documents once before
	// reacting to changes. The journal keeps the pass cheap: books the
	// device already has are skipped.
	ScanOnStart bool
}

// Watch mirrors libraryDir onto the device until ctx ends. Filesystem
// changes accumulate into quiet batches; each batch waits for the device
// to be connected and then goes through the normal Send pipeline. Batch
// failures are logged and the watch keeps running; the journal ensures
// nothing sent twice, and nothing failed is marked sent.
func (s *Service) Watch(ctx context.Context, libraryDir string, opts WatchOptions) error {
	dir, err := utils.ResolvePath(libraryDir)
	if err != nil {
		return err
	}
	if !utils.DirExists(dir) {
		return fmt.Errorf("library directory does not exist: %s", dir)
	}

	connected := make(chan struct{}, 1)
	poller := device.NewPoller(s.device, device.WithOnChange(func(st device.State) {
		if st == device.StateConnected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	}))
	poller.Start(ctx)
	defer poller.Stop()

	send := func(ctx context.Context, paths []string) {
		if err := waitConnected(ctx, poller, connected); err != nil {
			return
		}
		result, err := s.Send(ctx, paths, opts.SendOptions)
		if err != nil {
			slog.Error("send failed, documents stay queued for the next change", "error", err)
			return
		}
		for _, warning := range result.Warnings {
			slog.Warn(warning)
		}
		for _, doc := range result.Documents {
			if doc.Status == TaskFailed {
				slog.Error("document failed", "name", doc.UploadName, "detail", doc.Detail)
			}
		}
	}

	watcher := NewWatcher(dir, send, WithGlobs(s.cfg.WatchGlobs))

	if opts.ScanOnStart {
		paths, err := watcher.Scan()
		switch {
		case err != nil:
			slog.Warn("initial library scan failed", "error", err)
		case len(paths) > 0:
			slog.Info("initial library scan", "documents", len(paths))
			send(ctx, paths)
		}
	}

	return watcher.Run(ctx)
}

// waitConnected blocks until the poller reports the device, the signal
// channel fires, or ctx ends. The ticker fallback covers a transition
// that raced the channel.
func waitConnected(ctx context.Context, poller *device.Poller, connected <-chan struct{}) error {
	if poller.Connected() {
		return nil
	}
	slog.Info("device not connected, holding batch until it returns")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-connected:
			return nil
		case <-ticker.C:
			if poller.Connected() {
				return nil
			}
		}
	}
}
