package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/remsync/remsync/internal/config"
	"github.com/remsync/remsync/internal/rmsdk"
	"github.com/remsync/remsync/internal/sync"
	"github.com/remsync/remsync/internal/workspace"
)

// openService locks the workspace and opens the full sync pipeline. The
// returned cleanup closes the journal and releases the lock.
func openService(cfg *config.Config) (*sync.Service, func(), error) {
	return openServiceWith(cfg, true)
}

// openReadOnly opens the service without the workspace lock, for commands
// that only read state and may run beside an active send or watch.
func openReadOnly(cfg *config.Config) (*sync.Service, func(), error) {
	return openServiceWith(cfg, false)
}

func openServiceWith(cfg *config.Config, lock bool) (*sync.Service, func(), error) {
	dev, err := rmsdk.New(cfg.DeviceAddress)
	if err != nil {
		return nil, nil, err
	}

	ws, err := workspace.NewWorkspace(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}

	unlock := func() {}
	if lock {
		if err := ws.Setup(); err != nil {
			if errors.Is(err, workspace.ErrWorkspaceLocked) {
				return nil, nil, fmt.Errorf("%w: is another remsync running?", err)
			}
			return nil, nil, err
		}
		unlock = func() {
			if err := ws.Unlock(); err != nil {
				slog.Warn("unlock workspace", "error", err)
			}
		}
	} else if err := ws.Ensure(); err != nil {
		return nil, nil, err
	}

	svc, err := sync.NewService(cfg, dev, ws)
	if err != nil {
		unlock()
		return nil, nil, err
	}

	cleanup := func() {
		if err := svc.Close(); err != nil {
			slog.Warn("close journal", "error", err)
		}
		unlock()
	}
	return svc, cleanup, nil
}

// deviceErr rewrites an unreachable-device error into something actionable;
// every other error passes through.
func deviceErr(cfg *config.Config, err error) error {
	if rmsdk.IsUnreachable(err) {
		return fmt.Errorf("device at %s is unreachable: check the USB cable and that "+
			"the web interface is enabled under Settings > Storage", cfg.DeviceAddress)
	}
	return err
}
