package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remsync/remsync/internal/sync"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	var scan bool
	var force bool

	watchCmd := &cobra.Command{
		Use:   "watch [DIR]",
		Short: "Mirror a library directory onto the device",
		Long: `watch keeps a local library directory mirrored onto the device: new and
changed documents are converted and uploaded as they appear. The upload
journal keeps already-sent books from going twice. Runs until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setupApp(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			dir := cfg.LibraryDir
			if len(args) > 0 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no library directory: pass one or set library_dir in the config")
			}

			svc, cleanup, err := openService(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			err = svc.Watch(cmd.Context(), dir, sync.WatchOptions{
				SendOptions: sync.SendOptions{Force: force},
				ScanOnStart: scan,
			})
			if errors.Is(err, cmd.Context().Err()) {
				return nil
			}
			return err
		},
	}

	watchCmd.Flags().BoolVar(&scan, "scan", false, "send the library's current documents once before watching")
	watchCmd.Flags().BoolVar(&force, "force", false, "resend documents the journal already knows")

	return watchCmd
}
