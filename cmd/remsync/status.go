package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/remsync/remsync/internal/sync"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	var recent int

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show device reachability, library size and recent uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setupApp(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			// Read-only: status must work beside a running send or watch.
			svc, cleanup, err := openReadOnly(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printStatus(out, cfg.DataDir, st)

			if recent > 0 {
				recs, err := svc.Journal().Recent(recent)
				if err != nil {
					return err
				}
				printRecent(out, recs)
			}
			return nil
		},
	}

	statusCmd.Flags().IntVar(&recent, "recent", 0, "also show the N most recent uploads")

	return statusCmd
}

func printStatus(out io.Writer, dataDir string, st *sync.DeviceStatus) {
	if st.Connected {
		fmt.Fprintf(out, "device    %s at %s (%s)\n", green("connected"), st.Address, st.Model)
		fmt.Fprintf(out, "library   %d documents in %d folders\n", st.Documents, st.Folders)
	} else {
		fmt.Fprintf(out, "device    %s at %s (%s)\n", red("disconnected"), st.Address, st.Model)
	}
	fmt.Fprintf(out, "journal   %d uploads remembered\n", st.JournalCount)
	fmt.Fprintf(out, "staging   %s in %s\n", humanize.Bytes(uint64(st.StagingBytes)), dataDir)
}

func printRecent(out io.Writer, recs []sync.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "\nno uploads recorded yet")
		return
	}

	fmt.Fprintln(out, "\nrecent uploads:")
	for _, r := range recs {
		fmt.Fprintf(out, "  %s  %s (%s)\n",
			r.UploadedAt.Local().Format(time.DateTime),
			r.UploadName,
			humanize.Bytes(uint64(r.Size)))
	}
}
