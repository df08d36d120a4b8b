package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/remsync/remsync/internal/sync"
)

func init() {
	rootCmd.AddCommand(newSendCmd())
}

func newSendCmd() *cobra.Command {
	var force bool

	sendCmd := &cobra.Command{
		Use:   "send FILE...",
		Short: "Convert documents and upload them to the device",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setupApp(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			svc, cleanup, err := openService(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.Send(cmd.Context(), args, sync.SendOptions{Force: force})
			if err != nil {
				return deviceErr(cfg, err)
			}

			printBatch(cmd.OutOrStdout(), result)
			if failed := result.Failed(); failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(result.Documents))
			}
			return nil
		},
	}

	sendCmd.Flags().BoolVar(&force, "force", false, "resend documents the journal already knows")

	return sendCmd
}

func printBatch(out io.Writer, result *sync.BatchResult) {
	for _, warning := range result.Warnings {
		fmt.Fprintf(out, "%s %s\n", yellow("!"), warning)
	}

	for _, doc := range result.Documents {
		switch doc.Status {
		case sync.TaskSent:
			fmt.Fprintf(out, "%s %s (%s, %s)\n", green("✓"), doc.UploadName,
				humanize.Bytes(uint64(doc.Size)), doc.Elapsed.Round(time.Millisecond))
		case sync.TaskSkipped:
			fmt.Fprintf(out, "%s %s: %s\n", cyan("="), doc.UploadName, doc.Detail)
		default:
			fmt.Fprintf(out, "%s %s: %s\n", red("✗"), filepath.Base(doc.SourcePath), doc.Detail)
		}
	}

	target := "the root folder"
	if result.FolderName != "" && len(result.Warnings) == 0 {
		target = fmt.Sprintf("folder %q", result.FolderName)
	}
	fmt.Fprintf(out, "\n%d sent to %s, %d skipped, %d failed\n",
		result.Sent(), target, result.Skipped(), result.Failed())
}
