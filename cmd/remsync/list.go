package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remsync/remsync/internal/device"
	"github.com/remsync/remsync/internal/rmsdk"
)

func init() {
	rootCmd.AddCommand(newListCmd())
}

func newListCmd() *cobra.Command {
	var foldersOnly bool

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the documents on the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setupApp(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			dev, err := rmsdk.New(cfg.DeviceAddress)
			if err != nil {
				return err
			}

			tree, err := device.BuildTree(cmd.Context(), dev)
			if err != nil {
				return deviceErr(cfg, err)
			}

			out := cmd.OutOrStdout()
			folders := tree.Folders()

			if foldersOnly {
				for _, f := range folders {
					fmt.Fprintln(out, cyan(f.Path+"/"))
				}
				fmt.Fprintf(out, "\n%d folders\n", len(folders))
				return nil
			}

			docs := tree.Documents()
			for _, d := range docs {
				if d.FileType != "" {
					fmt.Fprintf(out, "%s (%s)\n", d.Path, d.FileType)
				} else {
					fmt.Fprintln(out, d.Path)
				}
			}
			fmt.Fprintf(out, "\n%d documents in %d folders\n", len(docs), len(folders))
			return nil
		},
	}

	listCmd.Flags().BoolVar(&foldersOnly, "folders", false, "list folders instead of documents")

	return listCmd
}
