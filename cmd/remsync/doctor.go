package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/spf13/cobra"

	"github.com/remsync/remsync/internal/config"
	"github.com/remsync/remsync/internal/convert"
	"github.com/remsync/remsync/internal/preset"
	"github.com/remsync/remsync/internal/rmsdk"
	"github.com/remsync/remsync/internal/utils"
	"github.com/remsync/remsync/internal/version"
	"github.com/remsync/remsync/internal/workspace"
)

func init() {
	rootCmd.AddCommand(newDoctorCmd())
}

// checkResult is one preflight verdict.
type checkResult struct {
	name    string
	ok      bool
	message string
	hint    string
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the device, converter and workspace are ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setupApp(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", version.ShortWithApp())

			checks := []checkResult{
				checkDevice(cmd.Context(), cfg),
				checkConverter(cfg),
				checkWorkspace(cfg),
				checkPreset(cfg),
			}

			failed := 0
			for _, c := range checks {
				printCheck(out, c)
				if !c.ok {
					failed++
				}
			}

			printHostInfo(out)

			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(checks))
			}
			fmt.Fprintf(out, "\n%s everything looks ready\n", green("✓"))
			return nil
		},
	}
}

func printCheck(out io.Writer, c checkResult) {
	mark := green("✓")
	if !c.ok {
		mark = red("✗")
	}
	fmt.Fprintf(out, "%s %-10s %s\n", mark, c.name, c.message)
	if !c.ok && c.hint != "" {
		fmt.Fprintf(out, "  %s\n", yellow(c.hint))
	}
}

func checkDevice(ctx context.Context, cfg *config.Config) checkResult {
	c := checkResult{name: "device"}

	dev, err := rmsdk.New(cfg.DeviceAddress)
	if err != nil {
		c.message = err.Error()
		return c
	}

	if err := dev.Probe(ctx); err != nil {
		c.message = fmt.Sprintf("no answer from %s", cfg.DeviceAddress)
		c.hint = "plug the tablet in over USB and enable the web interface under Settings > Storage"
		return c
	}

	c.ok = true
	c.message = fmt.Sprintf("reachable at %s", cfg.DeviceAddress)
	return c
}

func checkConverter(cfg *config.Config) checkResult {
	c := checkResult{name: "converter"}

	bin, err := convert.FindConverter(cfg.ConverterPath)
	if err != nil {
		c.message = "ebook-convert not found"
		c.hint = "install Calibre or point converter_path at the ebook-convert binary; PDFs still send without it"
		return c
	}

	c.ok = true
	c.message = bin
	return c
}

func checkWorkspace(cfg *config.Config) checkResult {
	c := checkResult{name: "workspace"}

	ws, err := workspace.NewWorkspace(cfg.DataDir)
	if err != nil {
		c.message = err.Error()
		return c
	}
	if err := ws.Ensure(); err != nil {
		c.message = fmt.Sprintf("cannot create %s", ws.Root)
		c.hint = "pick a writable data_dir in the config"
		return c
	}
	if !utils.IsWritable(ws.Root) {
		c.message = fmt.Sprintf("%s is not writable", ws.Root)
		c.hint = "pick a writable data_dir in the config"
		return c
	}

	c.ok = true
	c.message = ws.Root
	return c
}

func checkPreset(cfg *config.Config) checkResult {
	c := checkResult{name: "preset"}

	p, err := preset.PresetFor(cfg.DeviceModel(), cfg.PresetOverrides())
	if err != nil {
		c.message = err.Error()
		return c
	}

	c.ok = true
	c.message = fmt.Sprintf("%s: %s\" page, margin %dpt, font %dpt",
		preset.DisplayName(p.Model), p.CustomSize(), p.MarginPt, p.FontSizePt)
	return c
}

// printHostInfo explains where the conversion worker bound comes from.
func printHostInfo(out io.Writer) {
	workers := convert.DefaultWorkers()

	line := fmt.Sprintf("%d conversion workers", workers)
	if cores, err := cpu.Counts(true); err == nil {
		line += fmt.Sprintf(" on %d logical cores", cores)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		line += fmt.Sprintf(", %s memory free", humanize.Bytes(vm.Available))
	}
	fmt.Fprintf(out, "%s %-10s %s\n", cyan("·"), "host", line)
}
