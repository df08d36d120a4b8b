// Command devsim runs a fake of the tablet's USB web interface on the
// loopback, for developing and testing remsync without hardware.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/remsync/remsync/internal/devsim"
	"github.com/remsync/remsync/internal/logging"
	"github.com/remsync/remsync/internal/version"
)

func main() {
	var addr string
	var fixturePath string
	var latency time.Duration
	var failListings int
	var failUploads int
	var debug bool

	// .env in the working directory can carry DEVSIM_* overrides for dev
	// setups; missing file is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:     "devsim",
		Short:   "Simulate a reMarkable tablet's USB web interface",
		Version: version.Detailed(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			closeLogs, err := logging.Setup(logging.Options{Level: level})
			if err != nil {
				return err
			}
			defer closeLogs()

			store, err := buildStore(fixturePath)
			if err != nil {
				return err
			}
			slog.Info("library seeded", "entries", store.Len(), "fixture", fixtureName(fixturePath))

			sim := devsim.New(store, devsim.WithLatency(latency))
			if failListings != 0 {
				sim.FailListings(failListings)
			}
			if failUploads != 0 {
				sim.FailUploads(failUploads)
			}

			defer slog.Info("Bye!")
			if err := sim.Serve(cmd.Context(), addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&addr, "bind", "b", envOr("DEVSIM_ADDR", devsim.DefaultAddr), "address to bind the simulator")
	rootCmd.Flags().StringVarP(&fixturePath, "fixture", "f", os.Getenv("DEVSIM_FIXTURE"), "YAML library fixture to seed the store from")
	rootCmd.Flags().DurationVar(&latency, "latency", 0, "artificial delay added to every response")
	rootCmd.Flags().IntVar(&failListings, "fail-listings", 0, "answer every listing with this HTTP status")
	rootCmd.Flags().IntVar(&failUploads, "fail-uploads", 0, "answer every upload with this HTTP status")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "verbose logging")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// buildStore seeds from the fixture when given, else from a small built-in
// library that exercises nesting and both document types.
func buildStore(fixturePath string) (*devsim.Store, error) {
	if fixturePath != "" {
		return devsim.LoadFixture(fixturePath)
	}

	return devsim.BuildStore(&devsim.Fixture{
		Folders: []devsim.FixtureNode{
			{
				Name: "Books",
				Folders: []devsim.FixtureNode{
					{Name: "Calibre", Documents: []devsim.FixtureNode{
						{Name: "The Time Machine", Type: "pdf"},
					}},
				},
				Documents: []devsim.FixtureNode{
					{Name: "A Study in Scarlet", Type: "epub"},
				},
			},
			{Name: "Papers"},
		},
		Documents: []devsim.FixtureNode{
			{Name: "Quick sheet", Type: "pdf"},
		},
	})
}

func fixtureName(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
