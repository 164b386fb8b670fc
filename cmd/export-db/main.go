package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/EasterCompany/dex-sylvr-service/config"
	"github.com/EasterCompany/dex-sylvr-service/database"
	"github.com/spf13/cobra"
)

var (
	configDir string
	outPath   string
)

var rootCmd = &cobra.Command{
	Use:   "export-db",
	Short: "Export every collection of the configured MongoDB database to JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadMongoConfig(configDir)
		if err != nil {
			return fmt.Errorf("fatal error loading config: %w", err)
		}

		store, err := database.Connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close(context.Background()) }()

		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("could not create %s: %w", outPath, err)
		}
		n, err := store.ExportAll(cmd.Context(), f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d collections from %s to %s\n", n, store.Name(), outPath)
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&configDir, "config-dir", "", "config directory")
	rootCmd.Flags().StringVar(&outPath, "out", "sample_analytics.json", "output file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
