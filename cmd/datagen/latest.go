package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cartoncaps/analytics/internal/config"
	"github.com/cartoncaps/analytics/internal/logging"
	"github.com/cartoncaps/analytics/internal/manifest"
	"github.com/cartoncaps/analytics/internal/storage"
)

// Sources of the latest run
const (
	sourceFile     = "file"
	sourceRedis    = "redis"
	sourceRegistry = "registry"
)

func newLatestCmd() *cobra.Command {
	var (
		source    string
		outputDir string
		showJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the latest successful run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.Generation.OutputDir = outputDir
			}
			ctx := logging.WithLogger(cmd.Context(), initLogger(cfg))

			var runID string
			switch source {
			case sourceFile:
				runID, err = manifest.NewWriter(cfg.Generation.OutputDir).Latest()

			case sourceRedis:
				cache, cacheErr := storage.NewRedisCache(ctx, &cfg.Database.Redis)
				if cacheErr != nil {
					return fmt.Errorf("failed to connect to Redis: %w", cacheErr)
				}
				defer func() { _ = cache.Close() }()
				var p *storage.RunPointer
				if p, err = storage.NewLatestRunPointer(cache).Latest(ctx); err == nil {
					runID = p.RunID
				}

			case sourceRegistry:
				db, dbErr := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
				if dbErr != nil {
					return fmt.Errorf("failed to connect to Postgres: %w", dbErr)
				}
				defer db.Close()
				var run *storage.RunRecord
				if run, err = storage.NewRunRepository(db).LatestSuccessful(ctx); err == nil {
					runID = run.RunID
				}

			default:
				return fmt.Errorf("unknown source: %s", source)
			}
			if err != nil {
				return err
			}

			if !showJSON {
				fmt.Println(runID)
				return nil
			}
			m, err := manifest.NewWriter(cfg.Generation.OutputDir).ReadManifest(runID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}

	f := cmd.Flags()
	f.StringVar(&source, "source", sourceFile, "where to read the pointer: file, redis or registry")
	f.StringVarP(&outputDir, "output-dir", "o", "", "output directory holding LATEST_RUN")
	f.BoolVar(&showJSON, "json", false, "print the run manifest instead of the run id")
	return cmd
}
