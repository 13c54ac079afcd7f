package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cartoncaps/analytics/internal/config"
	"github.com/cartoncaps/analytics/internal/generator"
	"github.com/cartoncaps/analytics/internal/logging"
	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/retry"
	"github.com/cartoncaps/analytics/internal/service"
	"github.com/cartoncaps/analytics/internal/storage"
)

// Accepted layouts of the window flags
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

type generateFlags struct {
	scenario  string
	seed      uint64
	outputDir string
	start     string
	end       string
	schools   int
	users     int
	products  int
	referrals int
	purchases int
	snapshot  string

	maxDeviceCollisions int
}

func newGenerateCmd() *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run a full generation",
		Long:  "Generate the dataset, validate it, write the tables and run records to the output directory and load the configured snapshot stores. Flags override the environment and the scenario file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := initLogger(cfg)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)

			var opts []func(*service.GenerationService)
			if cmd.Flags().Changed("max-device-collisions") {
				opts = append(opts, func(s *service.GenerationService) {
					s.WithDeviceCollisionBound(flags.maxDeviceCollisions)
				})
			}
			return runGenerate(ctx, cfg, opts...)
		},
	}

	flags.bind(cmd.Flags())
	return cmd
}

func (g *generateFlags) bind(f *pflag.FlagSet) {
	f.StringVar(&g.scenario, "scenario", "", "YAML scenario file overriding the generation parameters")
	f.Uint64Var(&g.seed, "seed", 0, "random seed")
	f.StringVarP(&g.outputDir, "output-dir", "o", "", "output directory")
	f.StringVar(&g.start, "start", "", "window start (RFC3339 or 2006-01-02)")
	f.StringVar(&g.end, "end", "", "window end (RFC3339 or 2006-01-02)")
	f.IntVar(&g.schools, "schools", 0, "number of schools")
	f.IntVar(&g.users, "users", 0, "number of initial users")
	f.IntVar(&g.products, "products", 0, "number of products")
	f.IntVar(&g.referrals, "referrals", 0, "number of referrals")
	f.IntVar(&g.purchases, "purchases", 0, "number of purchases")
	f.StringVar(&g.snapshot, "snapshot", "", "snapshot target: none, postgres or clickhouse")
	f.IntVar(&g.maxDeviceCollisions, "max-device-collisions", 0, "users allowed to share a device id before validation fails; negative disables the check")
}

// apply overlays the scenario file and every flag set on the command line
func (g *generateFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if g.scenario != "" {
		scenario, err := config.LoadScenario(g.scenario)
		if err != nil {
			return err
		}
		scenario.Apply(&cfg.Generation)
	}

	changed := cmd.Flags().Changed
	gen := &cfg.Generation
	if changed("seed") {
		gen.Seed = g.seed
	}
	if changed("output-dir") {
		gen.OutputDir = g.outputDir
	}
	if changed("start") {
		t, err := parseDate(g.start)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		gen.StartDate = t
	}
	if changed("end") {
		t, err := parseDate(g.end)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		gen.EndDate = t
	}
	if changed("schools") {
		gen.Schools = g.schools
	}
	if changed("users") {
		gen.Users = g.users
	}
	if changed("products") {
		gen.Products = g.products
	}
	if changed("referrals") {
		gen.Referrals = g.referrals
	}
	if changed("purchases") {
		gen.Purchases = g.purchases
	}
	if changed("snapshot") {
		cfg.Snapshot.Target = g.snapshot
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func initLogger(cfg *config.Config) *logging.Logger {
	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	return logging.GetGlobalLogger()
}

func generationParams(g config.GenerationConfig) generator.Params {
	return generator.Params{
		Seed:      g.Seed,
		Window:    models.Window{Start: g.StartDate, End: g.EndDate},
		Schools:   g.Schools,
		Users:     g.Users,
		Products:  g.Products,
		Referrals: g.Referrals,
		Purchases: g.Purchases,
	}
}

func runGenerate(ctx context.Context, cfg *config.Config, opts ...func(*service.GenerationService)) error {
	logger := logging.FromContext(ctx)
	retryConfig := retry.NewRetryConfig(cfg.Retry.MaxRetries, cfg.Retry.InitialDelay)

	svc := service.NewGenerationService(retryConfig).
		WithMetricsTextfile(cfg.Metrics.TextfilePath)
	for _, opt := range opts {
		opt(svc)
	}

	closeSinks, err := wireSinks(ctx, cfg, retryConfig, svc)
	defer closeSinks()
	if err != nil {
		return err
	}

	summary, err := svc.Run(ctx, generationParams(cfg.Generation), cfg.Generation.OutputDir)
	if summary != nil {
		fmt.Printf("run_id=%s dataset_id=%s status=%s manifest=%s\n",
			summary.RunID, summary.DatasetID, summary.Status, summary.ManifestPath)
	}
	if err != nil {
		return fmt.Errorf("generation run failed: %w", err)
	}

	logger.WithField("run_id", summary.RunID).Info("Done")
	return nil
}

// wireSinks connects every configured store and attaches it to svc. The
// returned cleanup closes whatever was opened, even on error.
func wireSinks(ctx context.Context, cfg *config.Config, retryConfig *retry.RetryConfig, svc *service.GenerationService) (func(), error) {
	logger := logging.FromContext(ctx)
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var postgres *storage.PostgresDB
	openPostgres := func() (*storage.PostgresDB, error) {
		if postgres != nil {
			return postgres, nil
		}
		err := retry.WithRetry(ctx, retryConfig, func(ctx context.Context, attempt int) error {
			var err error
			postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		closers = append(closers, postgres.Close)
		return postgres, nil
	}

	switch cfg.Snapshot.Target {
	case config.SnapshotPostgres:
		db, err := openPostgres()
		if err != nil {
			return cleanup, err
		}
		svc.WithSnapshot(storage.NewSnapshotRepository(db.Pool(), cfg.Snapshot.Schema))
		logger.WithField("schema", cfg.Snapshot.Schema).Info("Postgres snapshot enabled")

	case config.SnapshotClickHouse:
		var clickhouse *storage.ClickHouseDB
		err := retry.WithRetry(ctx, retryConfig, func(ctx context.Context, attempt int) error {
			var err error
			clickhouse, err = storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
			return err
		})
		if err != nil {
			return cleanup, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		closers = append(closers, func() {
			if err := clickhouse.Close(); err != nil {
				logger.WithError(err).Warn("Error closing ClickHouse connection")
			}
		})
		svc.WithSnapshot(storage.NewWarehouseRepository(clickhouse, cfg.Snapshot.Schema))
		logger.WithField("database", cfg.Snapshot.Schema).Info("ClickHouse snapshot enabled")
	}

	if cfg.Registry.Enabled {
		db, err := openPostgres()
		if err != nil {
			return cleanup, err
		}
		svc.WithRegistry(storage.NewRunRepository(db))
		logger.Info("Run registry enabled")
	}

	if cfg.Database.Redis.Enabled {
		cache, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
		if err != nil {
			return cleanup, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		closers = append(closers, func() {
			if err := cache.Close(); err != nil {
				logger.WithError(err).Warn("Error closing Redis connection")
			}
		})
		svc.WithLatestPublisher(storage.NewLatestRunPointer(cache))
		logger.Info("Redis latest-run pointer enabled")
	}

	if cfg.Artifacts.Enabled {
		store, err := storage.NewArtifactStore(&cfg.Artifacts)
		if err != nil {
			return cleanup, err
		}
		svc.WithArtifacts(store)
		logger.WithField("bucket", cfg.Artifacts.Bucket).Info("Artifact upload enabled")
	}

	return cleanup, nil
}
