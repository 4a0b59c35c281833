package main

import (
	"context"
	"fmt"
	"os"
	"time"

	mongoMigration "labslot/internal/migrations/mongo"
	postgresMigration "labslot/internal/migrations/postgres"
	"labslot/pkg/config"
)

const JobName = "store-migration"

type migrateFunc func(ctx context.Context, cfg *config.Config) error

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	cfg := config.Load(JobName)
	cfg.SetStore()

	code := run(ctx, cfg, migrate)
	cancel()
	os.Exit(code)
}

// run executes fn and returns the process exit code. The store connection is
// closed before returning in both outcomes.
func run(ctx context.Context, cfg *config.Config, fn migrateFunc) int {
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting store migration job", "store_backend", cfg.StoreBackend)
	if err := fn(ctx, cfg); err != nil {
		cfg.Log.Error("Migration failed", "error", err)
		return 1
	}
	fmt.Println("Migration completed successfully.")
	return 0
}

func migrate(ctx context.Context, cfg *config.Config) error {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		return mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName)
	case config.StorePostgres:
		return postgresMigration.RunMigration(cfg.Client.Postgres.WithContext(ctx))
	default:
		cfg.Log.Info("Nothing to migrate for store backend", "store_backend", cfg.StoreBackend)
		return nil
	}
}
