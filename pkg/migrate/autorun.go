package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/partsrunner-backend/pkg/config"
	"github.com/angelmondragon/partsrunner-backend/pkg/db"
	"github.com/angelmondragon/partsrunner-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations in dev when the AutoMigrate flag is on.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB)
	if err != nil {
		return err
	}

	applied, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	versions := make([]int64, 0, len(applied))
	for _, a := range applied {
		versions = append(versions, a.Version)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"applied":  len(applied),
		"versions": versions,
	}), "dev auto-migrate complete")
	return nil
}
