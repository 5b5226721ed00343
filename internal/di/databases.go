package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/database"
)

// InitializeDatabases opens both databases and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{log: log}

	// snapshots.db - portfolio snapshots and valuation history, read by the engine
	snapshotsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, database.NameSnapshots+".db"),
		Driver:  cfg.DBDriver,
		Profile: database.ProfileStandard,
		Name:    database.NameSnapshots,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshots database: %w", err)
	}
	container.SnapshotsDB = snapshotsDB

	// cache.db - rebuildable engine results
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, database.NameCache+".db"),
		Driver:  cfg.DBDriver,
		Profile: database.ProfileCache,
		Name:    database.NameCache,
	})
	if err != nil {
		snapshotsDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			snapshotsDB.Close()
			cacheDB.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("driver", snapshotsDB.Driver()).
		Msg("Databases initialized")

	return container, nil
}
