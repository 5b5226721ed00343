package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/database"
)

// MaintenanceJob checks database integrity and truncates the WAL of every
// engine database.
type MaintenanceJob struct {
	log     zerolog.Logger
	dbs     []*database.DB
	timeout time.Duration
}

// NewMaintenanceJob creates a maintenance job over the given databases.
func NewMaintenanceJob(log zerolog.Logger, dbs ...*database.DB) *MaintenanceJob {
	return &MaintenanceJob{
		log:     log.With().Str("job", "database_maintenance").Logger(),
		dbs:     dbs,
		timeout: 30 * time.Second,
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run checks each database and checkpoints its WAL. Every database is visited
// even when an earlier one fails.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	var errs []error
	for _, db := range j.dbs {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			errs = append(errs, err)
			continue
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
			errs = append(errs, err)
			continue
		}
		j.log.Debug().Str("database", db.Name()).Msg("Database maintenance complete")
	}

	if len(errs) > 0 {
		return fmt.Errorf("database maintenance failed: %w", errors.Join(errs...))
	}
	return nil
}
