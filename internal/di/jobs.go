package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/resultcache"
	"github.com/aristath/portfolio-engine/internal/scheduler"
)

// MaintenanceSchedule runs WAL checkpoints and integrity checks daily at 03:30.
const MaintenanceSchedule = "0 30 3 * * *"

// RegisterJobs creates the scheduler and registers the background jobs. The
// scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.ResultCache == nil {
		return fmt.Errorf("repositories must be initialized before jobs")
	}

	sched := scheduler.New(log)

	cleanup := resultcache.NewCleanupJob(container.ResultCache, log)
	if err := sched.AddJob(cfg.CacheCleanupSchedule, cleanup); err != nil {
		return fmt.Errorf("failed to register result cache cleanup: %w", err)
	}

	maintenance := scheduler.NewMaintenanceJob(log, container.Databases()...)
	if err := sched.AddJob(MaintenanceSchedule, maintenance); err != nil {
		return fmt.Errorf("failed to register database maintenance: %w", err)
	}

	container.Scheduler = sched
	return nil
}
