// Package di wires the engine's databases, repositories, services and jobs.
package di

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/archive"
	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/metrics"
	"github.com/aristath/portfolio-engine/internal/modules/diversification"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	"github.com/aristath/portfolio-engine/internal/modules/returns"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
	"github.com/aristath/portfolio-engine/internal/modules/stresstest"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
	"github.com/aristath/portfolio-engine/internal/resultcache"
	"github.com/aristath/portfolio-engine/internal/scheduler"
)

// Container holds every long-lived dependency of the engine. It is created by
// Wire and handed to the HTTP server.
type Container struct {
	// Databases
	SnapshotsDB *database.DB
	CacheDB     *database.DB

	// Repositories
	PortfolioRepo *portfolio.Repository
	ResultCache   *resultcache.Repository

	// Services
	Metrics             *metrics.Metrics
	Gateway             *validation.Gateway
	Enforcer            *diversification.Enforcer
	Assessor            *risk.Assessor
	RiskDefaults        risk.Options
	Calculator          *returns.Calculator
	StressEngine        *stresstest.Engine
	OptimizationService *optimization.Service
	PortfolioService    *portfolio.Service
	Cache               *httpapi.Cache
	Archiver            *archive.Archiver // nil unless archiving is enabled

	// Jobs
	Scheduler *scheduler.Scheduler

	log zerolog.Logger
}

// Databases lists the open databases.
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.SnapshotsDB, c.CacheDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Deps returns the shared handler dependencies.
func (c *Container) Deps() httpapi.Deps {
	return httpapi.Deps{
		Gateway:   c.Gateway,
		Snapshots: c.PortfolioService,
		Cache:     c.Cache,
		Archiver:  c.Archiver,
		Metrics:   c.Metrics,
		Log:       c.log,
	}
}

// Close stops the scheduler, waits for pending archive uploads and closes
// the databases.
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	c.Archiver.Close()

	var errs []error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
