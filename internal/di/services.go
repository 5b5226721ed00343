package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/archive"
	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/metrics"
	"github.com/aristath/portfolio-engine/internal/modules/diversification"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	"github.com/aristath/portfolio-engine/internal/modules/returns"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
	"github.com/aristath/portfolio-engine/internal/modules/stresstest"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

// InitializeServices creates the engine services. Repositories must exist.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.PortfolioRepo == nil || container.ResultCache == nil {
		return fmt.Errorf("repositories must be initialized before services")
	}

	container.Metrics = metrics.New()
	container.Gateway = validation.NewGateway(log)
	container.PortfolioService = portfolio.NewService(container.PortfolioRepo, log)
	container.Cache = httpapi.NewCache(container.ResultCache, cfg.CacheTTL, container.Metrics, log)

	container.Enforcer = diversification.NewEnforcer(log)
	container.Assessor = risk.NewAssessor(log)
	container.RiskDefaults = cfg.RiskDefaults()
	container.Calculator = returns.NewCalculator(log)
	container.OptimizationService = optimization.NewService(log, cfg.Optimizer(), container.Enforcer, container.Assessor)

	engine, err := stresstest.NewEngine(log)
	if err != nil {
		return fmt.Errorf("failed to load stress scenario catalog: %w", err)
	}
	container.StressEngine = engine

	if cfg.Archive.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		uploader, err := archive.NewS3Uploader(ctx, cfg.ArchiveSettings())
		if err != nil {
			return fmt.Errorf("failed to create archive uploader: %w", err)
		}
		container.Archiver = archive.New(uploader, cfg.ArchiveSettings(), log)
		log.Info().
			Str("bucket", cfg.Archive.Bucket).
			Str("prefix", cfg.Archive.Prefix).
			Msg("Report archive enabled")
	}

	log.Debug().Msg("Services initialized")
	return nil
}
