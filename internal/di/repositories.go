package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	"github.com/aristath/portfolio-engine/internal/resultcache"
)

// InitializeRepositories creates the repositories over the open databases.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container.SnapshotsDB == nil || container.CacheDB == nil {
		return fmt.Errorf("databases must be initialized before repositories")
	}

	container.PortfolioRepo = portfolio.NewRepository(container.SnapshotsDB.Conn(), log)
	container.ResultCache = resultcache.NewRepository(container.CacheDB.Conn(), log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
