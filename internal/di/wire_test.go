package di

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/database"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:              t.TempDir(),
		DBDriver:             database.DriverModernc,
		Port:                 8080,
		SolverTimeout:        5 * time.Second,
		SolverMaxIterations:  500,
		CacheTTL:             time.Minute,
		CacheCleanupSchedule: "0 */10 * * * *",
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	t.Cleanup(func() { _ = container.Close() })

	assert.NotNil(t, container.SnapshotsDB)
	assert.NotNil(t, container.CacheDB)
	assert.NotNil(t, container.PortfolioService)
	assert.NotNil(t, container.OptimizationService)
	assert.NotNil(t, container.StressEngine)
	assert.NotNil(t, container.Cache)
	assert.Nil(t, container.Archiver, "archive is disabled by default")

	status := container.Scheduler.Status()
	names := make([]string, len(status))
	for i, s := range status {
		names[i] = s.Name
	}
	assert.ElementsMatch(t, []string{"result_cache_cleanup", "database_maintenance"}, names)
}

func TestInitializeDatabases(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	for _, name := range []string{"snapshots.db", "cache.db"} {
		_, err := os.Stat(filepath.Join(cfg.DataDir, name))
		assert.NoError(t, err, name)
	}
	assert.Len(t, container.Databases(), 2)
}

func TestInitializeRepositories_RequiresDatabases(t *testing.T) {
	err := InitializeRepositories(&Container{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestInitializeServices_RequiresRepositories(t *testing.T) {
	err := InitializeServices(&Container{}, testConfig(t), zerolog.Nop())
	assert.Error(t, err)
}

func TestRegisterJobs_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheCleanupSchedule = "not a schedule"

	_, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestContainerDeps(t *testing.T) {
	container, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	deps := container.Deps()
	assert.Same(t, container.Gateway, deps.Gateway)
	assert.Same(t, container.Cache, deps.Cache)
	assert.Same(t, container.Metrics, deps.Metrics)
	assert.Nil(t, deps.Archiver)
}
