package resultcache

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/database"
	testingpkg "github.com/aristath/portfolio-engine/internal/testing"
)

type cachedResult struct {
	AsOf     time.Time          `json:"asOf"`
	Name     string             `json:"name"`
	Weights  map[string]float64 `json:"weights"`
	Turnover decimal.Decimal    `json:"turnover"`
	Optional *float64           `json:"optional,omitempty"`
}

var t0 = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*Repository, *time.Time) {
	t.Helper()
	db := testingpkg.NewTestDB(t, database.NameCache)
	now := t0
	repo := NewRepository(db.Conn(), zerolog.Nop()).WithClock(func() time.Time { return now })
	return repo, &now
}

func TestKey(t *testing.T) {
	req := map[string]any{"objective": "MAXIMIZE_SHARPE", "budget": 1000.0}
	same := map[string]any{"budget": 1000.0, "objective": "MAXIMIZE_SHARPE"}

	k1, err := Key(KindOptimization, "p-1", t0, req)
	require.NoError(t, err)
	k2, err := Key(KindOptimization, "p-1", t0, same)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Contains(t, k1, "optimization:")

	k3, err := Key(KindOptimization, "p-1", t0.Add(time.Second), req)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "a new snapshot version must change the key")

	k4, err := Key(KindStressTest, "p-1", t0, req)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)

	k5, err := Key(KindOptimization, "p-2", t0, req)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k5)

	_, err = Key("unknown", "p-1", t0, req)
	assert.Error(t, err)
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo, now := newTestRepo(t)
	opt := 0.25
	in := cachedResult{
		AsOf:     t0,
		Name:     "run",
		Weights:  map[string]float64{"a": 0.6, "b": 0.4},
		Turnover: decimal.RequireFromString("1234.56"),
		Optional: &opt,
	}

	require.NoError(t, repo.Store(KindOptimization, "k", "p-1", in, time.Minute))

	var out cachedResult
	found, err := repo.GetIfFresh(KindOptimization, "k", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "run", out.Name)
	assert.Equal(t, in.Weights, out.Weights)
	assert.True(t, in.Turnover.Equal(out.Turnover))
	assert.True(t, in.AsOf.Equal(out.AsOf))
	require.NotNil(t, out.Optional)
	assert.InDelta(t, 0.25, *out.Optional, 1e-12)

	*now = t0.Add(2 * time.Minute)
	found, err = repo.GetIfFresh(KindOptimization, "k", &out)
	require.NoError(t, err)
	assert.False(t, found, "expired entries are not fresh")

	var stale cachedResult
	found, err = repo.Get(KindOptimization, "k", &stale)
	require.NoError(t, err)
	assert.True(t, found, "Get ignores expiry")
	assert.Equal(t, "run", stale.Name)
}

func TestGetIfFresh_WrongKindOrMissing(t *testing.T) {
	repo, _ := newTestRepo(t)
	require.NoError(t, repo.Store(KindRiskAssessment, "k", "p-1", cachedResult{Name: "x"}, time.Minute))

	var out cachedResult
	found, err := repo.GetIfFresh(KindStressTest, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.GetIfFresh(KindRiskAssessment, "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = repo.GetIfFresh("bogus", "k", &out)
	assert.Error(t, err)
}

func TestStore_NonPositiveTTLUsesDefault(t *testing.T) {
	repo, now := newTestRepo(t)
	require.NoError(t, repo.Store(KindReturns, "k", "", cachedResult{Name: "x"}, 0))

	*now = t0.Add(DefaultTTL - time.Second)
	var out cachedResult
	found, err := repo.GetIfFresh(KindReturns, "k", &out)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDeleteExpiredAndInvalidate(t *testing.T) {
	repo, now := newTestRepo(t)
	require.NoError(t, repo.Store(KindOptimization, "old", "p-1", cachedResult{}, time.Minute))
	require.NoError(t, repo.Store(KindStressTest, "fresh", "p-1", cachedResult{}, time.Hour))
	require.NoError(t, repo.Store(KindStressTest, "other", "p-2", cachedResult{}, time.Hour))

	*now = t0.Add(10 * time.Minute)
	deleted, err := repo.DeleteExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted[KindOptimization])
	assert.Equal(t, int64(0), deleted[KindStressTest])

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	removed, err := repo.InvalidatePortfolio("p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, repo.Delete("other"))
	n, err = repo.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanupJob(t *testing.T) {
	repo, now := newTestRepo(t)
	require.NoError(t, repo.Store(KindOptimization, "a", "p-1", cachedResult{}, time.Minute))
	require.NoError(t, repo.Store(KindReturns, "b", "", cachedResult{}, time.Hour))

	job := NewCleanupJob(repo, zerolog.Nop())
	assert.Equal(t, "result_cache_cleanup", job.Name())

	*now = t0.Add(5 * time.Minute)
	require.NoError(t, job.Run())

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCleanupJob_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM engine_results").WillReturnError(errors.New("database is locked"))
	job := NewCleanupJob(NewRepository(db, zerolog.Nop()), zerolog.Nop())

	err = job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}
