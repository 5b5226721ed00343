// Package httpapitest builds seeded handler dependencies for handler tests.
package httpapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/metrics"
	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
	"github.com/aristath/portfolio-engine/internal/resultcache"
	testingpkg "github.com/aristath/portfolio-engine/internal/testing"
)

// Env is a seeded set of handler dependencies.
type Env struct {
	Deps       httpapi.Deps
	Portfolios *portfolio.Service
	Results    *resultcache.Repository
	Metrics    *metrics.Metrics
}

// Clock returns the fixture valuation date.
func Clock() time.Time {
	return testingpkg.FixtureAsOf
}

// NewEnv seeds one fixture portfolio per id and wires a result cache.
func NewEnv(t *testing.T, ids ...string) *Env {
	t.Helper()
	log := zerolog.Nop()

	snapshots := testingpkg.NewTestDB(t, database.NameSnapshots)
	for _, id := range ids {
		testingpkg.SeedPortfolio(t, snapshots.Conn(), testingpkg.NewPortfolioFixture(id))
	}
	cacheDB := testingpkg.NewTestDB(t, database.NameCache)

	m := metrics.New()
	results := resultcache.NewRepository(cacheDB.Conn(), log).WithClock(Clock)
	portfolios := portfolio.NewService(portfolio.NewRepository(snapshots.Conn(), log), log).WithClock(Clock)

	return &Env{
		Deps: httpapi.Deps{
			Gateway:   validation.NewGateway(log).WithClock(Clock),
			Snapshots: portfolios,
			Cache:     httpapi.NewCache(results, resultcache.DefaultTTL, m, log),
			Metrics:   m,
			Log:       log,
		},
		Portfolios: portfolios,
		Results:    results,
		Metrics:    m,
	}
}

// Registrar is implemented by every module handler.
type Registrar interface {
	RegisterRoutes(r chi.Router)
}

// Router mounts h under /api.
func Router(h Registrar) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

// Do performs a request against h and returns the recorder.
func Do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Envelope is the decoded response envelope with raw data.
type Envelope struct {
	Data       json.RawMessage    `json:"data"`
	Error      *httpapi.ErrorBody `json:"error"`
	Validation *validation.Result `json:"validation"`
	Metadata   httpapi.Metadata   `json:"metadata"`
}

// Decode decodes the envelope and, when dst is non-nil, its data.
func Decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if dst != nil {
		require.NoError(t, json.Unmarshal(env.Data, dst))
	}
	return env
}
