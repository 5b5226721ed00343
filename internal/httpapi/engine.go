package httpapi

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/archive"
	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/metrics"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
	"github.com/aristath/portfolio-engine/internal/resultcache"
)

// SnapshotSource loads portfolio snapshots.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, id string) (*domain.Portfolio, error)
}

// Deps are the collaborators every engine handler shares. Cache and Archiver
// may be nil.
type Deps struct {
	Gateway   *validation.Gateway
	Snapshots SnapshotSource
	Cache     *Cache
	Archiver  *archive.Archiver
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

// Validate parses and validates body, counting every failure code.
func (d Deps) Validate(kind validation.Kind, body []byte) (validation.Request, validation.Result) {
	req, res := d.Gateway.ValidateJSON(kind, body)
	if !res.IsValid {
		for _, code := range res.Codes() {
			d.Metrics.CountValidationFailure(string(kind), code)
		}
	}
	return req, res
}

// Observe records the duration of an engine operation.
func (d Deps) Observe(operation, outcome string, started time.Time) {
	d.Metrics.ObserveOperation(operation, outcome, time.Since(started))
}

// Cache wraps the result cache with metrics. A nil *Cache never hits.
type Cache struct {
	repo    *resultcache.Repository
	ttl     time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewCache creates a cache front end with the given TTL.
func NewCache(repo *resultcache.Repository, ttl time.Duration, m *metrics.Metrics, log zerolog.Logger) *Cache {
	return &Cache{
		repo:    repo,
		ttl:     ttl,
		metrics: m,
		log:     log.With().Str("component", "http_cache").Logger(),
	}
}

// Lookup decodes a fresh cached result for a portfolio-scoped request into
// dst. The snapshot's UpdatedAt versions the key. It returns the key to store
// under on a miss; an empty key means caching is unavailable.
func (c *Cache) Lookup(kind resultcache.Kind, p *domain.Portfolio, req any, dst any) (string, bool) {
	if p == nil {
		return c.LookupVersion(kind, "", time.Time{}, req, dst)
	}
	return c.LookupVersion(kind, p.ID, p.UpdatedAt, req, dst)
}

// LookupVersion is Lookup with an explicit owner and version.
func (c *Cache) LookupVersion(kind resultcache.Kind, portfolioID string, version time.Time, req any, dst any) (string, bool) {
	if c == nil {
		return "", false
	}
	key, err := resultcache.Key(kind, portfolioID, version, req)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to derive cache key")
		return "", false
	}
	hit, err := c.repo.GetIfFresh(kind, key, dst)
	if err != nil {
		c.log.Warn().Err(err).Str("kind", string(kind)).Msg("Cache lookup failed")
		hit = false
	}
	c.metrics.CountCacheLookup(string(kind), hit)
	return key, hit
}

// Save stores a result under key. Failures are logged only.
func (c *Cache) Save(kind resultcache.Kind, key, portfolioID string, value any) {
	if c == nil || key == "" {
		return
	}
	if err := c.repo.Store(kind, key, portfolioID, value, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to cache result")
	}
}
