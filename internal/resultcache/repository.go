// Package resultcache stores engine results as msgpack blobs keyed by request
// and snapshot version, so repeated requests against an unchanged portfolio
// skip the numeric work.
package resultcache

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind names the engine operation a cached result belongs to.
type Kind string

const (
	KindOptimization   Kind = "optimization"
	KindRiskAssessment Kind = "risk_assessment"
	KindStressTest     Kind = "stress_test"
	KindReturns        Kind = "returns"
)

// AllKinds lists every cacheable kind.
var AllKinds = []Kind{KindOptimization, KindRiskAssessment, KindStressTest, KindReturns}

var validKinds = func() map[Kind]bool {
	m := make(map[Kind]bool, len(AllKinds))
	for _, k := range AllKinds {
		m[k] = true
	}
	return m
}()

// DefaultTTL applies when the configured TTL is not positive.
const DefaultTTL = 15 * time.Minute

func validateKind(kind Kind) error {
	if !validKinds[kind] {
		return fmt.Errorf("invalid result kind: %s", kind)
	}
	return nil
}

// Repository provides cache operations over the engine_results table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewRepository creates a result cache over the cache database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "result_cache").Logger(),
		now: time.Now,
	}
}

// WithClock returns a copy of the repository that reads time from clock.
func (r *Repository) WithClock(clock func() time.Time) *Repository {
	c := *r
	c.now = clock
	return &c
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte, dst any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(dst)
}

// Key derives the cache key of a request. The snapshot version is part of the
// key, so an updated portfolio never hits results computed from an older one.
func Key(kind Kind, portfolioID string, version time.Time, request any) (string, error) {
	if err := validateKind(kind); err != nil {
		return "", err
	}
	body, err := marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|", kind, portfolioID, version.UnixNano())
	h.Write(body)
	return string(kind) + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// Store saves a result with expiration = now + ttl.
func (r *Repository) Store(kind Kind, key, portfolioID string, value any, ttl time.Duration) error {
	if err := validateKind(kind); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	data, err := marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s result: %w", kind, err)
	}

	now := r.now()
	_, err = r.db.Exec(`INSERT OR REPLACE INTO engine_results
		(cache_key, kind, portfolio_id, data, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		key, string(kind), portfolioID, data, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to store %s result: %w", kind, err)
	}
	return nil
}

// GetIfFresh decodes a result into dst only if it has not expired. It reports
// false when the key is missing or stale.
func (r *Repository) GetIfFresh(kind Kind, key string, dst any) (bool, error) {
	if err := validateKind(kind); err != nil {
		return false, err
	}
	return r.load(dst, "SELECT data FROM engine_results WHERE cache_key = ? AND kind = ? AND expires_at > ?",
		key, string(kind), r.now().Unix())
}

// Get decodes a result into dst regardless of expiration.
func (r *Repository) Get(kind Kind, key string, dst any) (bool, error) {
	if err := validateKind(kind); err != nil {
		return false, err
	}
	return r.load(dst, "SELECT data FROM engine_results WHERE cache_key = ? AND kind = ?", key, string(kind))
}

func (r *Repository) load(dst any, query string, args ...any) (bool, error) {
	var data []byte
	err := r.db.QueryRow(query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cached result: %w", err)
	}
	if err := unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return true, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM engine_results WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cached result: %w", err)
	}
	return nil
}

// DeleteExpired removes all rows where expires_at <= now and returns the
// number of rows deleted per kind.
func (r *Repository) DeleteExpired() (map[Kind]int64, error) {
	now := r.now().Unix()
	results := make(map[Kind]int64, len(AllKinds))
	for _, kind := range AllKinds {
		res, err := r.db.Exec("DELETE FROM engine_results WHERE kind = ? AND expires_at <= ?", string(kind), now)
		if err != nil {
			return results, fmt.Errorf("failed to delete expired %s results: %w", kind, err)
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return results, fmt.Errorf("failed to get rows affected for %s: %w", kind, err)
		}
		results[kind] = deleted
	}
	return results, nil
}

// InvalidatePortfolio drops every cached result computed for a portfolio.
func (r *Repository) InvalidatePortfolio(portfolioID string) (int64, error) {
	res, err := r.db.Exec("DELETE FROM engine_results WHERE portfolio_id = ?", portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate results of %s: %w", portfolioID, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if deleted > 0 {
		r.log.Debug().Str("portfolio_id", portfolioID).Int64("deleted", deleted).Msg("Invalidated cached results")
	}
	return deleted, nil
}

// Count returns the number of rows, fresh or not.
func (r *Repository) Count() (int64, error) {
	var n int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM engine_results").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cached results: %w", err)
	}
	return n, nil
}
