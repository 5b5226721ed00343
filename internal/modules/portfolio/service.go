package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// ValuationReport summarizes a portfolio's valuation history over a window.
type ValuationReport struct {
	Start         time.Time           `json:"start"`
	End           time.Time           `json:"end"`
	PortfolioID   string              `json:"portfolioId"`
	Points        []domain.ValuePoint `json:"points"`
	StartValue    float64             `json:"startValue"`
	EndValue      float64             `json:"endValue"`
	Change        float64             `json:"change"`
	ChangePercent float64             `json:"changePercent"`
	MaxDrawdown   float64             `json:"maxDrawdown"`
	Volatility    float64             `json:"volatility"`
	// Annualized is nil when the window is too short to annualize.
	Annualized *float64 `json:"annualized,omitempty"`
}

// SnapshotSource loads portfolio snapshots for the engine modules.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, id string) (*domain.Portfolio, error)
}

// Service exposes the snapshot store to the HTTP layer.
type Service struct {
	repo *Repository
	log  zerolog.Logger
	now  func() time.Time
}

// NewService creates a portfolio service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "portfolio").Logger(),
		now:  time.Now,
	}
}

// WithClock returns a copy of the service that validates ranges against clock().
func (s *Service) WithClock(clock func() time.Time) *Service {
	c := *s
	c.now = clock
	return &c
}

// GetSnapshot loads one portfolio.
func (s *Service) GetSnapshot(ctx context.Context, id string) (*domain.Portfolio, error) {
	return s.repo.GetSnapshot(ctx, id)
}

// List validates the pagination parameters and returns one page.
func (s *Service) List(ctx context.Context, page, limit float64) (*Page, validation.Result, error) {
	if res := validation.ValidatePagination(page, limit); !res.IsValid {
		return nil, res, nil
	}
	out, err := s.repo.List(ctx, int(page), int(limit))
	if err != nil {
		return nil, validation.Valid(), err
	}
	return out, validation.Valid(), nil
}

// Report validates the date range and summarizes the valuation history inside it.
func (s *Service) Report(ctx context.Context, id string, start, end time.Time) (*ValuationReport, validation.Result, error) {
	if res := validation.ValidateDateRange(start, end, s.now()); !res.IsValid {
		return nil, res, nil
	}

	points, err := s.repo.History(ctx, id, start, end)
	if err != nil {
		return nil, validation.Valid(), fmt.Errorf("failed to load valuation history: %w", err)
	}

	report := Summarize(id, start, end, points)
	s.log.Debug().
		Str("portfolio_id", id).
		Int("points", len(points)).
		Msg("Valuation report built")
	return report, validation.Valid(), nil
}

// Summarize computes the report figures of a date-ordered series.
func Summarize(id string, start, end time.Time, points []domain.ValuePoint) *ValuationReport {
	report := &ValuationReport{
		Start:       start,
		End:         end,
		PortfolioID: id,
		Points:      points,
	}
	if report.Points == nil {
		report.Points = []domain.ValuePoint{}
	}
	if len(points) == 0 {
		return report
	}

	values := domain.SeriesValues(points)
	report.StartValue = values[0]
	report.EndValue = values[len(values)-1]
	report.Change = report.EndValue - report.StartValue
	if report.StartValue != 0 {
		report.ChangePercent = report.Change / report.StartValue * 100
	}
	report.MaxDrawdown = formulas.MaxDrawdown(values)

	dates := make([]time.Time, len(points))
	for i, p := range points {
		dates[i] = p.Date
	}
	report.Volatility = formulas.AnnualizedVolatility(formulas.CalculateReturns(values), formulas.PeriodsPerYear(dates))

	if years := formulas.YearsBetween(dates[0], dates[len(dates)-1]); years >= 1 {
		report.Annualized = formulas.CAGR(report.StartValue, report.EndValue, years)
	}
	return report
}
