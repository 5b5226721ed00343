// Package portfolio reads portfolio snapshots from the snapshot store.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// Summary is one row of the portfolio listing.
type Summary struct {
	UpdatedAt       time.Time `json:"updatedAt"`
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Name            string    `json:"name"`
	TotalInvested   float64   `json:"totalInvested"`
	TotalValue      float64   `json:"totalValue"`
	TotalReturn     float64   `json:"totalReturn"`
	RiskScore       float64   `json:"riskScore"`
	InvestmentCount int       `json:"investmentCount"`
}

// Page is one page of the portfolio listing.
type Page struct {
	Items      []Summary `json:"items"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Total      int       `json:"total"`
	TotalPages int       `json:"totalPages"`
	HasNext    bool      `json:"hasNext"`
}

// Repository reads snapshots. It never writes: portfolio records are owned
// by the portfolio service.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a snapshot repository over the snapshots database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio_snapshot").Logger(),
	}
}

// GetSnapshot loads a portfolio with its investments and valuation history.
// Every call returns a fresh value that callers may not share.
func (r *Repository) GetSnapshot(ctx context.Context, id string) (*domain.Portfolio, error) {
	p := &domain.Portfolio{}
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, `SELECT id, user_id, name, total_invested, total_value,
		total_return, return_percentage, risk_score, updated_at
		FROM portfolios WHERE id = ?`, id).Scan(
		&p.ID, &p.UserID, &p.Name, &p.TotalInvested, &p.TotalValue,
		&p.TotalReturn, &p.ReturnPercentage, &p.RiskScore, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPortfolioNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio %s: %w", id, err)
	}
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if p.Investments, err = r.investments(ctx, id); err != nil {
		return nil, err
	}

	points, err := r.points(ctx, `SELECT investment_id, date, value FROM valuation_points
		WHERE portfolio_id = ? ORDER BY date`, id)
	if err != nil {
		return nil, err
	}
	byInvestment := make(map[string]int, len(p.Investments))
	for i, inv := range p.Investments {
		byInvestment[inv.ID] = i
	}
	for _, pt := range points {
		if pt.investmentID == "" {
			p.History = append(p.History, pt.ValuePoint)
			continue
		}
		if i, ok := byInvestment[pt.investmentID]; ok {
			p.Investments[i].History = append(p.Investments[i].History, pt.ValuePoint)
		}
	}

	if err := p.CheckInvariant(); err != nil {
		r.log.Warn().Err(err).Str("portfolio_id", id).Msg("Snapshot breaks the value invariant")
	}
	return p, nil
}

func (r *Repository) investments(ctx context.Context, portfolioID string) ([]domain.PortfolioInvestment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, portfolio_id, project_id, name, sector,
		risk_level, status, invested_amount, current_value, invested_at
		FROM portfolio_investments WHERE portfolio_id = ? ORDER BY invested_at, id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	investments := []domain.PortfolioInvestment{}
	for rows.Next() {
		var inv domain.PortfolioInvestment
		var level, status string
		var investedAt int64
		if err := rows.Scan(&inv.ID, &inv.PortfolioID, &inv.ProjectID, &inv.Name, &inv.Sector,
			&level, &status, &inv.InvestedAmount, &inv.CurrentValue, &investedAt); err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		if inv.RiskLevel, err = domain.ParseRiskLevel(level); err != nil {
			return nil, fmt.Errorf("investment %s: %w", inv.ID, err)
		}
		if inv.Status, err = domain.ParseInvestmentStatus(status); err != nil {
			return nil, fmt.Errorf("investment %s: %w", inv.ID, err)
		}
		inv.InvestedAt = time.Unix(investedAt, 0).UTC()
		investments = append(investments, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investments: %w", err)
	}
	return investments, nil
}

type storedPoint struct {
	investmentID string
	domain.ValuePoint
}

func (r *Repository) points(ctx context.Context, query string, args ...any) ([]storedPoint, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query valuation points: %w", err)
	}
	defer rows.Close()

	var out []storedPoint
	for rows.Next() {
		var pt storedPoint
		var date int64
		if err := rows.Scan(&pt.investmentID, &date, &pt.Value); err != nil {
			return nil, fmt.Errorf("failed to scan valuation point: %w", err)
		}
		pt.Date = time.Unix(date, 0).UTC()
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating valuation points: %w", err)
	}
	return out, nil
}

// History returns the portfolio-level valuation points with start <= date <= end.
func (r *Repository) History(ctx context.Context, id string, start, end time.Time) ([]domain.ValuePoint, error) {
	if _, err := r.exists(ctx, id); err != nil {
		return nil, err
	}

	points, err := r.points(ctx, `SELECT investment_id, date, value FROM valuation_points
		WHERE portfolio_id = ? AND investment_id = '' AND date >= ? AND date <= ?
		ORDER BY date`, id, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}

	out := make([]domain.ValuePoint, len(points))
	for i, pt := range points {
		out[i] = pt.ValuePoint
	}
	return out, nil
}

func (r *Repository) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM portfolios WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", domain.ErrPortfolioNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up portfolio %s: %w", id, err)
	}
	return true, nil
}

// List returns one page of portfolios ordered by most recently updated.
// page and limit must already be validated.
func (r *Repository) List(ctx context.Context, page, limit int) (*Page, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM portfolios").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count portfolios: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT p.id, p.user_id, p.name, p.total_invested,
		p.total_value, p.total_return, p.risk_score, p.updated_at,
		(SELECT COUNT(*) FROM portfolio_investments i WHERE i.portfolio_id = p.id)
		FROM portfolios p ORDER BY p.updated_at DESC, p.id LIMIT ? OFFSET ?`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	items := []Summary{}
	for rows.Next() {
		var s Summary
		var updatedAt int64
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.TotalInvested, &s.TotalValue,
			&s.TotalReturn, &s.RiskScore, &updatedAt, &s.InvestmentCount); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio summary: %w", err)
		}
		s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return NewPage(items, page, limit, total), nil
}

// NewPage assembles the page metadata for a listing of total items.
func NewPage(items []Summary, page, limit, total int) *Page {
	totalPages := 0
	if limit > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return &Page{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}
