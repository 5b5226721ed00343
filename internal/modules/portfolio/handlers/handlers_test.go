package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/httpapi/httpapitest"
	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

func setupRouter(t *testing.T, ids ...string) http.Handler {
	t.Helper()
	env := httpapitest.NewEnv(t, ids...)
	return httpapitest.Router(NewHandler(env.Deps, env.Portfolios))
}

func TestHandleList(t *testing.T) {
	router := setupRouter(t, "pf-1", "pf-2", "pf-3")

	rec := httpapitest.Do(router, http.MethodGet, "/api/portfolios?page=1&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page portfolio.Page
	httpapitest.Decode(t, rec, &page)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNext)

	rec = httpapitest.Do(router, http.MethodGet, "/api/portfolios?page=2&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	httpapitest.Decode(t, rec, &page)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasNext)
}

func TestHandleList_Defaults(t *testing.T) {
	router := setupRouter(t, "pf-1")

	rec := httpapitest.Do(router, http.MethodGet, "/api/portfolios", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page portfolio.Page
	httpapitest.Decode(t, rec, &page)
	assert.Equal(t, DefaultPage, page.Page)
	assert.Equal(t, DefaultLimit, page.Limit)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "pf-1", page.Items[0].ID)
}

func TestHandleList_InvalidPagination(t *testing.T) {
	router := setupRouter(t, "pf-1")

	for _, query := range []string{"page=0", "limit=101", "page=abc", "limit=2.5"} {
		t.Run(query, func(t *testing.T) {
			rec := httpapitest.Do(router, http.MethodGet, "/api/portfolios?"+query, "")
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			env := httpapitest.Decode(t, rec, nil)
			require.NotNil(t, env.Validation)
			assert.True(t, env.Validation.HasCode(validation.CodeInvalidPagination))
		})
	}
}

func TestHandleReport(t *testing.T) {
	router := setupRouter(t, "pf-1")

	rec := httpapitest.Do(router, http.MethodGet, "/api/portfolios/pf-1/report?startDate=2023-06-30&endDate=2025-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report portfolio.ValuationReport
	httpapitest.Decode(t, rec, &report)
	assert.Equal(t, "pf-1", report.PortfolioID)
	assert.Len(t, report.Points, 25)
	assert.InDelta(t, 9.6, report.ChangePercent, 1e-6)
	require.NotNil(t, report.Annualized)
}

func TestHandleReport_Failures(t *testing.T) {
	router := setupRouter(t, "pf-1")

	tests := []struct {
		name   string
		path   string
		status int
		code   string
		field  string
	}{
		{"missing start", "/api/portfolios/pf-1/report?endDate=2025-01-01", http.StatusUnprocessableEntity, validation.CodeRequired, "startDate"},
		{"bad date", "/api/portfolios/pf-1/report?startDate=yesterday&endDate=2025-01-01", http.StatusUnprocessableEntity, validation.CodeInvalidDate, "startDate"},
		{"reversed", "/api/portfolios/pf-1/report?startDate=2025-01-01&endDate=2024-01-01", http.StatusUnprocessableEntity, validation.CodeInvalidDateRange, "startDate"},
		{"future end", "/api/portfolios/pf-1/report?startDate=2025-01-01&endDate=2026-01-01", http.StatusUnprocessableEntity, validation.CodeDateInFuture, "endDate"},
		{"too long", "/api/portfolios/pf-1/report?startDate=2010-01-01&endDate=2025-01-01", http.StatusUnprocessableEntity, validation.CodeDateRangeTooLong, "endDate"},
		{"unknown portfolio", "/api/portfolios/ghost/report?startDate=2024-01-01&endDate=2025-01-01", http.StatusNotFound, httpapi.CodePortfolioNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httpapitest.Do(router, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, rec.Code)

			env := httpapitest.Decode(t, rec, nil)
			require.NotNil(t, env.Error)
			if env.Validation != nil {
				assert.True(t, env.Validation.HasCode(tt.code), env.Validation.Codes())
				fields := make([]string, len(env.Validation.Errors))
				for i, e := range env.Validation.Errors {
					fields[i] = e.Field
				}
				assert.Contains(t, fields, tt.field)
			} else {
				assert.Equal(t, tt.code, env.Error.Code)
			}
		})
	}
}

func TestRegisterRoutes(t *testing.T) {
	env := httpapitest.NewEnv(t)
	handler := NewHandler(env.Deps, env.Portfolios)

	router := chi.NewRouter()
	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	})
}
