package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/httpapi/httpapitest"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

func setupHandler(t *testing.T) (http.Handler, *httpapitest.Env) {
	t.Helper()
	env := httpapitest.NewEnv(t, "pf-1")
	assessor := risk.NewAssessor(env.Deps.Log).WithClock(httpapitest.Clock)
	h := NewHandler(env.Deps, assessor, risk.DefaultOptions())
	return httpapitest.Router(h), env
}

func TestHandleAssess(t *testing.T) {
	router, _ := setupHandler(t)

	rec := httpapitest.Do(router, http.MethodPost, "/api/risk-assessment", `{"portfolioId":"pf-1","options":{"confidenceLevel":0.99}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var assessment risk.Assessment
	env := httpapitest.Decode(t, rec, &assessment)
	assert.Nil(t, env.Error)
	assert.False(t, env.Metadata.Cached)
	assert.Equal(t, "pf-1", assessment.PortfolioID)
	assert.Equal(t, 0.99, assessment.Options.ConfidenceLevel)
	assert.Equal(t, 0.07, assessment.Options.BenchmarkReturn)
	assert.Positive(t, assessment.HoldingCount)
	assert.Positive(t, assessment.TotalValue)
	assert.NotEmpty(t, env.Metadata.Timestamp)
}

func TestHandleAssess_ServesRepeatsFromCache(t *testing.T) {
	router, env := setupHandler(t)
	body := `{"portfolioId":"pf-1"}`

	first := httpapitest.Do(router, http.MethodPost, "/api/risk-assessment", body)
	require.Equal(t, http.StatusOK, first.Code)
	var fresh risk.Assessment
	httpapitest.Decode(t, first, &fresh)

	second := httpapitest.Do(router, http.MethodPost, "/api/risk-assessment", body)
	require.Equal(t, http.StatusOK, second.Code)
	var cached risk.Assessment
	decoded := httpapitest.Decode(t, second, &cached)

	assert.True(t, decoded.Metadata.Cached)
	assert.Equal(t, fresh.RiskScore, cached.RiskScore)
	assert.Equal(t, fresh.SectorExposure, cached.SectorExposure)

	count, err := env.Results.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestHandleAssess_Failures(t *testing.T) {
	router, _ := setupHandler(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing portfolio id", `{"options":{}}`, http.StatusUnprocessableEntity, validation.CodeRequired},
		{"confidence out of range", `{"portfolioId":"pf-1","options":{"confidenceLevel":1.5}}`, http.StatusUnprocessableEntity, validation.CodeOutOfRange},
		{"malformed body", `{"portfolioId":`, http.StatusUnprocessableEntity, validation.CodeMalformedBody},
		{"unknown portfolio", `{"portfolioId":"nope"}`, http.StatusNotFound, httpapi.CodePortfolioNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httpapitest.Do(router, http.MethodPost, "/api/risk-assessment", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			env := httpapitest.Decode(t, rec, nil)
			require.NotNil(t, env.Error)
			if env.Validation != nil {
				assert.False(t, env.Validation.IsValid)
				assert.True(t, env.Validation.HasCode(tt.code), env.Validation.Codes())
			} else {
				assert.Equal(t, tt.code, env.Error.Code)
			}
		})
	}
}

func TestRegisterRoutes(t *testing.T) {
	env := httpapitest.NewEnv(t)
	handler := NewHandler(env.Deps, risk.NewAssessor(env.Deps.Log), risk.DefaultOptions())

	router := chi.NewRouter()
	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	})
}
