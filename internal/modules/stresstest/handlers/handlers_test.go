package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/httpapi/httpapitest"
	"github.com/aristath/portfolio-engine/internal/modules/stresstest"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

func setupHandler(t *testing.T) (http.Handler, *httpapitest.Env) {
	t.Helper()
	env := httpapitest.NewEnv(t, "pf-1")
	return newRouter(t, env), env
}

func newRouter(t *testing.T, env *httpapitest.Env) http.Handler {
	t.Helper()
	engine, err := stresstest.NewEngine(zerolog.Nop())
	require.NoError(t, err)
	return httpapitest.Router(NewHandler(env.Deps, engine.WithClock(httpapitest.Clock)))
}

const runBody = `{
	"portfolioId": "pf-1",
	"scenarios": [
		{"name": "flat 20", "type": "UNIFORM_SHOCK", "shockPercent": 20, "maxLossThreshold": 10},
		{"name": "crash", "type": "MARKET_CRASH"},
		{"name": "alien", "type": "ALIEN_INVASION"}
	]
}`

func TestHandleRun(t *testing.T) {
	env := httpapitest.NewEnv(t, "pf-1")
	archiver, uploads := env.EnableArchive()
	router := newRouter(t, env)

	rec := httpapitest.Do(router, http.MethodPost, "/api/stress-test", runBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report stresstest.Report
	httpapitest.Decode(t, rec, &report)
	require.Len(t, report.Results, 3)

	flat := report.Results[0]
	assert.Equal(t, "flat 20", flat.Name)
	assert.InDelta(t, report.TotalValue*0.2, flat.Loss, 1e-6)
	assert.InDelta(t, 20.0, flat.LossPercent, 1e-9)
	assert.True(t, flat.Breached)

	assert.Nil(t, report.Results[1].Error)
	assert.NotEmpty(t, report.Results[1].Description)

	require.NotNil(t, report.Results[2].Error)
	assert.Equal(t, "UNKNOWN_SCENARIO_TYPE", report.Results[2].Error.Code)

	assert.Equal(t, 1, report.BreachedCount)
	assert.Equal(t, 1, report.FailedCount)

	archiver.Close()
	keys := uploads.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "test/stress-test/"), keys[0])
	assert.Contains(t, keys[0], "/pf-1/")
}

func TestHandleRun_CachedRunIsNotArchivedAgain(t *testing.T) {
	env := httpapitest.NewEnv(t, "pf-1")
	archiver, uploads := env.EnableArchive()
	router := newRouter(t, env)

	first := httpapitest.Do(router, http.MethodPost, "/api/stress-test", runBody)
	require.Equal(t, http.StatusOK, first.Code)
	second := httpapitest.Do(router, http.MethodPost, "/api/stress-test", runBody)
	require.Equal(t, http.StatusOK, second.Code)

	assert.True(t, httpapitest.Decode(t, second, nil).Metadata.Cached)
	archiver.Close()
	assert.Len(t, uploads.Keys(), 1)
}

func TestHandleRun_Failures(t *testing.T) {
	router, _ := setupHandler(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"no scenarios", `{"portfolioId":"pf-1","scenarios":[]}`, http.StatusUnprocessableEntity, validation.CodeRequired},
		{"uniform shock without a shock", `{"portfolioId":"pf-1","scenarios":[{"name":"x","type":"UNIFORM_SHOCK","maxLossThreshold":10}]}`, http.StatusUnprocessableEntity, validation.CodeRequired},
		{"shock out of range", `{"portfolioId":"pf-1","scenarios":[{"name":"x","type":"UNIFORM_SHOCK","shockPercent":150}]}`, http.StatusUnprocessableEntity, validation.CodeOutOfRange},
		{"unknown portfolio", `{"portfolioId":"nope","scenarios":[{"name":"x","type":"UNIFORM_SHOCK","shockPercent":5}]}`, http.StatusNotFound, httpapi.CodePortfolioNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httpapitest.Do(router, http.MethodPost, "/api/stress-test", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			env := httpapitest.Decode(t, rec, nil)
			require.NotNil(t, env.Error)
			if env.Validation != nil {
				assert.True(t, env.Validation.HasCode(tt.code), env.Validation.Codes())
			} else {
				assert.Equal(t, tt.code, env.Error.Code)
			}
		})
	}
}

func TestHandleGetScenarios(t *testing.T) {
	router, _ := setupHandler(t)

	rec := httpapitest.Do(router, http.MethodGet, "/api/stress-test/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Builtin []stresstest.ScenarioType `json:"builtin"`
		Presets []stresstest.Preset       `json:"presets"`
	}
	httpapitest.Decode(t, rec, &data)
	assert.Len(t, data.Builtin, 3)
	require.NotEmpty(t, data.Presets)

	types := make([]stresstest.ScenarioType, len(data.Presets))
	for i, p := range data.Presets {
		types[i] = p.Type
	}
	assert.Contains(t, types, stresstest.ScenarioType("MARKET_CRASH"))
}
