package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/httpapi/httpapitest"
	"github.com/aristath/portfolio-engine/internal/modules/diversification"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

const solvableBody = `{
	"portfolioId": "pf-1",
	"objective": "MAXIMIZE_SHARPE",
	"constraints": {"maxPositionSize": 0.4, "minPositionSize": 0},
	"rebalancingBudget": 100000
}`

const infeasibleBody = `{
	"portfolioId": "pf-1",
	"objective": "MAXIMIZE_RETURN",
	"constraints": {"maxPositionSize": 0.05},
	"rebalancingBudget": 100000
}`

func newRouter(env *httpapitest.Env) http.Handler {
	log := env.Deps.Log
	svc := optimization.NewService(log, optimization.DefaultConfig(), diversification.NewEnforcer(log), risk.NewAssessor(log)).
		WithClock(httpapitest.Clock)
	return httpapitest.Router(NewHandler(env.Deps, svc))
}

func TestHandleOptimize(t *testing.T) {
	env := httpapitest.NewEnv(t, "pf-1")
	archiver, uploads := env.EnableArchive()
	router := newRouter(env)

	rec := httpapitest.Do(router, http.MethodPost, "/api/optimize", solvableBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp Response
	decoded := httpapitest.Decode(t, rec, &resp)
	assert.False(t, decoded.Metadata.Cached)
	require.NotNil(t, resp.Result)
	assert.Equal(t, optimization.StatusSolved, resp.Result.Status)
	assert.Equal(t, "pf-1", resp.Result.PortfolioID)
	assert.NotEmpty(t, resp.Result.RunID)
	assert.NotNil(t, resp.StrategyRecommendations)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(decoded.Data, &raw))
	assert.Contains(t, raw, "result")
	assert.Contains(t, raw, "strategyRecommendations")

	archiver.Close()
	keys := uploads.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasSuffix(keys[0], "/pf-1/"+resp.Result.RunID+".json"), keys[0])
}

func TestHandleOptimize_RepeatIsCached(t *testing.T) {
	env := httpapitest.NewEnv(t, "pf-1")
	router := newRouter(env)

	first := httpapitest.Do(router, http.MethodPost, "/api/optimize", solvableBody)
	require.Equal(t, http.StatusOK, first.Code)
	var fresh Response
	httpapitest.Decode(t, first, &fresh)

	second := httpapitest.Do(router, http.MethodPost, "/api/optimize", solvableBody)
	require.Equal(t, http.StatusOK, second.Code)
	var cached Response
	decoded := httpapitest.Decode(t, second, &cached)

	assert.True(t, decoded.Metadata.Cached)
	assert.Equal(t, fresh.Result.RunID, cached.Result.RunID)
	assert.True(t, fresh.Result.Turnover.Equal(cached.Result.Turnover))
	assert.Len(t, cached.Result.Recommendations, len(fresh.Result.Recommendations))
}

func TestHandleOptimize_Infeasible(t *testing.T) {
	env := httpapitest.NewEnv(t, "pf-1")
	router := newRouter(env)

	rec := httpapitest.Do(router, http.MethodPost, "/api/optimize", infeasibleBody)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp Response
	decoded := httpapitest.Decode(t, rec, &resp)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, httpapi.CodeInfeasible, decoded.Error.Code)
	require.NotNil(t, resp.Result)
	assert.Equal(t, optimization.StatusInfeasible, resp.Result.Status)
	assert.Empty(t, resp.Result.Recommendations)

	count, err := env.Results.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHandleOptimize_Failures(t *testing.T) {
	router := newRouter(httpapitest.NewEnv(t, "pf-1"))

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing budget", `{"portfolioId":"pf-1","objective":"MINIMIZE_RISK"}`, http.StatusUnprocessableEntity, validation.CodeRequired},
		{"unknown objective", `{"portfolioId":"pf-1","objective":"GET_RICH","rebalancingBudget":1}`, http.StatusUnprocessableEntity, validation.CodeInvalidEnum},
		{"min above max", `{"portfolioId":"pf-1","objective":"MINIMIZE_RISK","rebalancingBudget":1,"constraints":{"minPositionSize":0.5,"maxPositionSize":0.2}}`, http.StatusUnprocessableEntity, validation.CodeInconsistentConstraints},
		{"unknown portfolio", `{"portfolioId":"nope","objective":"MINIMIZE_RISK","rebalancingBudget":1}`, http.StatusNotFound, httpapi.CodePortfolioNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httpapitest.Do(router, http.MethodPost, "/api/optimize", tt.body)
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

func dialStream(t *testing.T, router http.Handler) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/optimize/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readUntilFinal(t *testing.T, ctx context.Context, conn *websocket.Conn) ([]StreamMessage, StreamMessage) {
	t.Helper()
	var progressMsgs []StreamMessage
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var msg StreamMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type != MessageProgress {
			return progressMsgs, msg
		}
		progressMsgs = append(progressMsgs, msg)
	}
}

func TestHandleStream(t *testing.T) {
	conn, ctx := dialStream(t, newRouter(httpapitest.NewEnv(t, "pf-1")))

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(solvableBody)))
	updates, final := readUntilFinal(t, ctx, conn)

	require.NotEmpty(t, updates)
	assert.Equal(t, "model", updates[0].Progress.Phase)
	assert.Equal(t, MessageResult, final.Type)
	require.NotNil(t, final.Data)
	assert.Equal(t, optimization.StatusSolved, final.Data.Result.Status)

	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandleStream_Validation(t *testing.T) {
	conn, ctx := dialStream(t, newRouter(httpapitest.NewEnv(t, "pf-1")))

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"objective":"MINIMIZE_RISK"}`)))
	updates, final := readUntilFinal(t, ctx, conn)

	assert.Empty(t, updates)
	assert.Equal(t, MessageValidation, final.Type)
	require.NotNil(t, final.Validation)
	assert.True(t, final.Validation.HasCode(validation.CodeRequired))
}

func TestHandleStream_Infeasible(t *testing.T) {
	conn, ctx := dialStream(t, newRouter(httpapitest.NewEnv(t, "pf-1")))

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(infeasibleBody)))
	_, final := readUntilFinal(t, ctx, conn)

	assert.Equal(t, MessageError, final.Type)
	require.NotNil(t, final.Error)
	assert.Equal(t, httpapi.CodeInfeasible, final.Error.Code)
	require.NotNil(t, final.Data)
	assert.Equal(t, optimization.StatusInfeasible, final.Data.Result.Status)
}
