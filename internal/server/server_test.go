package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ngdist/internal/store"
	"github.com/betbot/ngdist/pkg/api"
	"github.com/betbot/ngdist/pkg/logger"
)

func newTestServer(t *testing.T, seed uint64) http.Handler {
	t.Helper()
	logger.InitWithWriter(io.Discard, "error")
	st, err := store.OpenBadger(store.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	srv, err := New(Config{Store: st, Seed: seed})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_UnknownDefaultScore(t *testing.T) {
	st, err := store.OpenBadger(store.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer st.Close()
	_, err = New(Config{Store: st, DefaultScore: "brier"})
	assert.Error(t, err)
}

func TestHealthzAndDistributions(t *testing.T) {
	h := newTestServer(t, 0)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil, nil))

	var infos []api.DistributionInfo
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/distributions", nil, &infos))
	require.NotEmpty(t, infos)
	assert.Equal(t, "normal", infos[0].Name)
	assert.ElementsMatch(t, []string{"log", "crps"}, infos[0].Scores)
}

func TestParamsRoundTrip(t *testing.T) {
	h := newTestServer(t, 0)

	var internal api.InternalResponse
	code := do(t, h, http.MethodPost, "/api/normal/internal", api.InternalRequest{
		Loc:   []api.Float{1, -2},
		Scale: []api.Float{2, 0.5},
	}, &internal)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, internal.Params, 2)

	var user api.UserResponse
	code = do(t, h, http.MethodPost, "/api/normal/user", api.UserRequest{Params: internal.Params}, &user)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []api.Float{1, -2}, user.Loc)
	assert.InDelta(t, 2.0, float64(user.Scale[0]), 1e-12)
	assert.InDelta(t, 0.5, float64(user.Scale[1]), 1e-12)
}

func TestParamsToInternal_NonPositiveScale(t *testing.T) {
	h := newTestServer(t, 0)
	var internal api.InternalResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/normal/internal", api.InternalRequest{
		Loc:   []api.Float{0},
		Scale: []api.Float{0},
	}, &internal))
	assert.True(t, math.IsInf(float64(internal.Params[0][1]), -1))
}

func TestBadRequests(t *testing.T) {
	h := newTestServer(t, 0)
	var e api.ErrorResponse

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/normal/user",
		api.UserRequest{Params: [][]api.Float{{1, 2, 3}}}, &e))
	assert.Contains(t, e.Error, "columns")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/normal/cdf",
		api.CDFRequest{Y: []api.Float{1, 2}, Loc: []api.Float{0, 0, 0}, Scale: []api.Float{1}}, nil))

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/normal/metric",
		api.MetricRequest{Params: [][]api.Float{{0, 0}}, Score: "brier"}, nil))

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/normal/sample",
		api.SampleRequest{Params: [][]api.Float{{0, 0}}, M: 0}, nil))

	// m*n 溢出 int 时也必须被上限拦截
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/normal/sample",
		api.SampleRequest{Params: [][]api.Float{{0, 0}, {0, 0}, {0, 0}, {0, 0}}, M: 1 << 62}, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/normal/sample",
		api.SampleRequest{Params: [][]api.Float{{0, 0}, {0, 0}}, M: maxSampleCells/2 + 1}, nil))

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/normal/fit",
		api.FitRequest{}, nil))

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/normal/fit",
		api.FitRequest{Y: []api.Float{3, 3, 3}}, nil))
}

func TestCDF(t *testing.T) {
	h := newTestServer(t, 0)
	var resp api.CDFResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/normal/cdf", api.CDFRequest{
		Y: []api.Float{-1, 2, 5}, Loc: []api.Float{2}, Scale: []api.Float{3},
	}, &resp))
	require.Len(t, resp.CDF, 3)
	assert.InDelta(t, 0.5, float64(resp.CDF[1]), 1e-12)
	assert.Less(t, resp.CDF[0], resp.CDF[1])
	assert.Less(t, resp.CDF[1], resp.CDF[2])
}

func TestMetric(t *testing.T) {
	h := newTestServer(t, 0)
	var resp api.MetricResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/normal/metric", api.MetricRequest{
		Params: [][]api.Float{{0, 0}, {1, api.Float(math.Log(2))}},
	}, &resp))
	assert.Equal(t, "log", resp.Score)
	require.Len(t, resp.Metric, 2)
	assert.InDelta(t, 0.25, float64(resp.Metric[1][0][0]), 1e-12)
	assert.Equal(t, api.Float(2), resp.Metric[1][1][1])
	assert.Equal(t, api.Float(0), resp.Metric[1][0][1])
	assert.Equal(t, api.Float(0), resp.Metric[1][1][0])
}

func TestScore(t *testing.T) {
	h := newTestServer(t, 0)
	var resp api.ScoreResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/normal/score", api.ScoreRequest{
		Params: [][]api.Float{{0, 0}},
		Y:      []api.Float{1},
		Score:  "log",
	}, &resp))
	require.Len(t, resp.NaturalGrad, 1)
	assert.InDelta(t, -1.0, float64(resp.NaturalGrad[0][0]), 1e-9)
	assert.InDelta(t, 0.0, float64(resp.NaturalGrad[0][1]), 1e-9)
	assert.InDelta(t, 0.5*math.Log(2*math.Pi)+0.5, float64(resp.Values[0]), 1e-12)
}

func TestSample_SeededIsReproducible(t *testing.T) {
	h := newTestServer(t, 0)
	seed := uint64(123)
	req := api.SampleRequest{Params: [][]api.Float{{5, 0}, {-5, 1}}, M: 4, Seed: &seed}

	var a, b api.SampleResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/normal/sample", req, &a))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/normal/sample", req, &b))
	require.Len(t, a.Samples, 4)
	require.Len(t, a.Samples[0], 2)
	assert.Equal(t, a, b)
}

func TestFitStoreAndFetch(t *testing.T) {
	h := newTestServer(t, 7)

	var fit api.Fit
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/normal/fit",
		api.FitRequest{Y: []api.Float{1, 2, 3}}, &fit))
	assert.NotEmpty(t, fit.ID)
	assert.Equal(t, "normal", fit.Distribution)
	assert.InDelta(t, 2.0, float64(fit.Loc), 1e-12)
	assert.InDelta(t, math.Sqrt(2.0/3.0), float64(fit.Scale), 1e-12)
	assert.Equal(t, 3, fit.N)

	var got api.Fit
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/fits/"+fit.ID, nil, &got))
	assert.Equal(t, fit.ID, got.ID)
	assert.Equal(t, fit.Params, got.Params)

	var list []api.Fit
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/fits?limit=10", nil, &list))
	require.Len(t, list, 1)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/fits/nope", nil, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/fits?limit=x", nil, nil))
}

func TestRateLimit(t *testing.T) {
	logger.InitWithWriter(io.Discard, "error")
	st, err := store.OpenBadger(store.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	srv, err := New(Config{Store: st, RateLimit: 1})
	require.NoError(t, err)
	defer srv.Close()
	h := srv.Router()

	req := api.SampleRequest{Params: [][]api.Float{{0, 0}}, M: 1}
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/normal/sample", req, nil))

	var e api.ErrorResponse
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/api/normal/sample", req, &e))
	assert.Equal(t, "rate limit exceeded", e.Error)

	// 轻量接口不限流
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/normal/cdf",
		api.CDFRequest{Y: []api.Float{0}, Loc: []api.Float{0}, Scale: []api.Float{1}}, nil))
}
