package client

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ngdist/internal/server"
	"github.com/betbot/ngdist/internal/store"
	"github.com/betbot/ngdist/pkg/logger"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger.InitWithWriter(io.Discard, "error")
	st, err := store.OpenBadger(store.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	srv, err := server.New(server.Config{Store: st})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return NewClient(ts.URL + "/")
}

func TestClient_Params(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	dists, err := c.Distributions(ctx)
	require.NoError(t, err)
	require.Len(t, dists, 1)
	assert.Equal(t, "normal", dists[0].Name)

	internal, err := c.ParamsToInternal(ctx, []float64{3}, []float64{math.E})
	require.NoError(t, err)
	require.Len(t, internal, 1)
	assert.Equal(t, 3.0, internal[0][0])
	assert.InDelta(t, 1.0, internal[0][1], 1e-12)

	user, err := c.ParamsToUser(ctx, internal)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, float64(user.Loc[0]), 1e-12)
	assert.InDelta(t, math.E, float64(user.Scale[0]), 1e-12)
}

func TestClient_CDFMetricScore(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	cdf, err := c.CDF(ctx, []float64{0, 1.96}, []float64{0}, []float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cdf[0], 1e-12)
	assert.InDelta(t, 0.975, cdf[1], 1e-3)

	m, err := c.Metric(ctx, [][]float64{{0, 0}}, "crps")
	require.NoError(t, err)
	assert.Equal(t, "crps", m.Score)
	assert.InDelta(t, 1/math.Sqrt(math.Pi), float64(m.Metric[0][0][0]), 1e-12)

	sc, err := c.Score(ctx, [][]float64{{0, 0}}, []float64{0}, "")
	require.NoError(t, err)
	assert.Equal(t, "log", sc.Score)
	require.Len(t, sc.Grad, 1)
	assert.InDelta(t, 0.0, float64(sc.Grad[0][0]), 1e-12)
	assert.InDelta(t, 1.0, float64(sc.Grad[0][1]), 1e-12)
}

func TestClient_SampleAndFit(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	seed := uint64(42)
	a, err := c.Sample(ctx, [][]float64{{0, 0}}, 3, &seed)
	require.NoError(t, err)
	b, err := c.Sample(ctx, [][]float64{{0, 0}}, 3, &seed)
	require.NoError(t, err)
	require.Len(t, a, 3)
	assert.Equal(t, a, b)

	fit, err := c.Fit(ctx, []float64{-1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, float64(fit.Loc), 1e-12)
	assert.InDelta(t, 1.0, float64(fit.Scale), 1e-12)

	got, err := c.GetFit(ctx, fit.ID)
	require.NoError(t, err)
	assert.Equal(t, fit.ID, got.ID)

	list, err := c.ListFits(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClient_HTTPError(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.GetFit(ctx, "missing")
	require.Error(t, err)
	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)
	assert.Equal(t, "fit not found", herr.Message)

	_, err = c.Metric(ctx, [][]float64{{0, 0}}, "brier")
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusBadRequest, herr.StatusCode)
}

func TestClient_RetriesOnlyGet(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"store unavailable"}`))
	}))
	defer ts.Close()
	c := NewClient(ts.URL)
	ctx := context.Background()

	_, err := c.Fit(ctx, []float64{1, 2})
	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusServiceUnavailable, herr.StatusCode)
	assert.Equal(t, int32(1), hits.Load())

	hits.Store(0)
	_, err = c.ListFits(ctx, 0)
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())
}
