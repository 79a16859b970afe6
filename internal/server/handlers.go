package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/betbot/ngdist/internal/store"
	"github.com/betbot/ngdist/pkg/api"
	"github.com/betbot/ngdist/pkg/distns"
	"github.com/betbot/ngdist/pkg/logger"
)

// 单次采样请求的上限（m * n）
const maxSampleCells = 1_000_000

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, api.ErrorResponse{Error: msg})
}

// bindParams 解析 (n, 2) 内部参数
func (s *Server) bindParams(c *gin.Context, rows [][]api.Float) (*mat.Dense, bool) {
	internal, ok := api.Matrix(rows, s.normal.NumParams())
	if !ok {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("params must have %d columns", s.normal.NumParams()))
		return nil, false
	}
	return internal, true
}

// broadcastable 长度为 1 的数组可与任意长度对齐
func broadcastable(lens ...int) bool {
	n := 1
	for _, l := range lens {
		switch {
		case l == 0:
			return false
		case l == 1:
		case n == 1:
			n = l
		case l != n:
			return false
		}
	}
	return true
}

func (s *Server) scorer(c *gin.Context, name string) (distns.Scorer, bool) {
	if name == "" {
		name = s.cfg.DefaultScore
	}
	sc, err := distns.ScorerFor(s.normal, name)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return sc, true
}

func (s *Server) handleDistributions(c *gin.Context) {
	var out []api.DistributionInfo
	for _, name := range distns.Names() {
		d, err := distns.Lookup(name)
		if err != nil {
			continue
		}
		info := api.DistributionInfo{Name: name}
		for _, sc := range d.Scores() {
			info.Scores = append(info.Scores, sc.Name())
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleParamsToUser(c *gin.Context) {
	var req api.UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	internal, ok := s.bindParams(c, req.Params)
	if !ok {
		return
	}
	user := s.normal.ParamsToUser(internal)
	c.JSON(http.StatusOK, api.UserResponse{
		Loc:   api.Floats(user[distns.ParamLoc]),
		Scale: api.Floats(user[distns.ParamScale]),
	})
}

func (s *Server) handleParamsToInternal(c *gin.Context) {
	var req api.InternalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if !broadcastable(len(req.Loc), len(req.Scale)) {
		writeError(c, http.StatusBadRequest, "loc and scale lengths are not compatible")
		return
	}
	internal := s.normal.ParamsToInternal(api.Float64s(req.Loc), api.Float64s(req.Scale))
	c.JSON(http.StatusOK, api.InternalResponse{Params: api.Rows(internal)})
}

func (s *Server) handleCDF(c *gin.Context) {
	var req api.CDFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if !broadcastable(len(req.Y), len(req.Loc), len(req.Scale)) {
		writeError(c, http.StatusBadRequest, "y, loc and scale lengths are not compatible")
		return
	}
	cdf := s.normal.CDF(api.Float64s(req.Y), api.Float64s(req.Loc), api.Float64s(req.Scale))
	c.JSON(http.StatusOK, api.CDFResponse{CDF: api.Floats(cdf)})
}

func (s *Server) handleMetric(c *gin.Context) {
	var req api.MetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	internal, ok := s.bindParams(c, req.Params)
	if !ok {
		return
	}
	sc, ok := s.scorer(c, req.Score)
	if !ok {
		return
	}
	metric := sc.Metric(internal)
	out := make([][][]api.Float, len(metric))
	for i, m := range metric {
		out[i] = api.Rows(m)
	}
	c.JSON(http.StatusOK, api.MetricResponse{Score: sc.Name(), Metric: out})
}

func (s *Server) handleScore(c *gin.Context) {
	var req api.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	internal, ok := s.bindParams(c, req.Params)
	if !ok {
		return
	}
	if n, _ := internal.Dims(); !broadcastable(n, len(req.Y)) {
		writeError(c, http.StatusBadRequest, "params and y lengths are not compatible")
		return
	}
	sc, ok := s.scorer(c, req.Score)
	if !ok {
		return
	}
	y := api.Float64s(req.Y)
	ng, err := distns.NaturalGradient(sc, internal, y)
	if err != nil {
		writeError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	c.JSON(http.StatusOK, api.ScoreResponse{
		Score:       sc.Name(),
		Values:      api.Floats(sc.Score(internal, y)),
		Grad:        api.Rows(sc.DScore(internal, y)),
		NaturalGrad: api.Rows(ng),
	})
}

func (s *Server) handleSample(c *gin.Context) {
	var req api.SampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	internal, ok := s.bindParams(c, req.Params)
	if !ok {
		return
	}
	n, _ := internal.Dims()
	if req.M <= 0 || n == 0 || req.M > maxSampleCells/n {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("m must be positive and m*n <= %d", maxSampleCells))
		return
	}
	samples := distns.NewNormal(internal, s.randSource(req.Seed)).Sample(req.M)
	c.JSON(http.StatusOK, api.SampleResponse{Samples: api.Rows(samples)})
}

func (s *Server) handleFit(c *gin.Context) {
	var req api.FitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.Y) == 0 {
		writeError(c, http.StatusBadRequest, "y is required")
		return
	}
	params := s.normal.Fit(api.Float64s(req.Y))
	for _, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			writeError(c, http.StatusBadRequest, "degenerate sample: fitted parameters are not finite")
			return
		}
	}
	user := s.normal.ParamsToUser(mat.NewDense(1, len(params), params))
	rec := store.FitRecord{
		ID:           uuid.NewString(),
		Distribution: s.normal.Name(),
		Params:       params,
		Loc:          user[distns.ParamLoc][0],
		Scale:        user[distns.ParamScale][0],
		N:            len(req.Y),
		CreatedAt:    time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := s.cfg.Store.Save(ctx, rec); err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("store save: %v", err))
		return
	}
	logger.WithFields(logrus.Fields{
		"fit_id": rec.ID,
		"n":      rec.N,
		"loc":    rec.Loc,
		"scale":  rec.Scale,
	}).Info("fitted base distribution")
	c.JSON(http.StatusCreated, toAPIFit(rec))
}

func (s *Server) handleFitsList(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	recs, err := s.cfg.Store.List(ctx, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("store list: %v", err))
		return
	}
	out := make([]api.Fit, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toAPIFit(rec))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleFitGet(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	rec, err := s.cfg.Store.Get(ctx, c.Param("fitID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, "fit not found")
			return
		}
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("store get: %v", err))
		return
	}
	c.JSON(http.StatusOK, toAPIFit(*rec))
}

func toAPIFit(rec store.FitRecord) api.Fit {
	return api.Fit{
		ID:           rec.ID,
		Distribution: rec.Distribution,
		Params:       api.Floats(rec.Params),
		Loc:          api.Float(rec.Loc),
		Scale:        api.Float(rec.Scale),
		N:            rec.N,
		CreatedAt:    rec.CreatedAt,
	}
}
