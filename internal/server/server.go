package server

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ngdist/internal/store"
	"github.com/betbot/ngdist/pkg/distns"
	"github.com/betbot/ngdist/pkg/logger"
	"github.com/betbot/ngdist/pkg/ratelimit"
)

type Config struct {
	Store        store.Store
	DefaultScore string // 请求未指定评分规则时使用
	Seed         uint64 // 0 表示采样不固定种子
	RateLimit    int    // 采样/拟合接口每秒请求数，0 表示不限制
}

type Server struct {
	cfg    Config
	normal *distns.Normal

	sampleSeq atomic.Uint64
}

func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.DefaultScore == "" {
		cfg.DefaultScore = distns.LogScoreName
	}
	normal := distns.NewNormal(nil, nil)
	if _, err := distns.ScorerFor(normal, cfg.DefaultScore); err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, normal: normal}, nil
}

func (s *Server) Close() error {
	return s.cfg.Store.Close()
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/distributions", s.handleDistributions)

	normal := api.Group("/normal")
	normal.POST("/user", s.handleParamsToUser)
	normal.POST("/internal", s.handleParamsToInternal)
	normal.POST("/cdf", s.handleCDF)
	normal.POST("/metric", s.handleMetric)
	normal.POST("/score", s.handleScore)
	heavy := limitRate(s.cfg.RateLimit)
	normal.POST("/sample", heavy, s.handleSample)
	normal.POST("/fit", heavy, s.handleFit)

	fits := api.Group("/fits")
	fits.GET("", s.handleFitsList)
	fits.GET("/:fitID", s.handleFitGet)

	return r
}

// randSource 请求未指定种子时：配置了种子则按请求序号派生，否则返回 nil（全局随机源）
func (s *Server) randSource(seed *uint64) rand.Source {
	if seed != nil {
		return rand.NewPCG(*seed, *seed)
	}
	if s.cfg.Seed != 0 {
		return rand.NewPCG(s.cfg.Seed, s.sampleSeq.Add(1))
	}
	return nil
}

// limitRate 令牌桶限流，容量为每秒速率（允许一秒的突发）
func limitRate(perSecond int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	tb := ratelimit.NewTokenBucket(perSecond, float64(perSecond))
	return func(c *gin.Context) {
		if !tb.Allow() {
			writeError(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("http request")
	}
}
