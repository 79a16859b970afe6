package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/ngdist/internal/server"
	"github.com/betbot/ngdist/internal/store"
	"github.com/betbot/ngdist/pkg/config"
	"github.com/betbot/ngdist/pkg/logger"
	"github.com/betbot/ngdist/pkg/shutdown"
)

func main() {
	// .env 可选；缺失时直接使用真实环境变量
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("NGDIST_CONFIG"), "config file (yaml/json)")
		listenAddr = flag.String("listen", "", "HTTP listen address (overrides config)")
	)
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		logger.Errorf("open store failed: %v", err)
		os.Exit(1)
	}

	srv, err := server.New(server.Config{
		Store:        st,
		DefaultScore: cfg.Score,
		Seed:         cfg.Sampling.Seed,
		RateLimit:    cfg.Server.RateLimit,
	})
	if err != nil {
		_ = st.Close()
		logger.Errorf("init server failed: %v", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sm := shutdown.NewManager()
	sm.OnShutdown("store", func(context.Context) error { return srv.Close() })
	sm.OnShutdown("http", httpSrv.Shutdown)

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Infof("ngdist listening on %s (store=%s score=%s)", cfg.Server.Listen, cfg.Store.Driver, cfg.Score)
	serveErr := serve(httpSrv, stopCh)
	if serveErr != nil {
		logger.Errorf("http server error: %v", serveErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sm.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}

	logger.Info("server stopped")
	if serveErr != nil {
		os.Exit(1)
	}
}

// serve 阻塞直到收到信号（返回 nil）或监听失败（返回错误）
func serve(httpSrv *http.Server, stopCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-stopCh:
		logger.Infof("received %s, shutting down", sig)
		return nil
	}
}
