// judge-server runs the sandboxed code-judging HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"judged/internal/judge/sandbox/engine"
	"judged/internal/judge/sandbox/runner"
	"judged/internal/judge/service"
	"judged/internal/judge/spj"
	"judged/internal/judge/testcase"
	"judged/internal/server"
	"judged/internal/storage"
	"judged/pkg/utils/logger"
)

const (
	defaultConfigPath = "configs/judge_server.yaml"
	version           = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	for _, dir := range []string{appCfg.Judge.WorkRoot, appCfg.Judge.SpjDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			logger.Error(context.Background(), "create work dir failed", zap.String("dir", dir), zap.Error(err))
			return
		}
	}

	eng, err := engine.NewEngine(appCfg.Sandbox.toEngineConfig())
	if err != nil {
		logger.Error(context.Background(), "init sandbox engine failed", zap.Error(err))
		return
	}
	jobRunner := runner.New(eng, appCfg.Judge.MaxOutputBytes)
	spjMgr := spj.NewManager(spj.NewRunner(jobRunner, eng), appCfg.Judge.SpjDir, appCfg.Judge.MaxSpjCached)

	repo, err := buildRepository(appCfg.TestCase)
	if err != nil {
		logger.Error(context.Background(), "init test case repository failed", zap.Error(err))
		return
	}

	judgeSvc := service.New(appCfg.Judge.toServiceConfig(), jobRunner, spjMgr, repo)

	httpServer := buildHTTPServer(appCfg.Server, judgeSvc)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

// buildRepository prefers the object-storage pack repository when
// MinIO is configured, falling back to a plain local directory.
func buildRepository(cfg TestCaseConfig) (testcase.Repository, error) {
	if cfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		cacheDir := cfg.CacheDir
		if cacheDir == "" {
			cacheDir = cfg.Dir
		}
		return testcase.NewPackRepository(cacheDir, cfg.MinIO.Bucket, objStorage, cfg.CacheTTL, cfg.CacheEntries, cfg.CacheMaxBytes)
	}
	if cfg.Dir != "" {
		return testcase.NewLocalRepository(cfg.Dir)
	}
	return nil, nil
}

func buildHTTPServer(cfg ServerConfig, judgeSvc *service.Service) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(server.RequestID())
	router.Use(server.RequestLogger())
	router.Use(server.Auth(cfg.Token))

	handler := server.NewHandler(judgeSvc, version)
	handler.Register(router)

	return &http.Server{
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
