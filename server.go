package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/activity-check/internal/auth"
	"github.com/example/activity-check/internal/config"
	"github.com/example/activity-check/internal/credentials"
	"github.com/example/activity-check/internal/fetcher"
	"github.com/example/activity-check/internal/handlers"
	"github.com/example/activity-check/internal/logging"
	"github.com/example/activity-check/internal/metrics"
	"github.com/example/activity-check/internal/usecase"
	"github.com/example/activity-check/internal/visionclient"
)

func runServe(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	src, err := credentials.Resolve(cfg.Vision)
	if err != nil {
		logger.Fatal("failed to resolve vision credentials", zap.Error(err))
	}
	logger.Info("vision credentials resolved", zap.String("source", src.Describe()))

	m, err := metrics.New()
	if err != nil {
		logger.Fatal("failed to initialise metrics", zap.Error(err))
	}

	visionClient, err := visionclient.Dial(ctx, src, visionclient.Options{
		MaxResults: cfg.Vision.MaxResults,
		Timeout:    cfg.Vision.Timeout,
		OnStateChange: func(_, to gobreaker.State) {
			m.SetBreakerState(int(to))
		},
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to vision service", zap.Error(err))
	}
	defer visionClient.Close()

	imageFetcher := fetcher.New(fetcher.Config{
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.Fetch.UserAgent,
		MaxBytes:  cfg.Fetch.MaxBytes,
	}, logger)

	opts := []usecase.Option{usecase.WithMetrics(m)}
	if cfg.Redis.Addr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		cache := initRedis(redisCtx, cfg.Redis.Addr, logger)
		redisCancel()
		defer cache.Close()
		opts = append(opts, usecase.WithCache(cache, cfg.Redis.TTL))
	}
	uc := usecase.NewAnalysisUseCase(imageFetcher, visionClient, logger, opts...)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(logger)

	var authMiddleware gin.HandlerFunc
	if auth.Enabled(cfg.Auth.JWTSecret) {
		authMiddleware = auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)
		logger.Info("bearer token auth enabled for /analyze")
	}
	handlers.RegisterRoutes(router, uc, authMiddleware, m.Handler())

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("activity-check API listening", zap.String("addr", cfg.Server.Addr))
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// initRedis connects the label cache. An unreachable server is logged and left
// to reconnect lazily; lookups fall through to label detection meanwhile.
func initRedis(ctx context.Context, addr string, logger *zap.Logger) *usecase.RedisCache {
	cache := usecase.NewRedisCache(redis.NewClient(&redis.Options{Addr: addr}))
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("redis ping failed, label cache degraded", zap.String("addr", addr), zap.Error(err))
	} else {
		logger.Info("label cache enabled", zap.String("addr", addr))
	}
	return cache
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
