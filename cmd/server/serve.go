package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"jukwaa/internal/config"
	"jukwaa/internal/db"
	"jukwaa/internal/middleware"
	"jukwaa/internal/router"
	"jukwaa/internal/services"
	"jukwaa/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func openStore(cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Storage {
	case "memory":
		logger.Warn("using in-memory storage, data is lost on restart", "event", "storage_memory", "module", "main")
		return store.NewMemory(), nil
	case "postgres":
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(conn); err != nil {
			return nil, err
		}
		return store.NewGorm(conn, logger), nil
	}
	return nil, fmt.Errorf("unknown STORAGE %q (want postgres or memory)", cfg.Storage)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	cache, err := services.NewTreeCache(cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return err
	}

	dispatcher := services.NewDispatcher([]services.EventSink{
		services.NewLogSink(logger),
		services.NewNotificationSink(st),
	}, cfg.NotifyQueueSize, cfg.NotifyTimeout, logger)
	dispatcher.Start()

	// 初始化异步排名服务
	rankCtx, stopRanking := context.WithCancel(context.Background())
	ranking := services.NewRankingService(st, 1000, logger)
	ranking.Start(rankCtx)
	ranking.StartPeriodicRefresh(rankCtx, cfg.HotRefreshInterval)

	deps := services.Deps{Store: st, Events: dispatcher, Ranking: ranking, Cache: cache, Logger: logger}
	svc := router.Services{
		Content:    services.NewContentService(deps, services.ContentConfig{MaxDepth: cfg.CommentMaxDepth, DepthPolicy: cfg.CommentDepthPolicy}),
		Votes:      services.NewVoteLedger(deps),
		Polls:      services.NewPollEngine(deps),
		Reports:    services.NewReportAggregator(deps),
		Moderation: services.NewModerationEngine(deps, services.NewStoreAccountSink(st), services.ModerationConfig{AccountTimeout: cfg.NotifyTimeout}),
	}

	limiter, err := middleware.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst, 10000, 10*time.Minute)
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.New(svc, router.Options{
		SessionSecret: cfg.SessionSecret,
		Debug:         !cfg.IsProduction(),
		Logger:        logger,
		Limiter:       limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "event", "server_start", "module", "main", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stopRanking()
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down", "event", "server_shutdown", "module", "main")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "event", "server_shutdown_failed", "module", "main", "error", err.Error())
	}

	// 停止排名服务前先把队列里的更新处理完
	stopRanking()
	select {
	case <-ranking.Done():
	case <-shutdownCtx.Done():
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("event queue not drained", "event", "dispatcher_close_timeout", "module", "main", "error", err.Error())
	}
	return nil
}
