package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docvault/api/internal/app"
	"docvault/api/internal/audit"
	"docvault/api/internal/authz"
	"docvault/api/internal/config"
	"docvault/api/internal/index"
	"docvault/api/internal/indexing"
	"docvault/api/internal/logger"
	"docvault/api/internal/metrics"
	"docvault/api/internal/outbox"
	"docvault/api/internal/search"
	"docvault/api/internal/store"
	"docvault/api/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	zlog, err := logger.New(cfg.Env, os.Getenv("DOCVAULT_LOG_LEVEL"))
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zlog.Sync()

	metrics.Register()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		zlog.Fatal("migrations failed", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)
	dataStore.SetEventMaxRetries(cfg.OutboxMaxRetries)
	resolver := tenant.Resolver{DefaultTenantID: cfg.DefaultTenantID}

	var client index.Client
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := index.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, zlog)
		defer meiliClient.Close()
		client = meiliClient
		zlog.Info("using meilisearch index", zap.String("url", cfg.MeiliURL))
	} else {
		client = index.NewMemory()
		zlog.Warn("no MEILI_URL configured, using in-memory index")
	}

	var cache *search.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err = search.NewCache(cfg.RedisURL, cfg.CacheTTL, zlog)
		if err != nil {
			zlog.Fatal("redis connection failed", zap.Error(err))
		}
		defer cache.Close()
	} else {
		zlog.Warn("no REDIS_URL configured, search cache disabled")
	}

	indexer := indexing.NewService(dataStore, dataStore, client, resolver, zlog.Named("indexing"))
	router := search.NewRouter(dataStore)
	authorizer := authz.NewGroupAuthorizer(dataStore, resolver)
	auditor := audit.NewZapLogger(zlog.Named("audit"), resolver)

	searchService := search.NewService(router, dataStore, authorizer, auditor, cache, resolver, search.Options{
		KeywordWeight: cfg.KeywordWeight,
		VectorWeight:  cfg.VectorWeight,
		MaxCandidates: cfg.MaxCandidates,
	}, zlog)

	driftService := indexing.NewDriftService(dataStore, client, indexer, searchService, zlog.Named("drift"))
	rebuildService := indexing.NewRebuildService(dataStore, indexer, resolver)

	processor := outbox.NewProcessor(dataStore, dataStore, indexer, outbox.Options{
		Interval:   cfg.OutboxPollInterval,
		BackoffCap: cfg.OutboxBackoffCap,
	}, zlog.Named("outbox"))
	procCtx, stopProcessor := context.WithCancel(ctx)
	defer stopProcessor()
	go processor.Run(procCtx)

	service := app.NewService(searchService, driftService, rebuildService, dataStore, resolver, db.PingContext)
	httpServer := app.NewHTTPServer(service, []byte(cfg.TokenSecret), zlog.Named("http"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", httpServer.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zlog.Info("docvault API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stopProcessor()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown error", zap.Error(err))
	}
}
