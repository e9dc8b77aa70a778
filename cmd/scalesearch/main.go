package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/scale-search/scalesearch/internal/config"
	dbRedis "github.com/scale-search/scalesearch/internal/db/redis"
	"github.com/scale-search/scalesearch/internal/derive"
	logpkg "github.com/scale-search/scalesearch/internal/logger"
	"github.com/scale-search/scalesearch/internal/metrics"
	"github.com/scale-search/scalesearch/internal/queue"
	"github.com/scale-search/scalesearch/internal/repository/embcache"
	"github.com/scale-search/scalesearch/internal/repository/embedstore"
	"github.com/scale-search/scalesearch/internal/repository/pointindex"
	"github.com/scale-search/scalesearch/internal/repository/searchcache"
	"github.com/scale-search/scalesearch/internal/repository/taskstore"
	"github.com/scale-search/scalesearch/internal/storage"
	chiTransport "github.com/scale-search/scalesearch/internal/transport/chi"
	openaiEmb "github.com/scale-search/scalesearch/internal/transport/openai"
	healthuc "github.com/scale-search/scalesearch/internal/usecase/health"
	ingestuc "github.com/scale-search/scalesearch/internal/usecase/ingest"
	searchuc "github.com/scale-search/scalesearch/internal/usecase/search"
	"github.com/scale-search/scalesearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting scalesearch server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("storage_endpoint", cfg.Storage.Endpoint),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	// Object storage
	objects, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:      cfg.Storage.Bucket,
		UseSSL:      cfg.Storage.UseSSL,
		CallTimeout: time.Duration(cfg.Storage.CallTimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to create object store", zap.Error(err))
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		logger.Fatal("Failed to ensure bucket", zap.Error(err))
	}
	logger.Info("Connected to object storage", zap.String("bucket", cfg.Storage.Bucket))

	// Vector index
	points := pointindex.New(store, pointindex.Config{
		IndexName:       cfg.Index.Name,
		Dimensions:      cfg.Embedding.Dimensions,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
		FilterFields:    cfg.Index.FilterFields,
		CallTimeout:     time.Duration(cfg.Index.CallTimeoutSec) * time.Second,
	})
	if err := points.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}
	logger.Info("Vector index ready",
		zap.String("index", cfg.Index.Name),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Embedding provider
	provider := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions:  cfg.Embedding.Dimensions,
		Provider:    "openai",
		CallTimeout: time.Duration(cfg.Embedding.CallTimeoutSec) * time.Second,
		Logger:      logger,
	})
	// Content-hash cache in front of the provider: re-ingested bytes and
	// repeated non-text queries skip the API call.
	embedder := embcache.New(provider, store, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Repositories
	tasks := taskstore.New(store)
	embeddings := embedstore.New(store)
	cache := searchcache.New(store,
		time.Duration(cfg.Cache.TTLSec)*time.Second, metrics.SearchCacheTotal, logger).
		WithCallTimeout(time.Duration(cfg.Cache.CallTimeoutSec) * time.Second)

	fetcher := storage.NewFetcher(
		&http.Client{Timeout: time.Duration(cfg.Storage.FetchTimeoutSec) * time.Second},
		cfg.Storage.UploadTmpDir,
	)
	deriver := derive.New(derive.Config{
		ThumbnailMaxPx:   cfg.Derive.ThumbnailMaxPx,
		ThumbnailQuality: cfg.Derive.ThumbnailQuality,
		PreviewSeconds:   cfg.Derive.PreviewSeconds,
		GenerateTimeout:  time.Duration(cfg.Derive.GenerateTimeoutSec) * time.Second,
	})

	workQueue := queue.NewRedisQueue(store)

	// Use case services
	ingestSvc := ingestuc.New(
		tasks, embeddings, points, objects, fetcher, deriver, embedder, workQueue,
		ingestuc.Config{
			Dimensions:   cfg.Embedding.Dimensions,
			PresignTTL:   time.Duration(cfg.Storage.PresignTTLSec) * time.Second,
			IndexForward: cfg.Index.Forward,
		},
		logger,
	)
	searchSvc := searchuc.New(points, cache, embedder, fetcher,
		searchuc.Config{Dimensions: cfg.Embedding.Dimensions}, logger)
	healthSvc := healthuc.New(store, objects, provider)

	// Pipeline worker pools: one per stage group, so a slow embedding
	// provider cannot starve uploads.
	retry := queue.RetryPolicy{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BackoffBase: time.Duration(cfg.Pipeline.BackoffBaseSec) * time.Second,
	}
	uploadPool := queue.NewPool(workQueue, queue.QueueUploads,
		cfg.Pipeline.UploadWorkers, ingestSvc, retry, logger)
	embeddingPool := queue.NewPool(workQueue, queue.QueueEmbeddings,
		cfg.Pipeline.EmbeddingWorkers, ingestSvc, retry, logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	uploadPool.Start(workerCtx)
	embeddingPool.Start(workerCtx)
	logger.Info("Pipeline workers started",
		zap.Int("upload_workers", cfg.Pipeline.UploadWorkers),
		zap.Int("embedding_workers", cfg.Pipeline.EmbeddingWorkers),
	)

	// HTTP server
	server := chiTransport.NewServer(ingestSvc, searchSvc, healthSvc, cfg.Storage.UploadTmpDir, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	stopWorkers()
	uploadPool.Wait()
	embeddingPool.Wait()

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
