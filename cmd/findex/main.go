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

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/veltra/findex/internal/config"
	dbRedis "github.com/veltra/findex/internal/db/redis"
	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/index/meili"
	logpkg "github.com/veltra/findex/internal/logger"
	"github.com/veltra/findex/internal/metrics"
	"github.com/veltra/findex/internal/repository/catalog"
	"github.com/veltra/findex/internal/repository/embcache"
	"github.com/veltra/findex/internal/repository/session"
	chiTransport "github.com/veltra/findex/internal/transport/chi"
	openaiEmb "github.com/veltra/findex/internal/transport/openai"
	"github.com/veltra/findex/internal/transport/siglip"
	"github.com/veltra/findex/internal/usecase/health"
	"github.com/veltra/findex/internal/usecase/resolve"
	"github.com/veltra/findex/internal/usecase/vectorize"
	"github.com/veltra/findex/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting findex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_host", cfg.Index.Host),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterResolveMetrics()

	ctx := context.Background()

	// Catalog index
	idx, err := meili.NewClient(meili.Config{
		Host:   cfg.Index.Host,
		APIKey: cfg.Index.APIKey,
		Index:  cfg.Index.Name,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create index client", zap.Error(err))
	}
	defer idx.Close()

	if err := idx.WaitForReady(ctx, time.Duration(cfg.Index.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Index not ready", zap.Error(err))
	}
	logger.Info("Connected to search index", zap.String("index", cfg.Index.Name))

	// Session store: redis-backed when addrs are configured, in-process
	// otherwise (sessions then do not survive a restart).
	var (
		kvStore      *dbRedis.Store
		sessionStore resolve.SessionStore
		sessionHTTP  chiTransport.Sessions
		sessionPing  health.Pinger
	)
	if len(cfg.Session.Addrs) > 0 {
		kvStore, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Session.Addrs,
			Password: cfg.Session.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create session store", zap.Error(err))
		}
		defer kvStore.Close()

		if err := kvStore.WaitForReady(ctx, time.Duration(cfg.Session.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Session store not ready", zap.Error(err))
		}

		st := session.New(kvStore, cfg.Session.KeyPrefix, logger)
		sessionStore, sessionHTTP, sessionPing = st, st, st
		logger.Info("Connected to session store", zap.Strings("addrs", cfg.Session.Addrs))
	} else {
		st := session.NewMemory()
		sessionStore, sessionHTTP, sessionPing = st, st, st
		logger.Warn("No session store configured, using in-process memory")
	}

	// Embedders
	textEmbedder := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.Text.APIKey,
		BaseURL:    cfg.Embedding.Text.BaseURL,
		Model:      cfg.Embedding.Text.Model,
		Dimensions: cfg.Embedding.Text.Dimensions,
		Logger:     logger,
	})

	var queryEmbedder domain.Embedder = textEmbedder
	if cfg.Embedding.CacheEnabled && kvStore != nil {
		queryEmbedder = embcache.New(textEmbedder, kvStore, cfg.Session.KeyPrefix, metrics.EmbeddingCacheTotal, logger)
		logger.Info("Embedding cache enabled")
	}

	var visualEmbedder domain.ImageEmbedder
	if cfg.Embedding.Image.BaseURL != "" {
		visualEmbedder = siglip.NewEmbedder(&siglip.Config{
			BaseURL:    cfg.Embedding.Image.BaseURL,
			APIKey:     cfg.Embedding.Image.APIKey,
			Dimensions: cfg.Embedding.Image.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.Image.TimeoutSec) * time.Second,
			Logger:     logger,
		})
	} else {
		logger.Warn("No visual embedder configured, resolving with the text space only")
	}

	// Engine
	vectorizer := vectorize.New(queryEmbedder, visualEmbedder, logger)
	retriever := catalog.New(idx, cfg.Search.SemanticRatio, metrics.RetrievalErrorsTotal, logger)
	hooks := resolve.Hooks{
		OnStageStart: func(ctx context.Context, stage resolve.Stage) {
			logpkg.FromContext(ctx).Debug("Stage started", zap.String("stage", string(stage)))
		},
	}
	resolver := resolve.New(vectorizer, retriever, sessionStore, resolve.Config{
		TopK:       cfg.Search.TopK,
		MinScore:   cfg.Search.MinScore,
		RelaxOrder: cfg.Search.RelaxOrder,
	}, hooks, logger)

	healthSvc := health.New()
	healthSvc.AddPinger("index", idx)
	healthSvc.AddPinger("sessions", sessionPing)
	healthSvc.AddHealthChecker("text_embedder", textEmbedder)
	if hc, ok := visualEmbedder.(domain.HealthChecker); ok {
		healthSvc.AddHealthChecker("visual_embedder", hc)
	}

	server := chiTransport.NewServer(resolver, sessionHTTP, healthSvc, cfg.Auth.APIKeys, logger)

	handler := jsonRecoverer(logger)(
		chiMiddleware.RequestID(
			wideEventMiddleware(logger)(server.Router())))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
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

			requestID := chiMiddleware.GetReqID(r.Context())
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
