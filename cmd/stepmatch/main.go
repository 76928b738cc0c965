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

	"github.com/kailas-cloud/stepmatch/internal/clustering"
	"github.com/kailas-cloud/stepmatch/internal/config"
	"github.com/kailas-cloud/stepmatch/internal/db"
	dbRedis "github.com/kailas-cloud/stepmatch/internal/db/redis"
	"github.com/kailas-cloud/stepmatch/internal/domain"
	logpkg "github.com/kailas-cloud/stepmatch/internal/logger"
	"github.com/kailas-cloud/stepmatch/internal/metrics"
	"github.com/kailas-cloud/stepmatch/internal/nlp"
	"github.com/kailas-cloud/stepmatch/internal/normalizer"
	"github.com/kailas-cloud/stepmatch/internal/repository/embcache"
	retrievalrepo "github.com/kailas-cloud/stepmatch/internal/repository/retrieval"
	stepsrepo "github.com/kailas-cloud/stepmatch/internal/repository/steps"
	chiTransport "github.com/kailas-cloud/stepmatch/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/stepmatch/internal/transport/openai"
	rerankTransport "github.com/kailas-cloud/stepmatch/internal/transport/rerank"
	fallbackuc "github.com/kailas-cloud/stepmatch/internal/usecase/fallback"
	ingestuc "github.com/kailas-cloud/stepmatch/internal/usecase/ingest"
	matchuc "github.com/kailas-cloud/stepmatch/internal/usecase/match"
	"github.com/kailas-cloud/stepmatch/internal/version"
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

	logger.Info("Starting stepmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	embedder, embChecker := buildEmbedder(cfg, store, logger)
	norm := buildNormalizer(cfg)

	stepsRepo := stepsrepo.New(store)
	if err := stepsRepo.EnsureIndex(ctx, cfg.Embedding.Dimensions, cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct); err != nil {
		logger.Fatal("Failed to ensure step index", zap.Error(err))
	}
	retrRepo := retrievalrepo.New(store)

	var reranker matchuc.Reranker
	if cfg.Rerank.Enabled {
		reranker = rerankTransport.New(&rerankTransport.Config{
			BaseURL: cfg.Rerank.BaseURL,
			APIKey:  cfg.Rerank.APIKey,
			Model:   cfg.Rerank.Model,
			Timeout: time.Duration(cfg.Rerank.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		logger.Info("Reranker enabled", zap.String("base_url", cfg.Rerank.BaseURL))
	}

	fallbackChain := fallbackuc.New(norm, embedder, retrRepo, reranker, fallbackuc.Options{
		RelaxedLimit:           cfg.Retrieval.RelaxedLimit,
		EFRelaxed:              cfg.Retrieval.EFRelaxed,
		RerankTopK:             cfg.Rerank.TopK,
		MedConfThreshold:       cfg.Matching.MedConfThreshold,
		LowConfThreshold:       cfg.Matching.LowConfThreshold,
		WeakClusterMinMembers:  cfg.Fallbacks.WeakClusterMinMembers,
		EnableContextExpansion: cfg.Fallbacks.EnableContextExpansion,
		EnableLexicalSearch:    cfg.Fallbacks.EnableLexicalSearch,
		EnableRuleSynthesis:    cfg.Fallbacks.EnableRuleSynthesis,
		EnableLLMSynthesis:     cfg.Fallbacks.EnableLLMSynthesis,
	}, logger)

	matchSvc := matchuc.New(norm, embedder, retrRepo, reranker, stepsRepo, fallbackChain, matchuc.Options{
		TopKResults:       cfg.Matching.TopKResults,
		PrefilterLimit:    cfg.Retrieval.PrefilterLimit,
		EFSearch:          cfg.Retrieval.EFSearch,
		RerankEnabled:     cfg.Rerank.Enabled,
		RerankTopK:        cfg.Rerank.TopK,
		MinScoreThreshold: cfg.Matching.MinScoreThreshold,
		VectorThreshold:   cfg.Matching.VectorThreshold,
		Decision: matchuc.DecisionConfig{
			Disabled:               cfg.DynamicRerank.Disabled,
			TargetTopK:             cfg.DynamicRerank.TargetTopK,
			MinPercentileRank:      cfg.DynamicRerank.MinPercentileRank,
			PercentileGapThreshold: cfg.DynamicRerank.PercentileGapThreshold,
			ClusterSeparation:      cfg.DynamicRerank.ClusterSeparation,
			TopPercentile:          cfg.DynamicRerank.TopPercentile,
			TopKMinPercentile:      cfg.DynamicRerank.TopKMinPercentile,
		},
	}, logger)

	clusterer := clustering.New(clustering.Config{
		DistanceThreshold: cfg.Clustering.Threshold,
		MinClusterSize:    cfg.Clustering.MinClusterSize,
	})
	ingestSvc := ingestuc.New(stepsRepo, embedder, norm, clusterer, cfg.Embedding.BatchSize, logger)

	server := chiTransport.NewServer(matchSvc, ingestSvc, store, embChecker, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Mount("/", server.Routes(cfg.Auth.APIKeys))

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

	logger.Info("Server stopped gracefully")
}

// stepmatchEmbedder is the embedder contract both matching and ingestion need.
type stepmatchEmbedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached. The base
// provider doubles as the health probe for /health.
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) (stepmatchEmbedder, domain.HealthChecker) {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		User:       cfg.Embedding.User,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	return embcache.New(base, store, metrics.EmbeddingCacheTotal, logger), base
}

// buildNormalizer selects the syntax tagger when configured.
func buildNormalizer(cfg config.Config) *normalizer.Normalizer {
	var tagger nlp.Tagger
	if cfg.Normalization.UseSyntaxTagger {
		tagger = nlp.NewProseTagger()
	}
	return normalizer.New(normalizer.Config{
		Version:   cfg.Normalization.Version,
		Lemmatize: cfg.Normalization.Lemmatize,
		Tagger:    tagger,
	})
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
