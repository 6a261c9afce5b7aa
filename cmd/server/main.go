package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"

	"github.com/polyagent/sim-engine/internal/analysis"
	"github.com/polyagent/sim-engine/internal/config"
	"github.com/polyagent/sim-engine/internal/markets"
	"github.com/polyagent/sim-engine/internal/metrics"
	"github.com/polyagent/sim-engine/internal/portfolio"
	"github.com/polyagent/sim-engine/internal/sim"
	"github.com/polyagent/sim-engine/internal/store"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Store ---
	var st store.Store
	var cleanup []func()

	if cfg.Storage.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg, err := store.NewPostgresStore(ctx, pool)
		if err != nil {
			slog.Error("database setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	} else {
		sq, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			slog.Error("sqlite setup failed", "path", cfg.Storage.SQLitePath, "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() { sq.Close() })
		st = sq
		slog.Info("using SQLite store", "path", cfg.Storage.SQLitePath)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Portfolio engine ---
	engine := portfolio.NewEngine(st, cfg.Portfolio.InitialBalance.Decimal)
	if err := engine.Init(ctx); err != nil {
		slog.Error("portfolio init failed", "err", err)
		os.Exit(1)
	}

	// --- Market data ---
	var provider markets.Provider = markets.NewClient(cfg.Markets.GammaBase, logger)
	if cfg.Markets.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Markets.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		provider = markets.NewCachedProvider(provider, rdb, cfg.CacheTTL())
		slog.Info("market cache enabled", "ttl", cfg.CacheTTL())
	}

	// --- AI analysis ---
	var analyzer analysis.Analyzer
	if cfg.Analysis.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.Analysis.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			slog.Error("gemini client failed", "err", err)
			os.Exit(1)
		}
		analyzer = analysis.NewGeminiAnalyzer(client, cfg.Analysis.Model, logger)
		slog.Info("AI analysis enabled", "model", cfg.Analysis.Model)
	} else {
		slog.Warn("GEMINI_API_KEY not set, analysis endpoint disabled")
	}

	svc := sim.NewService(engine, provider, analyzer, st, logger)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.RequestTimeout()))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", svc.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/markets", svc.ListMarkets)
	r.Get("/markets/search", svc.SearchMarkets)
	r.Get("/markets/top", svc.TopOpportunities)

	r.Post("/analyze", svc.Analyze)
	r.Get("/analysis-history", svc.AnalysisHistory)
	r.Delete("/analysis-history", svc.ClearAnalyses)
	r.Delete("/analysis-history/{analysisID}", svc.DeleteAnalysis)

	r.Post("/simulate-trade", svc.SimulateTrade)
	r.Post("/calculate-return", svc.CalculateReturn)
	r.Get("/portfolio", svc.GetPortfolio)
	r.Post("/reset-portfolio", svc.ResetPortfolio)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("polyagent-sim listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	slog.Info("shutting down polyagent-sim...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("polyagent-sim stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
