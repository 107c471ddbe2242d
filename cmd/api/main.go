package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/pointly/pointly-api/internal/config"
	"github.com/pointly/pointly-api/internal/domain/impression"
	"github.com/pointly/pointly-api/internal/domain/ledger"
	"github.com/pointly/pointly-api/internal/domain/postback"
	"github.com/pointly/pointly-api/internal/middleware"
	"github.com/pointly/pointly-api/internal/pkg/database"
	"github.com/pointly/pointly-api/internal/pkg/jwt"
	"github.com/pointly/pointly-api/internal/pkg/logger"
	pkgresponse "github.com/pointly/pointly-api/internal/pkg/response"
)

// app holds the wired dependencies the router needs.
type app struct {
	cfg   *config.Config
	db    *sqlx.DB
	redis *redis.Client
	jwt   *jwt.Service

	postbacks   *postback.Handler
	ledger      *ledger.Handler
	impressions *impression.Handler
}

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Pointly API")

	db, err := database.NewPostgres(cfg.DatabaseURL, database.DefaultPoolConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		// The lock is an optimisation; the ledger's unique key still holds.
		log.Error().Err(err).Msg("Failed to connect to Redis, postback locks disabled")
		redisClient = nil
	}
	defer database.CloseRedis(redisClient)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Repositories ----------
	ledgerRepo := ledger.NewRepository(db)
	impressionRepo := impression.NewRepository(db)

	// ---------- Postbacks ----------
	providers := postback.DefaultProviders(cfg.Postback)
	for _, p := range providers {
		ev := log.Info().
			Str("provider", p.Name).
			Str("auth", string(p.Auth)).
			Str("enforcement", string(p.Enforcement)).
			Bool("ip_allowlist", !p.AllowedIPs.Empty())
		if p.FixedPoints > 0 {
			ev = ev.Int64("fixed_points", p.FixedPoints)
		}
		if p.Secret == "" && p.Auth != postback.AuthNone {
			ev = ev.Bool("secret_missing", true)
		}
		ev.Msg("Postback provider configured")
	}
	engine := postback.NewEngine(ledgerRepo, postback.NewLocker(redisClient, cfg.Postback.LockTTL))

	a := &app{
		cfg:         cfg,
		db:          db,
		redis:       redisClient,
		jwt:         jwtService,
		postbacks:   postback.NewHandler(engine, providers, cfg.BackendURL),
		ledger:      ledger.NewHandler(ledger.NewService(ledgerRepo)),
		impressions: impression.NewHandler(impression.NewService(impressionRepo)),
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// In-flight postback commits finish before the pool closes.
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func newRouter(a *app) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.TrustedRealIP(a.cfg.TrustedProxies))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(a.cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		deps := database.Check(r.Context(), a.db, a.redis)
		if deps["postgres"] == "down" {
			pkgresponse.JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "degraded",
				"deps":   deps,
			})
			return
		}
		pkgresponse.OK(w, map[string]interface{}{
			"status": "ok",
			"deps":   deps,
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	// ---------- Provider postbacks ----------
	r.Mount("/callback", a.postbacks.Routes())
	r.Mount("/api/postback", a.postbacks.Routes())
	a.postbacks.RegisterLegacy(r)

	authMiddleware := middleware.Auth(a.jwt)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/me", a.ledger.Routes(authMiddleware))
		r.Mount("/ads/impressions", a.impressions.Routes(authMiddleware))
	})

	r.Mount("/api/admin", a.ledger.AdminRoutes(authMiddleware))

	return r
}
