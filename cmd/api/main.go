package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/forkful/loyalty-api/internal/config"
	"github.com/forkful/loyalty-api/internal/domain/account"
	"github.com/forkful/loyalty-api/internal/domain/ledger"
	"github.com/forkful/loyalty-api/internal/domain/points"
	"github.com/forkful/loyalty-api/internal/domain/referral"
	"github.com/forkful/loyalty-api/internal/domain/reward"
	"github.com/forkful/loyalty-api/internal/middleware"
	"github.com/forkful/loyalty-api/internal/pkg/archive"
	"github.com/forkful/loyalty-api/internal/pkg/database"
	"github.com/forkful/loyalty-api/internal/pkg/jwt"
	"github.com/forkful/loyalty-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Forkful loyalty API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, caching disabled")
		redis = nil
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	catalog := reward.DefaultCatalog()
	if cfg.RewardCatalogPath != "" {
		catalog, err = reward.LoadCatalog(cfg.RewardCatalogPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.RewardCatalogPath).Msg("Failed to load reward catalog")
		}
	}

	var slots reward.SlotStore = reward.NewMemorySlots()
	if redis != nil {
		slots = reward.NewRedisSlots(redis, cfg.AppliedRewardTTL)
	}

	seed := cfg.ReferralCodeSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	codeGen := referral.NewGenerator(rand.NewSource(seed))

	// ---------- Services ----------
	ledgerStore := ledger.NewPostgresStore(db, redis)
	pointsEngine := points.NewEngine(ledgerStore)
	rewardService := reward.NewService(catalog, ledgerStore, slots)
	referralRepo := referral.NewPostgresRepository(db, ledgerStore)
	referralService := referral.NewService(referralRepo, codeGen)

	var exporter account.Exporter
	if cfg.ExportBucket != "" {
		s3Exporter, err := archive.NewExporter(archive.Config{
			Region:          cfg.ExportRegion,
			Bucket:          cfg.ExportBucket,
			AccessKeyID:     cfg.ExportAccessKeyID,
			AccessKeySecret: cfg.ExportAccessKeySecret,
			Endpoint:        cfg.ExportEndpoint,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create ledger exporter")
		}
		exporter = s3Exporter
	}

	accountService := account.NewService(ledgerStore, pointsEngine, rewardService, referralService, exporter)
	accountHandler := account.NewHandler(accountService, cfg.ServiceToken)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/loyalty", accountHandler.Routes(authMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
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

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}
