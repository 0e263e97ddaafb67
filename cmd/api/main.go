package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gymhub/api/internal/cache"
	"gymhub/api/internal/config"
	"gymhub/api/internal/database"
	"gymhub/api/internal/handlers"
	"gymhub/api/internal/jobs"
	"gymhub/api/internal/log"
	"gymhub/api/internal/metrics"
	"gymhub/api/internal/queue"
	"gymhub/api/internal/repository"
	"gymhub/api/internal/security"
	"gymhub/api/internal/server"
	"gymhub/api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)
	if cfg.Security.EphemeralSecret {
		logger.Warn().Msg("no jwt secret configured, using an ephemeral development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, dbPool := openStore(ctx, cfg, logger)
	if dbPool != nil {
		defer dbPool.Close()
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		logger.Warn().Err(err).Msg("redis unavailable, running without replay guard and notifications")
		redisClient = nil
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("redis close error")
			}
		}()
	}

	hasher, err := security.NewPasswordHasher(security.PBKDF2Params{
		Iterations: cfg.Hashing.Iterations,
		KeyLen:     cfg.Hashing.KeyLength,
		SaltLen:    cfg.Hashing.SaltLength,
		Digest:     cfg.Hashing.Digest,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid hashing config")
	}
	tokens, err := security.NewTokenIssuer(cfg.Security)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid token config")
	}

	m := metrics.New()

	var notifier service.Notifier
	mfaOpts := []service.MFAOption{service.WithMFAMetrics(m)}
	if redisClient != nil {
		mfaOpts = append(mfaOpts, service.WithReplayGuard(cache.NewReplayGuard(redisClient, "gymhub:mfa")))
		if cfg.Notifications.Enabled {
			notifier = queue.NewPublisher(redisClient, cfg.Notifications.Stream)
			mfaOpts = append(mfaOpts, service.WithMFANotifier(notifier))
		}
	}

	mfaService := service.NewMFAService(store, cfg.MFA, logger, mfaOpts...)
	authService := service.NewAuthService(store, hasher, tokens, mfaService, notifier, m, cfg.Security, logger)
	provisioning := service.NewProvisioningService(store, hasher, notifier, m, logger)

	bootstrapSuperAdmin(ctx, cfg.Bootstrap, provisioning, logger)

	deps := handlers.Deps{
		Log:          logger,
		Config:       cfg,
		Tokens:       tokens,
		Users:        store.Users(),
		Auth:         authService,
		MFA:          mfaService,
		Provisioning: provisioning,
		Cache:        redisClient,
	}
	if dbPool != nil {
		deps.DB = dbPool
	}
	httpServer := server.NewHTTPServer(cfg, logger, m, handlers.NewHandlerSet(deps))

	scheduler := jobs.NewScheduler(store.Sessions(), cfg.Jobs.SessionCleanup, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler start failed")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		scheduler.Stop()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return
	}
	logger.Info().Msg("server exited cleanly")
}

func openStore(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (repository.Store, *pgxpool.Pool) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		return repository.NewMemoryStore(repository.DefaultPlans()...), nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	return repository.NewPGStore(pool), pool
}

func bootstrapSuperAdmin(ctx context.Context, cfg config.BootstrapConfig, provisioning *service.ProvisioningService, logger zerolog.Logger) {
	if cfg.SuperAdminEmail == "" {
		return
	}
	name := cfg.SuperAdminName
	if name == "" {
		name = "Platform Admin"
	}

	_, err := provisioning.BootstrapSuperAdmin(ctx, cfg.SuperAdminEmail, name, cfg.SuperAdminPassword)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrEmailTaken):
		logger.Debug().Msg("bootstrap super admin already exists")
	default:
		logger.Fatal().Err(err).Msg("bootstrap super admin failed")
	}
}
