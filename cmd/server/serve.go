package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"media-tracker/internal/auth"
	"media-tracker/internal/config"
	"media-tracker/internal/events"
	"media-tracker/internal/handler"
	"media-tracker/internal/repository"
	"media-tracker/internal/service"
	"media-tracker/internal/tmdb"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func newTMDBClient(cfg *config.Config, log *zap.Logger) *tmdb.Client {
	if cfg.TMDB.APIKey == "" {
		log.Warn("TMDB_API_KEY not set, catalog calls will fail")
	}
	opts := []tmdb.Option{
		tmdb.WithHTTPClient(&http.Client{Timeout: cfg.TMDBTimeout()}),
		tmdb.WithLanguage(cfg.TMDB.Language),
		tmdb.WithLogger(log),
	}
	if cfg.TMDB.BaseURL != "" {
		opts = append(opts, tmdb.WithBaseURL(cfg.TMDB.BaseURL))
	}
	if b := cfg.TMDB.Breaker; b.Enabled {
		opts = append(opts, tmdb.WithCircuitBreaker(tmdb.NewCircuitBreaker(tmdb.BreakerConfig{
			MaxRequests:      b.MaxRequests,
			Interval:         time.Duration(b.IntervalSeconds) * time.Second,
			Timeout:          time.Duration(b.TimeoutSeconds) * time.Second,
			FailureThreshold: b.FailureThreshold,
		}, log)))
	}
	return tmdb.NewClient(cfg.TMDB.APIKey, opts...)
}

func serve(parent context.Context, cfg *config.Config, log *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	publisher, err := events.New(cfg.NATS.URL, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// Repositories
	entityRepo := repository.NewEntityRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	listRepo := repository.NewListRepository(db)
	userRepo := repository.NewUserRepository(db)

	tmdbClient := newTMDBClient(cfg, log)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.TokenTTL())

	// Services
	lists := service.NewListService(listRepo, publisher, log)
	members := service.NewMembershipService(tmdbClient, entityRepo, membershipRepo, listRepo, publisher, log)
	accounts := service.NewAccountService(userRepo, issuer, log)

	if cfg.Backup.Dir != "" && db.Dialect() == repository.DialectSQLite {
		scheduler := service.NewScheduler(service.NewBackupService(db, cfg.Backup.Dir, cfg.Backup.Keep, log), log)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	handler.NewHTTPHandler(accounts, lists, members, tmdbClient, issuer, log).RegisterRoutes(engine)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("media tracker listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("database", db.Dialect().String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
