package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/config"
	"github.com/authvault/authvault/internal/database"
	"github.com/authvault/authvault/internal/handler"
	"github.com/authvault/authvault/internal/logger"
	"github.com/authvault/authvault/internal/middleware"
	"github.com/authvault/authvault/internal/repository"
	"github.com/authvault/authvault/internal/router"
	"github.com/authvault/authvault/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", "0.1.0").Msg("starting AuthVault server")

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Connect to Redis
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("connected to Redis")

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize crypto primitives
	hasher := auth.NewHasher(cfg.Security.Password)

	codec, err := auth.NewTokenCodec(cfg.Security.Tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token codec")
	}

	captcha := auth.NewCaptchaClient(cfg.Captcha)

	// Initialize services
	authSvc := service.NewAuthService(accountRepo, tokenRepo, auditRepo, captcha, hasher, codec, cfg, log)

	// Background ledger cleanup
	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	defer janitorCancel()
	janitor := service.NewJanitor(tokenRepo, cfg.Janitor, log)
	go janitor.Run(janitorCtx)

	// Initialize handlers and middleware
	h := handler.New(db, rdb, log, cfg, authSvc)
	mw := middleware.New(rdb, codec, log, cfg)

	// Set up router
	r := router.New(h, mw, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	janitorCancel()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
