package handler

import (
	"github.com/authvault/authvault/internal/config"
	"github.com/authvault/authvault/internal/database"
	"github.com/authvault/authvault/internal/logger"
	"github.com/authvault/authvault/internal/service"
)

// Handler holds all HTTP handlers
type Handler struct {
	db      *database.Postgres
	rdb     *database.Redis
	log     *logger.Logger
	cfg     *config.Config
	authSvc *service.AuthService
}

// New creates a new Handler instance
func New(db *database.Postgres, rdb *database.Redis, log *logger.Logger, cfg *config.Config, authSvc *service.AuthService) *Handler {
	return &Handler{
		db:      db,
		rdb:     rdb,
		log:     log,
		cfg:     cfg,
		authSvc: authSvc,
	}
}
