package middleware

import (
	"github.com/authvault/authvault/internal/auth"
	"github.com/authvault/authvault/internal/config"
	"github.com/authvault/authvault/internal/database"
	"github.com/authvault/authvault/internal/logger"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	rdb   *database.Redis
	codec *auth.TokenCodec
	log   *logger.Logger
	cfg   *config.Config
}

// New creates a new Middleware instance
func New(rdb *database.Redis, codec *auth.TokenCodec, log *logger.Logger, cfg *config.Config) *Middleware {
	return &Middleware{
		rdb:   rdb,
		codec: codec,
		log:   log,
		cfg:   cfg,
	}
}
