package service

import (
	"context"
	"time"

	"github.com/authvault/authvault/internal/config"
	"github.com/authvault/authvault/internal/logger"
)

// LedgerPruner deletes expired and stale revoked refresh-token rows.
// Implemented by repository.RefreshTokenRepository.
type LedgerPruner interface {
	DeleteExpired(ctx context.Context, revokedRetention time.Duration) (int64, error)
}

// Janitor periodically prunes the refresh-token ledger. Pruning is cleanup
// only; token validity never depends on it.
type Janitor struct {
	pruner LedgerPruner
	cfg    config.JanitorConfig
	log    *logger.Logger
}

// NewJanitor creates a new Janitor
func NewJanitor(pruner LedgerPruner, cfg config.JanitorConfig, log *logger.Logger) *Janitor {
	return &Janitor{
		pruner: pruner,
		cfg:    cfg,
		log:    log.WithComponent("janitor"),
	}
}

// Run blocks, pruning on the configured interval until the context is
// cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("janitor stopped")
			return
		case <-ticker.C:
			j.prune(ctx)
		}
	}
}

func (j *Janitor) prune(ctx context.Context) {
	pruned, err := j.pruner.DeleteExpired(ctx, j.cfg.RevokedRetention)
	if err != nil {
		j.log.Error().Err(err).Msg("ledger prune failed")
		return
	}
	if pruned > 0 {
		j.log.Info().Int64("rows", pruned).Msg("pruned refresh-token ledger")
	}
}
