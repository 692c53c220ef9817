package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/authvault/authvault/internal/database"
	"github.com/authvault/authvault/internal/model"
)

// AuditRepository handles the append-only audit trail.
type AuditRepository struct {
	db *database.Postgres
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *database.Postgres) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit log entry. Entries are never updated or deleted.
func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		detailJSON = []byte("{}")
	}

	query := `
		INSERT INTO audit_logs (id, account_id, action, ip_address, user_agent, success, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Action,
		entry.IPAddress,
		entry.UserAgent,
		entry.Success,
		detailJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListByAccount returns the account's audit entries, most recent first.
func (r *AuditRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, account_id, action, ip_address, user_agent, success, detail, created_at
		FROM audit_logs
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditLog
	for rows.Next() {
		var entry model.AuditLog
		var detailJSON []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Action,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.Success,
			&detailJSON,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(detailJSON) > 0 {
			json.Unmarshal(detailJSON, &entry.Detail)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
