package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/evharlow/astrid/internal/model"
)

// ErrEmailClaimed means another guest already has an open migration intent
// for the same destination email.
var ErrEmailClaimed = errors.New("destination email already claimed by a pending migration")

type PendingMigrationStore struct {
	db *sql.DB
}

func NewPendingMigrationStore(db *sql.DB) *PendingMigrationStore {
	return &PendingMigrationStore{db: db}
}

// RegisterIntent upserts the guest's migration intent. Re-registering the
// same guest overwrites the destination email and re-opens the intent.
func (s *PendingMigrationStore) RegisterIntent(ctx context.Context, guestUserID, emailEncrypted string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_migrations (guest_user_id, email_encrypted, migrated)
		 VALUES (?, ?, 0)
		 ON CONFLICT (guest_user_id) DO UPDATE SET email_encrypted = excluded.email_encrypted, migrated = 0, migrated_at = NULL`,
		guestUserID, emailEncrypted,
	)
	if err != nil {
		// The partial unique index on (email_encrypted) WHERE migrated = 0
		// enforces at most one open intent per destination email.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrEmailClaimed
		}
		return fmt.Errorf("register migration intent: %w", err)
	}
	return nil
}

// GetByGuestID returns the guest's migration record, or nil if none exists.
func (s *PendingMigrationStore) GetByGuestID(ctx context.Context, guestUserID string) (*model.PendingMigration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT guest_user_id, migrated, migrated_at, created_at
		 FROM pending_migrations WHERE guest_user_id = ?`,
		guestUserID,
	)

	var pm model.PendingMigration
	var migrated int
	var migratedAt sql.NullTime
	err := row.Scan(&pm.GuestUserID, &migrated, &migratedAt, &pm.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending migration: %w", err)
	}

	pm.Migrated = migrated != 0
	if migratedAt.Valid {
		pm.MigratedAt = &migratedAt.Time
	}
	return &pm, nil
}
