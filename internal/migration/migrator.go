// Package migration moves a guest's data onto the permanent account created
// when the guest signs up with a real email. The data copy is a single
// transaction; retiring the guest record at the identity directory happens
// after commit and is best-effort.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/evharlow/astrid/internal/crypto"
	"github.com/evharlow/astrid/internal/model"
	"github.com/evharlow/astrid/internal/store"
)

// directory is the slice of the identity client the migrator needs.
type directory interface {
	DeleteUser(ctx context.Context, userID string) error
}

type Migrator struct {
	db        *sql.DB
	gateway   *crypto.Gateway
	pending   *store.PendingMigrationStore
	directory directory
	logger    *slog.Logger

	// afterCopy runs inside the transaction, after the data copy and before
	// commit. Tests use it to force a rollback.
	afterCopy func() error
}

func NewMigrator(db *sql.DB, gateway *crypto.Gateway, pending *store.PendingMigrationStore, dir directory, logger *slog.Logger) *Migrator {
	return &Migrator{
		db:        db,
		gateway:   gateway,
		pending:   pending,
		directory: dir,
		logger:    logger,
	}
}

// RegisterIntent records that a guest intends to become the account owned by
// email. The email is stored deterministically encrypted so Run can find it
// later without ever persisting plaintext.
func (m *Migrator) RegisterIntent(ctx context.Context, guestUserID, email string) error {
	encEmail, err := m.gateway.EncryptDeterministic(email)
	if err != nil {
		return fmt.Errorf("encrypt destination email: %w", err)
	}
	return m.pending.RegisterIntent(ctx, guestUserID, encEmail)
}

// Run migrates the guest whose pending intent matches email onto newUserID.
// No matching open intent is a successful no-op. Concurrent runs for the same
// email are safe: the conditional claim inside the transaction lets exactly
// one of them through.
func (m *Migrator) Run(ctx context.Context, newUserID, email string) (*model.MigrationResult, error) {
	encEmail, err := m.gateway.EncryptDeterministic(email)
	if err != nil {
		return nil, fmt.Errorf("encrypt destination email: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	var guestUserID string
	err = tx.QueryRowContext(ctx,
		`SELECT guest_user_id FROM pending_migrations WHERE email_encrypted = ? AND migrated = 0`,
		encEmail,
	).Scan(&guestUserID)
	if err == sql.ErrNoRows {
		return &model.MigrationResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending migration: %w", err)
	}

	// Claim the intent. If another run got here first, RowsAffected is zero
	// and we back off as a no-op.
	res, err := tx.ExecContext(ctx,
		`UPDATE pending_migrations SET migrated = 1, migrated_at = ? WHERE guest_user_id = ? AND migrated = 0`,
		time.Now().UTC(), guestUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending migration: %w", err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim pending migration: %w", err)
	}
	if claimed == 0 {
		return &model.MigrationResult{}, nil
	}

	result := &model.MigrationResult{GuestUserID: guestUserID}

	// Copy messages in original order, then read back the ids the copy
	// produced using a pre-copy watermark.
	var watermark int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM messages`).Scan(&watermark); err != nil {
		return nil, fmt.Errorf("read message watermark: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (user_id, role, content, created_at)
		 SELECT ?, role, content, created_at FROM messages
		 WHERE user_id = ? ORDER BY created_at ASC, id ASC`,
		newUserID, guestUserID,
	); err != nil {
		return nil, fmt.Errorf("copy messages: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM messages WHERE user_id = ? AND id > ? ORDER BY id ASC`,
		newUserID, watermark,
	)
	if err != nil {
		return nil, fmt.Errorf("read copied message ids: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan copied message id: %w", err)
		}
		result.NewMessageIDs = append(result.NewMessageIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read copied message ids: %w", err)
	}
	result.MigratedCount = len(result.NewMessageIDs)

	// Carry the guest's profile over unless the new account already has one.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, email_encrypted, first_name_encrypted, last_name_encrypted, created_at, updated_at)
		 SELECT ?, email_encrypted, first_name_encrypted, last_name_encrypted, created_at, ?
		 FROM user_profiles WHERE user_id = ?
		 ON CONFLICT (user_id) DO NOTHING`,
		newUserID, time.Now().UTC(), guestUserID,
	); err != nil {
		return nil, fmt.Errorf("copy profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, guestUserID); err != nil {
		return nil, fmt.Errorf("delete guest messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = ?`, guestUserID); err != nil {
		return nil, fmt.Errorf("delete guest profile: %w", err)
	}

	if m.afterCopy != nil {
		if err := m.afterCopy(); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit migration: %w", err)
	}

	// Retire the guest at the directory. The local migration is committed;
	// a failure here is logged and reported in the result, never raised.
	if err := m.directory.DeleteUser(ctx, guestUserID); err != nil {
		m.logger.Error("directory cleanup failed after migration",
			"guest_user_id", guestUserID,
			"error", err)
	} else {
		result.IdentityProviderDeleted = true
	}

	m.logger.Info("guest migration complete",
		"guest_user_id", guestUserID,
		"new_user_id", newUserID,
		"migrated_count", result.MigratedCount,
		"directory_deleted", result.IdentityProviderDeleted)

	return result, nil
}
