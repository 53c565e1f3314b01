package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TwoFactorStore struct {
	db *sql.DB
}

func NewTwoFactorStore(db *sql.DB) *TwoFactorStore {
	return &TwoFactorStore{db: db}
}

// SaveSecret stores (or replaces) a user's encrypted TOTP secret, unconfirmed.
func (s *TwoFactorStore) SaveSecret(ctx context.Context, userID, secretEncrypted string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO two_factor_secrets (user_id, secret_encrypted, confirmed, created_at)
		 VALUES (?, ?, 0, ?)
		 ON CONFLICT (user_id) DO UPDATE SET secret_encrypted = excluded.secret_encrypted, confirmed = 0`,
		userID, secretEncrypted, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save 2fa secret: %w", err)
	}
	return nil
}

// GetSecret returns the encrypted secret and its confirmed flag, or ("",
// false, nil) if the user is not enrolled.
func (s *TwoFactorStore) GetSecret(ctx context.Context, userID string) (string, bool, error) {
	var secret string
	var confirmed int
	err := s.db.QueryRowContext(ctx,
		`SELECT secret_encrypted, confirmed FROM two_factor_secrets WHERE user_id = ?`,
		userID,
	).Scan(&secret, &confirmed)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get 2fa secret: %w", err)
	}
	return secret, confirmed != 0, nil
}

func (s *TwoFactorStore) Confirm(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE two_factor_secrets SET confirmed = 1 WHERE user_id = ?`, userID,
	)
	if err != nil {
		return fmt.Errorf("confirm 2fa: %w", err)
	}
	return nil
}

// ReplaceRecoveryCodes deletes the user's existing codes and stores new hashes.
func (s *TwoFactorStore) ReplaceRecoveryCodes(ctx context.Context, userID string, codeHashes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recovery_codes WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear recovery codes: %w", err)
	}
	now := time.Now().UTC()
	for _, hash := range codeHashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recovery_codes (id, user_id, code_hash, created_at) VALUES (?, ?, ?, ?)`,
			uuid.NewString(), userID, hash, now,
		); err != nil {
			return fmt.Errorf("insert recovery code: %w", err)
		}
	}
	return tx.Commit()
}

// UnusedCodeHashes returns (id, hash) pairs for the user's unused codes.
func (s *TwoFactorStore) UnusedCodeHashes(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code_hash FROM recovery_codes WHERE user_id = ? AND used_at IS NULL`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list recovery codes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan recovery code: %w", err)
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}

// MarkCodeUsed consumes a recovery code. Returns false if it was already
// used (lost race).
func (s *TwoFactorStore) MarkCodeUsed(ctx context.Context, codeID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE recovery_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		time.Now().UTC(), codeID,
	)
	if err != nil {
		return false, fmt.Errorf("mark code used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
