package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/evharlow/astrid/internal/model"
)

// ProfileStore holds per-user personal info. The email and name columns are
// gateway-encrypted; this store never sees plaintext.
type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

type UpsertProfileParams struct {
	UserID             string
	EmailEncrypted     *string
	FirstNameEncrypted *string
	LastNameEncrypted  *string
}

func (s *ProfileStore) Upsert(ctx context.Context, p UpsertProfileParams) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, email_encrypted, first_name_encrypted, last_name_encrypted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			email_encrypted = excluded.email_encrypted,
			first_name_encrypted = excluded.first_name_encrypted,
			last_name_encrypted = excluded.last_name_encrypted,
			updated_at = excluded.updated_at`,
		p.UserID, p.EmailEncrypted, p.FirstNameEncrypted, p.LastNameEncrypted, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// GetEncrypted returns the raw encrypted row; callers decrypt through the
// gateway.
func (s *ProfileStore) GetEncrypted(ctx context.Context, userID string) (*UpsertProfileParams, *model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, email_encrypted, first_name_encrypted, last_name_encrypted, created_at, updated_at
		 FROM user_profiles WHERE user_id = ?`,
		userID,
	)

	var enc UpsertProfileParams
	var meta model.Profile
	var email, first, last sql.NullString
	err := row.Scan(&enc.UserID, &email, &first, &last, &meta.CreatedAt, &meta.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get profile: %w", err)
	}

	meta.UserID = enc.UserID
	if email.Valid {
		enc.EmailEncrypted = &email.String
	}
	if first.Valid {
		enc.FirstNameEncrypted = &first.String
	}
	if last.Valid {
		enc.LastNameEncrypted = &last.String
	}
	return &enc, &meta, nil
}

func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
