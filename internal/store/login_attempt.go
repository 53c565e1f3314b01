package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evharlow/astrid/internal/model"
)

// LoginAttemptStore records authentication attempts. Rows are append-only;
// nothing here updates or deletes them.
type LoginAttemptStore struct {
	db *sql.DB
}

func NewLoginAttemptStore(db *sql.DB) *LoginAttemptStore {
	return &LoginAttemptStore{db: db}
}

type RecordAttemptParams struct {
	UserID *string
	// EmailEncrypted and IPEncrypted must come from the gateway's
	// deterministic mode so the detector can aggregate by them.
	// EmailEncrypted may be empty on post-authentication attempts (2FA),
	// where only the user id is known.
	EmailEncrypted string
	IPEncrypted    string
	UserAgent      *string
	Outcome        string
	Reason         *string
}

func (s *LoginAttemptStore) Record(ctx context.Context, p RecordAttemptParams) (*model.LoginAttempt, error) {
	if p.Outcome == "" {
		return nil, fmt.Errorf("record attempt: outcome is required")
	}
	if p.EmailEncrypted == "" && p.UserID == nil {
		return nil, fmt.Errorf("record attempt: email or user id is required")
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempts (id, user_id, email_encrypted, ip_encrypted, user_agent, outcome, reason, created_at)
		 VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)`,
		id, p.UserID, p.EmailEncrypted, p.IPEncrypted, p.UserAgent, p.Outcome, p.Reason, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert login attempt: %w", err)
	}

	return &model.LoginAttempt{
		ID:        id,
		UserID:    p.UserID,
		Outcome:   p.Outcome,
		Reason:    p.Reason,
		UserAgent: p.UserAgent,
		CreatedAt: now,
	}, nil
}

// CountFailedPasswordByIP counts failed_password attempts from one IP since
// the given time.
func (s *LoginAttemptStore) CountFailedPasswordByIP(ctx context.Context, ipEncrypted string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts
		 WHERE ip_encrypted = ? AND outcome = 'failed_password' AND created_at > ?`,
		ipEncrypted, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed attempts: %w", err)
	}
	return count, nil
}

// CountDistinctTargetsByIP counts how many different accounts were attempted
// from one IP since the given time, keyed by the deterministic email
// ciphertext.
func (s *LoginAttemptStore) CountDistinctTargetsByIP(ctx context.Context, ipEncrypted string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT email_encrypted) FROM login_attempts
		 WHERE ip_encrypted = ? AND created_at > ?`,
		ipEncrypted, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count distinct targets: %w", err)
	}
	return count, nil
}

// ListRecentByUser returns a user's recent attempts, newest first. Encrypted
// columns are intentionally not returned.
func (s *LoginAttemptStore) ListRecentByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*model.LoginAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, outcome, reason, user_agent, created_at
		 FROM login_attempts
		 WHERE user_id = ? AND created_at > ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.LoginAttempt
	for rows.Next() {
		var a model.LoginAttempt
		var uid, reason, agent sql.NullString
		if err := rows.Scan(&a.ID, &uid, &a.Outcome, &reason, &agent, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if uid.Valid {
			a.UserID = &uid.String
		}
		if reason.Valid {
			a.Reason = &reason.String
		}
		if agent.Valid {
			a.UserAgent = &agent.String
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
