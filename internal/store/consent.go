package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/evharlow/astrid/internal/model"
)

type ConsentStore struct {
	db *sql.DB
}

func NewConsentStore(db *sql.DB) *ConsentStore {
	return &ConsentStore{db: db}
}

// consentColumns maps consent types to their table columns. Grant refuses
// anything not listed here.
var consentColumns = map[string]string{
	model.ConsentAstrology:      "consent_astrology",
	model.ConsentHealthWellness: "consent_health_wellness",
	model.ConsentChatAnalysis:   "consent_chat_analysis",
}

// ValidConsentType reports whether t names a consent column.
func ValidConsentType(t string) bool {
	_, ok := consentColumns[t]
	return ok
}

// Get returns the user's consent record, or nil if none exists.
func (s *ConsentStore) Get(ctx context.Context, userID string) (*model.Consent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, consent_astrology, consent_health_wellness, consent_chat_analysis, granted_at, updated_at
		 FROM user_consents WHERE user_id = ?`,
		userID,
	)

	var c model.Consent
	var astro, health, chat int
	var grantedAt sql.NullTime
	err := row.Scan(&c.UserID, &astro, &health, &chat, &grantedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get consent: %w", err)
	}

	c.Astrology = astro != 0
	c.HealthWellness = health != 0
	c.ChatAnalysis = chat != 0
	if grantedAt.Valid {
		c.GrantedAt = &grantedAt.Time
	}
	return &c, nil
}

// Set grants or withdraws one consent type, creating the row if needed.
func (s *ConsentStore) Set(ctx context.Context, userID, consentType string, granted bool) (*model.Consent, error) {
	col, ok := consentColumns[consentType]
	if !ok {
		return nil, fmt.Errorf("unknown consent type %q", consentType)
	}

	now := time.Now().UTC()
	val := 0
	if granted {
		val = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_consents (user_id, `+col+`, granted_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			`+col+` = excluded.`+col+`,
			granted_at = CASE WHEN excluded.`+col+` = 1 THEN excluded.granted_at ELSE user_consents.granted_at END,
			updated_at = excluded.updated_at`,
		userID, val, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("set consent: %w", err)
	}
	return s.Get(ctx, userID)
}
