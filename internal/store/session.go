package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/evharlow/astrid/internal/model"
)

const (
	// DefaultSessionWindow is the inactivity window; validation slides expiry
	// forward by this much.
	DefaultSessionWindow = 15 * time.Minute

	// DefaultMaxSessions caps concurrent active sessions per user.
	DefaultMaxSessions = 5
)

type SessionStore struct {
	db          *sql.DB
	window      time.Duration
	maxSessions int
}

func NewSessionStore(db *sql.DB, window time.Duration, maxSessions int) *SessionStore {
	if window <= 0 {
		window = DefaultSessionWindow
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &SessionStore{db: db, window: window, maxSessions: maxSessions}
}

// Window returns the configured inactivity window.
func (s *SessionStore) Window() time.Duration { return s.window }

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var sess model.Session
	var deviceName, browser, osName sql.NullString
	var loggedOut sql.NullTime
	var twofa int

	err := scanner.Scan(
		&sess.ID, &sess.UserID, &deviceName, &sess.DeviceType, &browser, &osName,
		&sess.Status, &twofa, &sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt, &loggedOut,
	)
	if err != nil {
		return nil, err
	}

	sess.TwoFAVerified = twofa != 0
	if deviceName.Valid {
		sess.DeviceName = &deviceName.String
	}
	if browser.Valid {
		sess.BrowserName = &browser.String
	}
	if osName.Valid {
		sess.OSName = &osName.String
	}
	if loggedOut.Valid {
		sess.LoggedOutAt = &loggedOut.Time
	}
	return &sess, nil
}

const sessionCols = `id, user_id, device_name_encrypted, device_type, browser_name, os_name, status, twofa_verified, created_at, last_activity_at, expires_at, logged_out_at`

// generateToken returns a 32-byte crypto-random credential, hex-encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DigestToken returns the one-way digest under which a credential is stored.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type CreateSessionParams struct {
	UserID              string
	DeviceType          string
	BrowserName         *string
	OSName              *string
	DeviceNameEncrypted *string
	IPEncrypted         *string
	UserAgentEncrypted  *string
}

// Create issues a new session. Only the credential digest is persisted; the
// plaintext token is returned once on the session and never stored. Sessions
// beyond the per-user cap are evicted oldest-by-last-activity.
func (s *SessionStore) Create(ctx context.Context, p CreateSessionParams) (*model.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.window)
	deviceType := p.DeviceType
	if deviceType == "" {
		deviceType = "unknown"
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (
			user_id, token_digest, device_name_encrypted, device_type, browser_name, os_name,
			ip_encrypted, user_agent_encrypted, status, created_at, last_activity_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, ?)`,
		p.UserID, DigestToken(token), p.DeviceNameEncrypted, deviceType, p.BrowserName, p.OSName,
		p.IPEncrypted, p.UserAgentEncrypted, now, now, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := s.evictBeyondCap(ctx, p.UserID, now); err != nil {
		return nil, err
	}

	sess, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Token = token
	return sess, nil
}

// evictBeyondCap revokes the least-recently-active sessions past the cap.
func (s *SessionStore) evictBeyondCap(ctx context.Context, userID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'revoked', logged_out_at = ?
		 WHERE id IN (
			SELECT id FROM sessions
			WHERE user_id = ? AND status = 'active'
			ORDER BY last_activity_at DESC, id DESC
			LIMIT -1 OFFSET ?
		 )`,
		now, userID, s.maxSessions,
	)
	if err != nil {
		return fmt.Errorf("evict sessions: %w", err)
	}
	return nil
}

// Validate resolves a plaintext credential to its session. It returns
// (nil, nil) for anything invalid: unknown digest, non-active status, or an
// expired session, which is flipped to 'expired' on the spot. On success the
// sliding expiry is extended to now + window.
func (s *SessionStore) Validate(ctx context.Context, token string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE token_digest = ?`,
		DigestToken(token),
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by digest: %w", err)
	}

	if sess.Status != model.SessionActive {
		return nil, nil
	}

	now := time.Now().UTC()
	if now.After(sess.ExpiresAt) {
		// Lazy expiry: flip on read instead of running a sweeper.
		if _, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET status = 'expired' WHERE id = ? AND status = 'active'`,
			sess.ID,
		); err != nil {
			return nil, fmt.Errorf("expire session: %w", err)
		}
		return nil, nil
	}

	newExpiry := now.Add(s.window)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = ?, expires_at = ? WHERE id = ?`,
		now, newExpiry, sess.ID,
	); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	sess.LastActivityAt = now
	sess.ExpiresAt = newExpiry
	return sess, nil
}

// Revoke flips one of the user's sessions to 'revoked'. Revoking a session
// that is already revoked or expired is a no-op success.
func (s *SessionStore) Revoke(ctx context.Context, sessionID int64, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'revoked', logged_out_at = ?
		 WHERE id = ? AND user_id = ? AND status = 'active'`,
		time.Now().UTC(), sessionID, userID,
	)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAll revokes every active session the user has and returns the count.
func (s *SessionStore) RevokeAll(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'revoked', logged_out_at = ?
		 WHERE user_id = ? AND status = 'active'`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

// ListActive returns the user's active, unexpired sessions, most recent first.
func (s *SessionStore) ListActive(ctx context.Context, userID string) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionCols+` FROM sessions
		 WHERE user_id = ? AND status = 'active' AND expires_at > ?
		 ORDER BY last_activity_at DESC`,
		userID, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// MarkTwoFAVerified records a successful second-factor check on the session.
func (s *SessionStore) MarkTwoFAVerified(ctx context.Context, sessionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET twofa_verified = 1 WHERE id = ? AND status = 'active'`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark 2fa verified: %w", err)
	}
	return nil
}

func (s *SessionStore) getByID(ctx context.Context, id int64) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}
