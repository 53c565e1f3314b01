package database

import (
	"database/sql"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenRunsMigrations(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{
		"settings", "sessions", "login_attempts", "user_consents",
		"pending_migrations", "messages", "user_profiles",
		"two_factor_secrets", "recovery_codes",
	} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

// Timestamp columns must materialize as time.Time when scanned, both for
// values bound from Go and for the schema's datetime('now') defaults.
func TestTimestampColumnsScanAsTime(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	_, err := db.Exec(
		`INSERT INTO sessions (user_id, token_digest, expires_at, created_at, last_activity_at)
		 VALUES ('user-1', 'digest-1', ?, ?, ?)`,
		now.Add(15*time.Minute), now, now,
	)
	if err != nil {
		t.Fatalf("insert session: %v", err)
	}

	var created, lastActivity, expires time.Time
	var loggedOut sql.NullTime
	err = db.QueryRow(
		`SELECT created_at, last_activity_at, expires_at, logged_out_at
		 FROM sessions WHERE token_digest = 'digest-1'`,
	).Scan(&created, &lastActivity, &expires, &loggedOut)
	if err != nil {
		t.Fatalf("scan bound timestamps: %v", err)
	}
	if !created.Equal(now) {
		t.Errorf("created_at = %v, want %v", created, now)
	}
	if !expires.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("expires_at = %v, want %v", expires, now.Add(15*time.Minute))
	}
	if loggedOut.Valid {
		t.Error("logged_out_at should be NULL")
	}

	// Default-valued column, written by sqlite itself.
	if _, err := db.Exec(`INSERT INTO settings (key, value) VALUES ('k', 'v')`); err != nil {
		t.Fatalf("insert setting: %v", err)
	}
	var updated time.Time
	if err := db.QueryRow(`SELECT updated_at FROM settings WHERE key = 'k'`).Scan(&updated); err != nil {
		t.Fatalf("scan default timestamp: %v", err)
	}
	if updated.IsZero() {
		t.Error("updated_at default is zero")
	}
}
