package store

import (
	"context"
	"testing"
	"time"

	"github.com/evharlow/astrid/internal/database"
	"github.com/evharlow/astrid/internal/model"
)

func setupAttemptTestDB(t *testing.T) *LoginAttemptStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewLoginAttemptStore(db)
}

func recordAttempt(t *testing.T, s *LoginAttemptStore, emailEnc, ipEnc, outcome string) {
	t.Helper()
	_, err := s.Record(context.Background(), RecordAttemptParams{
		EmailEncrypted: emailEnc,
		IPEncrypted:    ipEnc,
		Outcome:        outcome,
	})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
}

func TestRecordAttemptValidation(t *testing.T) {
	s := setupAttemptTestDB(t)

	if _, err := s.Record(context.Background(), RecordAttemptParams{IPEncrypted: "ip", Outcome: model.AttemptSuccess}); err == nil {
		t.Error("expected error for missing email and user id")
	}
	if _, err := s.Record(context.Background(), RecordAttemptParams{EmailEncrypted: "e"}); err == nil {
		t.Error("expected error for missing outcome")
	}

	// A post-authentication attempt carries only the user id.
	userID := "user-1"
	if _, err := s.Record(context.Background(), RecordAttemptParams{
		UserID:      &userID,
		IPEncrypted: "ip",
		Outcome:     model.AttemptFailed2FA,
	}); err != nil {
		t.Errorf("user-only attempt should record: %v", err)
	}
}

func TestCountFailedPasswordByIP(t *testing.T) {
	s := setupAttemptTestDB(t)
	since := time.Now().UTC().Add(-time.Hour)

	recordAttempt(t, s, "enc-a", "enc-ip", model.AttemptFailedPassword)
	recordAttempt(t, s, "enc-a", "enc-ip", model.AttemptFailedPassword)
	recordAttempt(t, s, "enc-a", "enc-ip", model.AttemptFailed2FA) // not counted
	recordAttempt(t, s, "enc-a", "enc-ip", model.AttemptSuccess)   // not counted
	recordAttempt(t, s, "enc-a", "enc-other", model.AttemptFailedPassword)

	count, err := s.CountFailedPasswordByIP(context.Background(), "enc-ip", since)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestCountDistinctTargetsByIP(t *testing.T) {
	s := setupAttemptTestDB(t)
	since := time.Now().UTC().Add(-time.Hour)

	recordAttempt(t, s, "enc-a", "enc-ip", model.AttemptFailedPassword)
	recordAttempt(t, s, "enc-a", "enc-ip", model.AttemptFailedPassword)
	recordAttempt(t, s, "enc-b", "enc-ip", model.AttemptSuccess)
	recordAttempt(t, s, "enc-c", "enc-other", model.AttemptFailedPassword)

	count, err := s.CountDistinctTargetsByIP(context.Background(), "enc-ip", since)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("distinct targets = %d, want 2", count)
	}
}

func TestCountRespectsWindow(t *testing.T) {
	s := setupAttemptTestDB(t)

	recordAttempt(t, s, "enc-a", "enc-ip", model.AttemptFailedPassword)

	count, err := s.CountFailedPasswordByIP(context.Background(), "enc-ip", time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 for a window starting in the future", count)
	}
}

func TestListRecentByUser(t *testing.T) {
	s := setupAttemptTestDB(t)
	uid := "user-1"

	_, err := s.Record(context.Background(), RecordAttemptParams{
		UserID:         &uid,
		EmailEncrypted: "enc-a",
		IPEncrypted:    "enc-ip",
		Outcome:        model.AttemptSuccess,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	attempts, err := s.ListRecentByUser(context.Background(), uid, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}
	if attempts[0].Outcome != model.AttemptSuccess {
		t.Errorf("outcome = %q", attempts[0].Outcome)
	}
}
