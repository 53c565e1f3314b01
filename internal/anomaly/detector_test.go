package anomaly

import (
	"context"
	"fmt"
	"testing"

	"github.com/evharlow/astrid/internal/database"
	"github.com/evharlow/astrid/internal/model"
	"github.com/evharlow/astrid/internal/store"
)

func setupDetector(t *testing.T) (*Detector, *store.LoginAttemptStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	attempts := store.NewLoginAttemptStore(db)
	return NewDetector(attempts, DefaultThresholds()), attempts
}

func record(t *testing.T, s *store.LoginAttemptStore, emailEnc, ipEnc, outcome string) {
	t.Helper()
	_, err := s.Record(context.Background(), store.RecordAttemptParams{
		EmailEncrypted: emailEnc,
		IPEncrypted:    ipEnc,
		Outcome:        outcome,
	})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}
}

func TestDetectQuietIPIsNotSuspicious(t *testing.T) {
	d, s := setupDetector(t)

	record(t, s, "enc-a", "enc-ip", model.AttemptSuccess)
	record(t, s, "enc-a", "enc-ip", model.AttemptFailedPassword)

	report, err := d.Detect(context.Background(), "enc-ip")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Score != 0 {
		t.Errorf("score = %d, want 0", report.Score)
	}
	if report.IsSuspicious {
		t.Error("quiet IP flagged suspicious")
	}
	if len(report.Indicators) != 0 {
		t.Errorf("indicators = %v, want none", report.Indicators)
	}
}

func TestDetectBruteForcePlusSpray(t *testing.T) {
	d, s := setupDetector(t)

	// 6 failed_password attempts across 4 distinct accounts from one IP:
	// score = 6 (count) + 10 (flat) = 16.
	for i := 0; i < 6; i++ {
		record(t, s, fmt.Sprintf("enc-%d", i%4), "enc-ip", model.AttemptFailedPassword)
	}

	report, err := d.Detect(context.Background(), "enc-ip")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Score != 16 {
		t.Errorf("score = %d, want 16", report.Score)
	}
	if !report.IsSuspicious {
		t.Error("expected suspicious")
	}
	if len(report.Indicators) != 2 {
		t.Errorf("indicators = %d, want 2 (%v)", len(report.Indicators), report.Indicators)
	}
}

func TestDetectFailedAttemptsAtThresholdNotCounted(t *testing.T) {
	d, s := setupDetector(t)

	// Exactly 5 failures is at, not over, the threshold.
	for i := 0; i < 5; i++ {
		record(t, s, "enc-a", "enc-ip", model.AttemptFailedPassword)
	}

	report, err := d.Detect(context.Background(), "enc-ip")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Score != 0 {
		t.Errorf("score = %d, want 0", report.Score)
	}
}

func TestDetectScoreJustOverFailureThreshold(t *testing.T) {
	d, s := setupDetector(t)

	// 6 failures against one account: score 6, which is under the
	// suspicious cutoff of >10.
	for i := 0; i < 6; i++ {
		record(t, s, "enc-a", "enc-ip", model.AttemptFailedPassword)
	}

	report, err := d.Detect(context.Background(), "enc-ip")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Score != 6 {
		t.Errorf("score = %d, want 6", report.Score)
	}
	if report.IsSuspicious {
		t.Error("score 6 should not be suspicious")
	}
}

func TestDetectScopedToIP(t *testing.T) {
	d, s := setupDetector(t)

	for i := 0; i < 10; i++ {
		record(t, s, fmt.Sprintf("enc-%d", i), "enc-noisy", model.AttemptFailedPassword)
	}

	report, err := d.Detect(context.Background(), "enc-quiet")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if report.Score != 0 {
		t.Errorf("score = %d, want 0 for an unrelated IP", report.Score)
	}
}
