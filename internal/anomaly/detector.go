// Package anomaly scores recent authentication activity per source IP. The
// score is a friction signal, not a hard block: shared NAT addresses make
// false positives routine, so callers use it to demand a second factor and
// nothing more.
package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/evharlow/astrid/internal/model"
	"github.com/evharlow/astrid/internal/store"
)

type Thresholds struct {
	// FailedAttempts is the failed_password count above which the count
	// itself is added to the score.
	FailedAttempts int
	// DistinctTargets is the attempted-account count above which a flat
	// penalty is added.
	DistinctTargets int
	// SuspiciousScore is the score above which an IP is flagged.
	SuspiciousScore int
	// Window bounds how far back attempts are aggregated.
	Window time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FailedAttempts:  5,
		DistinctTargets: 3,
		SuspiciousScore: 10,
		Window:          60 * time.Minute,
	}
}

const distinctTargetPenalty = 10

type Detector struct {
	attempts   *store.LoginAttemptStore
	thresholds Thresholds
}

func NewDetector(attempts *store.LoginAttemptStore, t Thresholds) *Detector {
	def := DefaultThresholds()
	if t.FailedAttempts <= 0 {
		t.FailedAttempts = def.FailedAttempts
	}
	if t.DistinctTargets <= 0 {
		t.DistinctTargets = def.DistinctTargets
	}
	if t.SuspiciousScore <= 0 {
		t.SuspiciousScore = def.SuspiciousScore
	}
	if t.Window <= 0 {
		t.Window = def.Window
	}
	return &Detector{attempts: attempts, thresholds: t}
}

// Detect aggregates the IP's attempts inside the window and scores them.
// The IP is passed in already-encrypted (deterministic mode), the same form
// it was recorded in.
func (d *Detector) Detect(ctx context.Context, ipEncrypted string) (*model.SuspicionReport, error) {
	since := time.Now().UTC().Add(-d.thresholds.Window)

	failed, err := d.attempts.CountFailedPasswordByIP(ctx, ipEncrypted, since)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	targets, err := d.attempts.CountDistinctTargetsByIP(ctx, ipEncrypted, since)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	report := &model.SuspicionReport{
		FailedAttempts:  failed,
		DistinctTargets: targets,
	}

	if failed > d.thresholds.FailedAttempts {
		report.Score += failed
		report.Indicators = append(report.Indicators,
			fmt.Sprintf("%d failed login attempts (threshold: %d)", failed, d.thresholds.FailedAttempts))
	}
	if targets > d.thresholds.DistinctTargets {
		report.Score += distinctTargetPenalty
		report.Indicators = append(report.Indicators,
			fmt.Sprintf("%d different accounts attempted (threshold: %d)", targets, d.thresholds.DistinctTargets))
	}

	report.IsSuspicious = report.Score > d.thresholds.SuspiciousScore
	return report, nil
}
