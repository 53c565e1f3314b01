package model

import "time"

// Login attempt outcomes.
const (
	AttemptSuccess        = "success"
	AttemptFailedPassword = "failed_password"
	AttemptFailed2FA      = "failed_2fa"
	AttemptBlocked        = "blocked"
)

// LoginAttempt is an append-only record of one authentication attempt.
// Email and IP are stored encrypted; rows are never updated.
type LoginAttempt struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Reason    *string   `json:"reason,omitempty"`
	UserAgent *string   `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SuspicionReport is the result of analyzing one IP's recent attempts.
type SuspicionReport struct {
	Score           int      `json:"score"`
	IsSuspicious    bool     `json:"is_suspicious"`
	Indicators      []string `json:"indicators"`
	FailedAttempts  int      `json:"failed_attempts"`
	DistinctTargets int      `json:"distinct_targets"`
}
