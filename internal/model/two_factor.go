package model

import "time"

// TwoFactorSecret is a user's TOTP enrollment. The secret itself is stored
// encrypted; Confirmed flips true after the first successful code check.
type TwoFactorSecret struct {
	UserID    string    `json:"user_id"`
	Confirmed bool      `json:"confirmed"`
	CreatedAt time.Time `json:"created_at"`
}

// RecoveryCode is a single-use fallback credential, stored as a bcrypt hash.
type RecoveryCode struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
