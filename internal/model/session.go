package model

import "time"

// Session statuses. Transitions only move forward: active sessions become
// expired or revoked and never come back.
const (
	SessionActive  = "active"
	SessionExpired = "expired"
	SessionRevoked = "revoked"
)

type Session struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	// Token is the plaintext credential. It is populated exactly once, on
	// creation, and is never persisted; only its digest is stored.
	Token          string     `json:"token,omitempty"`
	DeviceName     *string    `json:"device_name,omitempty"`
	DeviceType     string     `json:"device_type"`
	BrowserName    *string    `json:"browser_name,omitempty"`
	OSName         *string    `json:"os_name,omitempty"`
	Status         string     `json:"status"`
	TwoFAVerified  bool       `json:"twofa_verified"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	LoggedOutAt    *time.Time `json:"logged_out_at,omitempty"`
}
