package model

import "time"

// Consent types gating personalized features.
const (
	ConsentAstrology      = "astrology"
	ConsentHealthWellness = "health_wellness"
	ConsentChatAnalysis   = "chat_analysis"
)

// Consent holds one user's per-type consent flags. Absence of a row is
// equivalent to nothing granted.
type Consent struct {
	UserID         string     `json:"user_id"`
	Astrology      bool       `json:"astrology"`
	HealthWellness bool       `json:"health_wellness"`
	ChatAnalysis   bool       `json:"chat_analysis"`
	GrantedAt      *time.Time `json:"granted_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Has reports whether the given consent type is granted.
func (c *Consent) Has(consentType string) bool {
	if c == nil {
		return false
	}
	switch consentType {
	case ConsentAstrology:
		return c.Astrology
	case ConsentHealthWellness:
		return c.HealthWellness
	case ConsentChatAnalysis:
		return c.ChatAnalysis
	}
	return false
}
