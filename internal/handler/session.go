package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/evharlow/astrid/internal/anomaly"
	"github.com/evharlow/astrid/internal/auth"
	"github.com/evharlow/astrid/internal/crypto"
	"github.com/evharlow/astrid/internal/device"
	"github.com/evharlow/astrid/internal/identity"
	"github.com/evharlow/astrid/internal/middleware"
	"github.com/evharlow/astrid/internal/model"
	"github.com/evharlow/astrid/internal/store"
	"github.com/evharlow/astrid/internal/twofactor"
)

type SessionHandler struct {
	sessions  *store.SessionStore
	attempts  *store.LoginAttemptStore
	detector  *anomaly.Detector
	directory *identity.Client
	gateway   *crypto.Gateway
	twoFactor *twofactor.Service
	logger    *slog.Logger
}

func NewSessionHandler(
	ss *store.SessionStore,
	as *store.LoginAttemptStore,
	det *anomaly.Detector,
	dir *identity.Client,
	gw *crypto.Gateway,
	tf *twofactor.Service,
	logger *slog.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions:  ss,
		attempts:  as,
		detector:  det,
		directory: dir,
		gateway:   gw,
		twoFactor: tf,
		logger:    logger,
	}
}

type loginRequest struct {
	IDToken string `json:"id_token"`
	Email   string `json:"email"`
}

type loginResponse struct {
	Session     *model.Session `json:"session"`
	Requires2FA bool           `json:"requires_2fa"`
	Suspicious  bool           `json:"suspicious"`
}

// Login exchanges a directory ID token for a session. Every attempt is
// recorded; suspicious source IPs and 2FA-enrolled accounts get a session
// that must pass Verify2FA before 2FA-gated actions.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.IDToken == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "id_token and email are required")
		return
	}

	ctx := r.Context()
	ip := middleware.RealIP(r)
	userAgent := r.UserAgent()

	encIP, err := h.gateway.EncryptDeterministic(ip)
	if err != nil {
		h.logger.Error("encrypt attempt ip", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	encEmail, err := h.gateway.EncryptDeterministic(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.logger.Error("encrypt attempt email", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	ident, err := h.directory.VerifyToken(req.IDToken)
	if err != nil {
		reason := "invalid identity token"
		if _, recErr := h.attempts.Record(ctx, store.RecordAttemptParams{
			EmailEncrypted: encEmail,
			IPEncrypted:    encIP,
			UserAgent:      &userAgent,
			Outcome:        model.AttemptFailedPassword,
			Reason:         &reason,
		}); recErr != nil {
			h.logger.Error("record failed attempt", "error", recErr)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	report, err := h.detector.Detect(ctx, encIP)
	if err != nil {
		h.logger.Error("anomaly detection", "error", err)
		// Scoring failure never blocks login; treat the IP as clean.
		report = &model.SuspicionReport{}
	}
	if report.IsSuspicious {
		h.logger.Warn("suspicious login source",
			"score", report.Score,
			"indicators", report.Indicators)
	}

	enrolled, err := h.twoFactor.Enrolled(ctx, ident.UserID)
	if err != nil {
		h.logger.Error("check 2fa enrollment", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if _, err := h.attempts.Record(ctx, store.RecordAttemptParams{
		UserID:         &ident.UserID,
		EmailEncrypted: encEmail,
		IPEncrypted:    encIP,
		UserAgent:      &userAgent,
		Outcome:        model.AttemptSuccess,
	}); err != nil {
		h.logger.Error("record success attempt", "error", err)
	}

	info := device.Parse(userAgent)
	params := store.CreateSessionParams{
		UserID:      ident.UserID,
		DeviceType:  info.Type,
		IPEncrypted: &encIP,
	}
	if info.Browser != "" {
		params.BrowserName = &info.Browser
	}
	if info.OS != "" {
		params.OSName = &info.OS
	}
	if info.Name != "" {
		encName, err := h.gateway.Encrypt(info.Name)
		if err != nil {
			h.logger.Error("encrypt device name", "error", err)
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}
		params.DeviceNameEncrypted = &encName
	}
	if userAgent != "" {
		encUA, err := h.gateway.Encrypt(userAgent)
		if err != nil {
			h.logger.Error("encrypt user agent", "error", err)
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}
		params.UserAgentEncrypted = &encUA
	}

	sess, err := h.sessions.Create(ctx, params)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.logger.Info("session created",
		"user_id", ident.UserID,
		"session_id", sess.ID,
		"device_type", sess.DeviceType)

	writeJSON(w, http.StatusCreated, loginResponse{
		Session:     sess,
		Requires2FA: enrolled || report.IsSuspicious,
		Suspicious:  report.IsSuspicious,
	})
}

type verify2FARequest struct {
	Code string `json:"code"`
}

// Verify2FA completes the second factor on the caller's fresh session. The
// route is reached with the session credential itself, so it sits outside the
// 2FA gate but still behind session validation.
func (h *SessionHandler) Verify2FA(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req verify2FARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	verified, err := h.twoFactor.Verify(r.Context(), ac.UserID, req.Code)
	if err != nil {
		h.logger.Error("verify 2fa", "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if !verified {
		h.recordTwoFAFailure(r, ac.UserID)
		writeError(w, http.StatusUnauthorized, "invalid code")
		return
	}

	if err := h.sessions.MarkTwoFAVerified(r.Context(), ac.SessionID); err != nil {
		h.logger.Error("mark 2fa verified", "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *SessionHandler) recordTwoFAFailure(r *http.Request, userID string) {
	encIP, err := h.gateway.EncryptDeterministic(middleware.RealIP(r))
	if err != nil {
		h.logger.Error("encrypt attempt ip", "error", err)
		return
	}
	userAgent := r.UserAgent()
	reason := "invalid totp or recovery code"
	if _, err := h.attempts.Record(r.Context(), store.RecordAttemptParams{
		UserID:      &userID,
		IPEncrypted: encIP,
		UserAgent:   &userAgent,
		Outcome:     model.AttemptFailed2FA,
		Reason:      &reason,
	}); err != nil {
		h.logger.Error("record failed 2fa attempt", "error", err)
	}
}

// List returns the caller's active sessions for a "manage devices" view.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListActive(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":   sessions,
		"current_id": auth.SessionID(r.Context()),
	})
}

type revokeRequest struct {
	SessionID int64 `json:"session_id"`
}

func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SessionID <= 0 {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := h.sessions.Revoke(r.Context(), req.SessionID, auth.UserID(r.Context())); err != nil {
		h.logger.Error("revoke session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to revoke session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *SessionHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	count, err := h.sessions.RevokeAll(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("revoke all sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to revoke sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"revoked_count": count})
}

// Attempts returns the caller's recent login history. Encrypted columns never
// leave the store.
func (h *SessionHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-30 * 24 * time.Hour)
	attempts, err := h.attempts.ListRecentByUser(r.Context(), auth.UserID(r.Context()), since, 50)
	if err != nil {
		h.logger.Error("list login attempts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []*model.LoginAttempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}
