package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/evharlow/astrid/internal/auth"
	"github.com/evharlow/astrid/internal/identity"
	"github.com/evharlow/astrid/internal/migration"
	"github.com/evharlow/astrid/internal/store"
)

type MigrationHandler struct {
	migrator  *migration.Migrator
	directory *identity.Client
	logger    *slog.Logger
}

func NewMigrationHandler(m *migration.Migrator, dir *identity.Client, logger *slog.Logger) *MigrationHandler {
	return &MigrationHandler{migrator: m, directory: dir, logger: logger}
}

type registerIntentRequest struct {
	IDToken string `json:"id_token"`
	Email   string `json:"email"`
}

// RegisterIntent lets a guest declare the email it will sign up with. The
// caller proves it owns the guest identity with the guest's directory ID
// token; guests have no session of their own.
func (h *MigrationHandler) RegisterIntent(w http.ResponseWriter, r *http.Request) {
	var req registerIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.IDToken == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "id_token and email are required")
		return
	}

	ident, err := h.directory.VerifyToken(req.IDToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid identity token")
		return
	}
	if !ident.Guest {
		writeError(w, http.StatusForbidden, "only guest accounts can register a migration intent")
		return
	}

	if err := h.migrator.RegisterIntent(r.Context(), ident.UserID, req.Email); err != nil {
		if errors.Is(err, store.ErrEmailClaimed) {
			writeError(w, http.StatusConflict, "email already claimed by a pending migration")
			return
		}
		h.logger.Error("register migration intent", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register intent")
		return
	}

	h.logger.Info("migration intent registered", "guest_user_id", ident.UserID)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

type runMigrationRequest struct {
	IDToken string `json:"id_token"`
}

// Run migrates pending guest data onto the authenticated caller. The email
// that keys the lookup comes from the caller's directory token, not the
// request, so a caller cannot claim someone else's pending data.
func (h *MigrationHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runMigrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.IDToken == "" {
		writeError(w, http.StatusBadRequest, "id_token is required")
		return
	}

	ident, err := h.directory.VerifyToken(req.IDToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid identity token")
		return
	}
	if ident.UserID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "token does not match session")
		return
	}
	if ident.Guest || ident.Email == "" {
		writeError(w, http.StatusForbidden, "a permanent account with a verified email is required")
		return
	}

	result, err := h.migrator.Run(r.Context(), ident.UserID, strings.ToLower(ident.Email))
	if err != nil {
		h.logger.Error("run migration", "error", err, "user_id", ident.UserID)
		writeError(w, http.StatusInternalServerError, "migration failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
