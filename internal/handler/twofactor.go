package handler

import (
	"log/slog"
	"net/http"

	"github.com/evharlow/astrid/internal/auth"
	"github.com/evharlow/astrid/internal/identity"
	"github.com/evharlow/astrid/internal/twofactor"
)

type TwoFactorHandler struct {
	twoFactor *twofactor.Service
	directory *identity.Client
	logger    *slog.Logger
}

func NewTwoFactorHandler(tf *twofactor.Service, dir *identity.Client, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: tf, directory: dir, logger: logger}
}

// Setup provisions TOTP for the caller. The account label on the provisioning
// URL comes from the directory record when available, falling back to the
// user id; the email never touches our store in plaintext.
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	accountName := userID
	if u, err := h.directory.GetUser(r.Context(), userID); err == nil && u != nil && u.Email != "" {
		accountName = u.Email
	}

	enrollment, err := h.twoFactor.Setup(r.Context(), userID, accountName)
	if err != nil {
		h.logger.Error("2fa setup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set up 2fa")
		return
	}

	h.logger.Info("2fa enrollment started", "user_id", userID)
	writeJSON(w, http.StatusCreated, enrollment)
}

func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	enrolled, err := h.twoFactor.Enrolled(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("2fa status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check 2fa status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enrolled": enrolled})
}
