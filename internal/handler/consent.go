package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/evharlow/astrid/internal/auth"
	"github.com/evharlow/astrid/internal/model"
	"github.com/evharlow/astrid/internal/store"
)

type ConsentHandler struct {
	consents *store.ConsentStore
	logger   *slog.Logger
}

func NewConsentHandler(cs *store.ConsentStore, logger *slog.Logger) *ConsentHandler {
	return &ConsentHandler{consents: cs, logger: logger}
}

// Get returns the caller's consent record. A user who never made a decision
// gets an all-false record with no granted_at, not a 404; the UI treats both
// the same way.
func (h *ConsentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	consent, err := h.consents.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("get consent", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get consent")
		return
	}
	if consent == nil {
		consent = &model.Consent{UserID: userID}
	}
	writeJSON(w, http.StatusOK, consent)
}

type setConsentRequest struct {
	ConsentType string `json:"consent_type"`
	Granted     bool   `json:"granted"`
}

func (h *ConsentHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req setConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if !store.ValidConsentType(req.ConsentType) {
		writeError(w, http.StatusBadRequest, "unknown consent type")
		return
	}

	userID := auth.UserID(r.Context())
	consent, err := h.consents.Set(r.Context(), userID, req.ConsentType, req.Granted)
	if err != nil {
		h.logger.Error("set consent", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set consent")
		return
	}

	h.logger.Info("consent updated",
		"user_id", userID,
		"consent_type", req.ConsentType,
		"granted", req.Granted)
	writeJSON(w, http.StatusOK, consent)
}
