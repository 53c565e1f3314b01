package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/evharlow/astrid/internal/auth"
	"github.com/evharlow/astrid/internal/crypto"
	"github.com/evharlow/astrid/internal/store"
)

type ProfileHandler struct {
	profiles *store.ProfileStore
	gateway  *crypto.Gateway
	logger   *slog.Logger
}

func NewProfileHandler(ps *store.ProfileStore, gw *crypto.Gateway, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: ps, gateway: gw, logger: logger}
}

// Get decrypts and returns the caller's profile. A decryption failure is a
// key rotation gone wrong and surfaces as a 500, never as empty fields.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	enc, profile, err := h.profiles.GetEncrypted(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get profile")
		return
	}
	if enc == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}

	profile.Email, err = h.gateway.Decrypt(enc.EmailEncrypted)
	if err == nil {
		profile.FirstName, err = h.gateway.Decrypt(enc.FirstNameEncrypted)
	}
	if err == nil {
		profile.LastName, err = h.gateway.Decrypt(enc.LastNameEncrypted)
	}
	if err != nil {
		if errors.Is(err, crypto.ErrKeyMismatch) {
			h.logger.Error("profile ciphertext does not authenticate", "user_id", profile.UserID)
		} else {
			h.logger.Error("decrypt profile", "error", err)
		}
		writeError(w, http.StatusInternalServerError, "failed to read profile")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

type updateProfileRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &e
	}

	params := store.UpsertProfileParams{UserID: auth.UserID(r.Context())}
	var err error
	params.EmailEncrypted, err = h.gateway.EncryptNullable(req.Email)
	if err == nil {
		params.FirstNameEncrypted, err = h.gateway.EncryptNullable(req.FirstName)
	}
	if err == nil {
		params.LastNameEncrypted, err = h.gateway.EncryptNullable(req.LastName)
	}
	if err != nil {
		h.logger.Error("encrypt profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}

	if err := h.profiles.Upsert(r.Context(), params); err != nil {
		h.logger.Error("upsert profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
