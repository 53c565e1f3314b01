package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evharlow/astrid/internal/auth"
	"github.com/evharlow/astrid/internal/database"
	"github.com/evharlow/astrid/internal/model"
	"github.com/evharlow/astrid/internal/store"
)

func setupConsentMiddlewareDB(t *testing.T) *store.ConsentStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewConsentStore(db)
}

func authedRequest(userID string) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	ctx := auth.WithAuth(req.Context(), auth.AuthContext{UserID: userID, SessionID: 1})
	return req.WithContext(ctx)
}

func TestRequireConsentBlocksThenAllows(t *testing.T) {
	cs := setupConsentMiddlewareDB(t)
	ctx := context.Background()

	var reached bool
	handler := RequireConsent(cs, model.ConsentChatAnalysis)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	// No consent recorded yet: the gate must refuse.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status before grant = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if reached {
		t.Error("handler ran without consent")
	}

	if _, err := cs.Set(ctx, "user-1", model.ConsentChatAnalysis, true); err != nil {
		t.Fatalf("grant consent: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Errorf("status after grant = %d, want %d", rec.Code, http.StatusOK)
	}
	if !reached {
		t.Error("handler did not run after consent granted")
	}
}

func TestRequireConsentWithdrawal(t *testing.T) {
	cs := setupConsentMiddlewareDB(t)
	ctx := context.Background()

	handler := RequireConsent(cs, model.ConsentAstrology)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if _, err := cs.Set(ctx, "user-1", model.ConsentAstrology, true); err != nil {
		t.Fatalf("grant consent: %v", err)
	}
	if _, err := cs.Set(ctx, "user-1", model.ConsentAstrology, false); err != nil {
		t.Fatalf("withdraw consent: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status after withdrawal = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRequireConsentScopedToUser(t *testing.T) {
	cs := setupConsentMiddlewareDB(t)
	ctx := context.Background()

	handler := RequireConsent(cs, model.ConsentHealthWellness)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if _, err := cs.Set(ctx, "user-1", model.ConsentHealthWellness, true); err != nil {
		t.Fatalf("grant consent: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-2"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status for other user = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestConsentGatesReportStoreFailure(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	cs := store.NewConsentStore(db)
	db.Close()

	typed := RequireConsent(cs, model.ConsentAstrology)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler ran despite store failure")
	}))
	rec := httptest.NewRecorder()
	typed.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("typed gate status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	coarse := RequireAnyConsent(cs)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler ran despite store failure")
	}))
	rec = httptest.NewRecorder()
	coarse.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("coarse gate status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestRequireAnyConsentBlocksOnlyAbsent(t *testing.T) {
	cs := setupConsentMiddlewareDB(t)
	ctx := context.Background()

	handler := RequireAnyConsent(cs)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// No consent row at all yet.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status with no row = %d, want %d", rec.Code, http.StatusForbidden)
	}

	// A row with everything withdrawn is still a recorded decision.
	if _, err := cs.Set(ctx, "user-1", model.ConsentAstrology, false); err != nil {
		t.Fatalf("record decision: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("user-1"))
	if rec.Code != http.StatusOK {
		t.Errorf("status with recorded decision = %d, want %d", rec.Code, http.StatusOK)
	}
}
