package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/evharlow/astrid/internal/anomaly"
	"github.com/evharlow/astrid/internal/crypto"
	"github.com/evharlow/astrid/internal/handler"
	"github.com/evharlow/astrid/internal/identity"
	"github.com/evharlow/astrid/internal/middleware"
	"github.com/evharlow/astrid/internal/migration"
	"github.com/evharlow/astrid/internal/model"
	"github.com/evharlow/astrid/internal/store"
	"github.com/evharlow/astrid/internal/twofactor"
)

// Config carries the tuning knobs main reads from the environment. Zero
// values mean the component defaults apply.
type Config struct {
	SessionWindow time.Duration
	MaxSessions   int
	Thresholds    anomaly.Thresholds
	Issuer        string
}

type Server struct {
	db           *sql.DB
	sessionH     *handler.SessionHandler
	migrationH   *handler.MigrationHandler
	consentH     *handler.ConsentHandler
	twoFactorH   *handler.TwoFactorHandler
	profileH     *handler.ProfileHandler
	messageH     *handler.MessageHandler
	sessionStore *store.SessionStore
	consentStore *store.ConsentStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, gateway *crypto.Gateway, directory *identity.Client, cfg Config, logger *slog.Logger) *Server {
	sessionStore := store.NewSessionStore(db, cfg.SessionWindow, cfg.MaxSessions)
	attemptStore := store.NewLoginAttemptStore(db)
	consentStore := store.NewConsentStore(db)
	pendingStore := store.NewPendingMigrationStore(db)
	messageStore := store.NewMessageStore(db)
	profileStore := store.NewProfileStore(db)
	twoFactorStore := store.NewTwoFactorStore(db)

	detector := anomaly.NewDetector(attemptStore, cfg.Thresholds)
	twoFactorSvc := twofactor.NewService(twoFactorStore, gateway, cfg.Issuer)
	migrator := migration.NewMigrator(db, gateway, pendingStore, directory, logger.With("component", "migration"))

	return &Server{
		db:           db,
		sessionH:     handler.NewSessionHandler(sessionStore, attemptStore, detector, directory, gateway, twoFactorSvc, logger.With("component", "session")),
		migrationH:   handler.NewMigrationHandler(migrator, directory, logger.With("component", "migration_handler")),
		consentH:     handler.NewConsentHandler(consentStore, logger.With("component", "consent")),
		twoFactorH:   handler.NewTwoFactorHandler(twoFactorSvc, directory, logger.With("component", "twofactor")),
		profileH:     handler.NewProfileHandler(profileStore, gateway, logger.With("component", "profile")),
		messageH:     handler.NewMessageHandler(messageStore, logger.With("component", "message")),
		sessionStore: sessionStore,
		consentStore: consentStore,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// RateLimiter returns the limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes. Login and intent registration are rate limited per
	// source IP; both are credential-bearing and attract abuse.
	outerMux.HandleFunc("POST /session", s.rateLimitedHandler(s.sessionH.Login))
	outerMux.HandleFunc("POST /migration/register-intent", s.rateLimitedHandler(s.migrationH.RegisterIntent))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes behind session validation.
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	sessionMiddleware := middleware.RequireSession(s.sessionStore)
	outerMux.Handle("/", sessionMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /session/2fa", s.sessionH.Verify2FA)
	mux.HandleFunc("GET /sessions", s.sessionH.List)
	mux.HandleFunc("POST /session/revoke", s.sessionH.Revoke)
	mux.HandleFunc("POST /session/revoke-all", s.sessionH.RevokeAll)
	mux.HandleFunc("GET /login-attempts", s.sessionH.Attempts)

	mux.HandleFunc("POST /migration/run", s.migrationH.Run)

	mux.HandleFunc("GET /consent", s.consentH.Get)
	mux.HandleFunc("POST /consent", s.consentH.Set)

	mux.HandleFunc("POST /2fa/setup", s.twoFactorH.Setup)
	mux.HandleFunc("GET /2fa/status", s.twoFactorH.Status)

	mux.HandleFunc("GET /profile", s.profileH.Get)
	mux.HandleFunc("PUT /profile", s.profileH.Update)

	// Conversation routes sit behind the consent gate: any recorded decision
	// to read, chat-analysis consent specifically to use the history.
	anyConsent := middleware.RequireAnyConsent(s.consentStore)
	chatConsent := middleware.RequireConsent(s.consentStore, model.ConsentChatAnalysis)
	mux.Handle("GET /messages", anyConsent(chatConsent(http.HandlerFunc(s.messageH.List))))
	mux.Handle("POST /messages", anyConsent(http.HandlerFunc(s.messageH.Create)))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
