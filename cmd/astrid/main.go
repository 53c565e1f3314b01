package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/evharlow/astrid/internal/anomaly"
	"github.com/evharlow/astrid/internal/crypto"
	"github.com/evharlow/astrid/internal/database"
	"github.com/evharlow/astrid/internal/identity"
	"github.com/evharlow/astrid/internal/logging"
	"github.com/evharlow/astrid/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger := logging.Setup(os.Getenv("ASTRID_LOG_LEVEL"))

	port := os.Getenv("ASTRID_PORT")
	if port == "" {
		port = "8080"
	}
	dbPath := os.Getenv("ASTRID_DB_PATH")
	if dbPath == "" {
		dbPath = "astrid.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// A missing encryption key is fatal. Serving without one would write
	// plaintext PII or garbage ciphertext, both unrecoverable mistakes.
	gateway, err := crypto.LoadGateway(db, os.Getenv("ASTRID_ENCRYPTION_KEY"))
	if err != nil {
		logger.Error("failed to load encryption gateway", "error", err)
		os.Exit(1)
	}

	idpURL := os.Getenv("ASTRID_IDP_URL")
	idpSecret := os.Getenv("ASTRID_IDP_SECRET")
	if idpURL == "" || idpSecret == "" {
		logger.Error("ASTRID_IDP_URL and ASTRID_IDP_SECRET must be set")
		os.Exit(1)
	}
	directory := identity.NewClient(idpURL, []byte(idpSecret), os.Getenv("ASTRID_IDP_API_KEY"))

	cfg := server.Config{
		SessionWindow: durationEnv("ASTRID_SESSION_WINDOW"),
		MaxSessions:   intEnv("ASTRID_MAX_SESSIONS"),
		Thresholds: anomaly.Thresholds{
			FailedAttempts:  intEnv("ASTRID_MAX_FAILED_ATTEMPTS"),
			DistinctTargets: intEnv("ASTRID_MAX_DISTINCT_TARGETS"),
			SuspiciousScore: intEnv("ASTRID_SUSPICIOUS_SCORE"),
			Window:          durationEnv("ASTRID_ANOMALY_WINDOW"),
		},
		Issuer: "Astrid",
	}

	srv := server.New(db, gateway, directory, cfg, logger)

	// Drop stale rate-limit buckets so the map does not grow unbounded.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			srv.RateLimiter().Cleanup()
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("astrid listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func durationEnv(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func intEnv(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
