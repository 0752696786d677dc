// Entry point for the scoutd control-plane daemon: chi router, SQLite
// store, background scheduler and run-queue worker, remote agent.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/openscouts/scoutd/dbopen"
	"github.com/openscouts/scoutd/scout"
)

// daemonConfig is the service config plus daemon-only wiring: where the
// agent lives, which tokens authenticate manual triggers, and where
// notification addresses come from.
type daemonConfig struct {
	Scout scout.Config `yaml:",inline"`

	// AgentURL is the external agent service endpoint. Required.
	AgentURL string `yaml:"agent_url"`

	// APITokens maps bearer tokens to user IDs for manual triggers.
	APITokens map[string]string `yaml:"api_tokens"`

	// UserEmails maps user IDs to notification addresses.
	UserEmails map[string]string `yaml:"user_emails"`
}

func main() {
	logLevel := env("LOG_LEVEL", "info")
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(env("CONFIG", "scoutd.yaml"))
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg.AgentURL == "" {
		slog.Error("agent_url (or AGENT_URL) is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.Scout.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open db", "path", cfg.Scout.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	agent := newRemoteAgent(cfg.AgentURL, logger)
	users := directoryFromMap(cfg.UserEmails)
	auth := bearerAuth(cfg.APITokens)

	svc, err := scout.New(db, agent, users, auth, &cfg.Scout, logger)
	if err != nil {
		slog.Error("init service", "error", err)
		os.Exit(1)
	}
	svc.Start(ctx)
	defer svc.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	svc.Routes(r)

	port := env("PORT", "8090")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// loadConfig reads the YAML file when present and then applies secret
// overrides from the environment, so deployments can keep keys out of
// the file.
func loadConfig(path string) (*daemonConfig, error) {
	cfg := &daemonConfig{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// Config file is optional; env covers the required values.
	default:
		return nil, err
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Scout.DBPath = v
	}
	if v := os.Getenv("FALLBACK_API_KEY"); v != "" {
		cfg.Scout.FallbackAPIKey = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Scout.Email.APIKey = v
	}
	if v := os.Getenv("RESEND_FROM_EMAIL"); v != "" {
		cfg.Scout.Email.From = v
	}
	if v := os.Getenv("POSTHOG_HOST"); v != "" {
		cfg.Scout.Analytics.Host = v
	}
	if v := os.Getenv("POSTHOG_API_KEY"); v != "" {
		cfg.Scout.Analytics.APIKey = v
	}
	if v := os.Getenv("AGENT_URL"); v != "" {
		cfg.AgentURL = v
	}
	return cfg, nil
}

// bearerAuth authenticates manual triggers against a static token map.
func bearerAuth(tokens map[string]string) scout.Authenticator {
	return func(r *http.Request) (string, error) {
		h := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			return "", scout.ErrUnauthenticated
		}
		userID, ok := tokens[token]
		if !ok {
			return "", scout.ErrUnauthenticated
		}
		return userID, nil
	}
}

// mapDirectory serves notification addresses from config.
type mapDirectory map[string]string

func directoryFromMap(m map[string]string) scout.UserDirectory {
	return mapDirectory(m)
}

func (d mapDirectory) EmailFor(_ context.Context, userID string) (string, error) {
	return d[userID], nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
