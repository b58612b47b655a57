// Command server starts the recap HTTP API.
//
// CONFIGURATION (environment variables):
//
//	PORT                   HTTP port (default 8080)
//	DB_PATH                SQLite database file (default data/recap.db)
//	JWT_SECRET             HMAC signing secret — REQUIRED
//	OPENROUTER_API_KEY     API key for summary generation
//	SUMMARY_MODEL          model identifier (default openai/gpt-4o-mini)
//	GITHUB_CLIENT_ID       GitHub OAuth app ID (optional)
//	GITHUB_CLIENT_SECRET   GitHub OAuth app secret (optional)
//	GITHUB_CALLBACK_URL    OAuth callback (default derived from PORT)
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sakif/recap/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Make sure the database directory exists before sqlite tries to
	// create the file inside it.
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadConfig reads configuration from the environment. Only JWT_SECRET is
// hard-required: without it every issued token would be forgeable.
func loadConfig() (server.Config, error) {
	cfg := server.Config{
		Port:             8080,
		DBPath:           "data/recap.db",
		JWTSecret:        os.Getenv("JWT_SECRET"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		SummaryModel:     "openai/gpt-4o-mini",

		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  os.Getenv("GITHUB_CALLBACK_URL"),
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return server.Config{}, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SUMMARY_MODEL"); v != "" {
		cfg.SummaryModel = v
	}

	if cfg.JWTSecret == "" {
		return server.Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	return cfg, nil
}
