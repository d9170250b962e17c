// Package config loads the server's bootstrap configuration from a
// .env-style file named "config" in the working directory, falling back
// to the process environment and documented defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every recognized configuration key.
type Config struct {
	AuthServer string
	CardServer string
	DeckServer string

	ListenHost string
	ListenPort int

	HTTPTimeout       time.Duration
	BroadcastInterval time.Duration
	LogLevel          string
}

const (
	defaultListenHost      = "127.0.0.1"
	defaultListenPort      = 8000
	defaultHTTPTimeoutSec  = 10
	defaultBroadcastMillis = 1000
	defaultLogLevel        = "info"
)

// Load reads the config file at path (typically "config") if present,
// populating the process environment with any keys it declares that are
// not already set, then builds a Config from the environment. A missing
// file is not an error — the environment and defaults still apply.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("stat config file %s: %w", path, err)
	}

	cfg := Config{
		AuthServer: os.Getenv("AUTH_SERVER"),
		CardServer: os.Getenv("CARD_SERVER"),
		DeckServer: os.Getenv("DECK_SERVER"),
		ListenHost: envOr("LISTEN_HOST", defaultListenHost),
		LogLevel:   envOr("LOG_LEVEL", defaultLogLevel),
	}

	if cfg.AuthServer == "" || cfg.CardServer == "" || cfg.DeckServer == "" {
		return Config{}, fmt.Errorf("config: AUTH_SERVER, CARD_SERVER and DECK_SERVER are required")
	}

	port, err := envOrIntDefault("LISTEN_PORT", defaultListenPort)
	if err != nil {
		return Config{}, err
	}
	cfg.ListenPort = port

	timeoutSec, err := envOrIntDefault("HTTP_TIMEOUT_SECONDS", defaultHTTPTimeoutSec)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTPTimeout = time.Duration(timeoutSec) * time.Second

	broadcastMillis, err := envOrIntDefault("BROADCAST_INTERVAL_MS", defaultBroadcastMillis)
	if err != nil {
		return Config{}, err
	}
	cfg.BroadcastInterval = time.Duration(broadcastMillis) * time.Millisecond

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrIntDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, v)
	}
	return n, nil
}
