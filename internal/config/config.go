package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds everything the service reads from the environment.
type Config struct {
	Port  string
	Env   string
	Debug bool

	DatabasePath string
	JWTSecret    string

	// WebhookSecrets maps a provider name (korapay, quidax, dojah) to its
	// pre-shared HMAC key.
	WebhookSecrets map[string]string

	ExchangeAPIURL string
	ExchangeAPIKey string

	// EscrowWindow is how long the buyer has to confirm payment before the
	// escrow expires.
	EscrowWindow time.Duration
}

var webhookProviders = []string{"korapay", "quidax", "dojah"}

// Load reads configuration from the environment, loading a .env file first
// if one is present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		Debug:          getEnv("DEBUG", "") == "true",
		DatabasePath:   getEnv("DATABASE_PATH", "trustbank.db"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		ExchangeAPIURL: getEnv("EXCHANGE_API_URL", ""),
		ExchangeAPIKey: getEnv("EXCHANGE_API_KEY", ""),
		WebhookSecrets: make(map[string]string),
		EscrowWindow:   30 * time.Minute,
	}

	if minutes := getEnv("ESCROW_WINDOW_MINUTES", ""); minutes != "" {
		if n, err := strconv.Atoi(minutes); err == nil && n > 0 {
			cfg.EscrowWindow = time.Duration(n) * time.Minute
		}
	}

	for _, provider := range webhookProviders {
		key := "WEBHOOK_SECRET_" + strings.ToUpper(provider)
		if secret := os.Getenv(key); secret != "" {
			cfg.WebhookSecrets[provider] = secret
		}
	}

	// Dev fallbacks so the server and simulation run out of the box.
	// Production must provide real secrets.
	if cfg.Env != "production" {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "trustbank-dev-secret"
		}
		for _, provider := range webhookProviders {
			if _, ok := cfg.WebhookSecrets[provider]; !ok {
				cfg.WebhookSecrets[provider] = "dev-" + provider + "-secret"
			}
		}
	} else if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required in production")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

