package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string

	SupabaseURL        string
	SupabaseServiceKey string

	PlacidAPIToken   string
	PlacidWebhookURL string

	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaShortcode      string
	MpesaPasskey        string
	MpesaEnv            string
	MpesaCallbackURL    string

	AdminNotifyURL string
	LogLevel       string
}

// Load loads environment variables into the Config struct.
func Load() (*Config, error) {
	// Load from .env file if present (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		SupabaseURL:         mustEnv("SUPABASE_URL"),
		SupabaseServiceKey:  mustEnv("SUPABASE_SERVICE_KEY"),
		PlacidAPIToken:      mustEnv("PLACID_API_TOKEN"),
		PlacidWebhookURL:    getEnv("PLACID_WEBHOOK_URL", ""),
		MpesaConsumerKey:    mustEnv("MPESA_CONSUMER_KEY"),
		MpesaConsumerSecret: mustEnv("MPESA_CONSUMER_SECRET"),
		MpesaShortcode:      mustEnv("MPESA_SHORTCODE"),
		MpesaPasskey:        mustEnv("MPESA_PASSKEY"),
		MpesaEnv:            getEnv("MPESA_ENV", "sandbox"), // sandbox | production
		MpesaCallbackURL:    mustEnv("MPESA_CALLBACK_URL"),
		AdminNotifyURL:      getEnv("ADMIN_NOTIFY_URL", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// mustEnv returns the value of the env var or panics if missing.
func mustEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("missing required environment variable: %s", key))
	}
	return val
}

// getEnv returns the env var value or default if unset.
func getEnv(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}
