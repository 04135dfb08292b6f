package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	NotificationsNone     = "none"
	NotificationsNtfy     = "ntfy"
	NotificationsTelegram = "telegram"
)

// Config holds the application configuration
type Config struct {
	AppEnv string

	HTTPPort           int
	HTTPRequestTimeout time.Duration

	Store                  string
	DatabaseURL            string
	DatabaseMigrationsPath string

	JWTSecret string

	NotificationsProvider string
	NotificationsTimeout  time.Duration
	NtfyBaseURL           string
	TelegramBotToken      string
	TelegramChatID        int64
}

func (c Config) Dev() bool {
	return c.AppEnv == "dev"
}

/* Reads the .env files, when there are any, and then the environment. Values already set in
the environment win over the ones in the files. */
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}
	var err error

	config.AppEnv = getenv("APP_ENV", "prod")
	if config.AppEnv != "dev" && config.AppEnv != "prod" {
		return nil, fmt.Errorf("invalid APP_ENV %q: must be dev or prod", config.AppEnv)
	}

	config.HTTPPort, err = strconv.Atoi(getenv("HTTP_PORT", "8080"))
	if err != nil || config.HTTPPort < 1 || config.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP_PORT %q", os.Getenv("HTTP_PORT"))
	}

	config.HTTPRequestTimeout, err = duration("HTTP_REQUEST_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	config.Store = getenv("STORE", StorePostgres)
	switch config.Store {
	case StorePostgres:
		config.DatabaseURL = os.Getenv("DATABASE_URL")
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE is %s", StorePostgres)
		}
		config.DatabaseMigrationsPath = getenv("DATABASE_MIGRATIONS_PATH", "migrations")
	case StoreMemory:
	default:
		return nil, fmt.Errorf("invalid STORE %q: must be %s or %s", config.Store, StorePostgres, StoreMemory)
	}

	config.JWTSecret = os.Getenv("JWT_SECRET")
	if config.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	config.NotificationsTimeout, err = duration("NOTIFICATIONS_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, err
	}

	config.NotificationsProvider = getenv("NOTIFICATIONS_PROVIDER", NotificationsNone)
	switch config.NotificationsProvider {
	case NotificationsNone:
	case NotificationsNtfy:
		config.NtfyBaseURL = os.Getenv("NTFY_BASE_URL")
		if config.NtfyBaseURL == "" {
			return nil, fmt.Errorf("NTFY_BASE_URL is required when NOTIFICATIONS_PROVIDER is %s", NotificationsNtfy)
		}
	case NotificationsTelegram:
		config.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
		if config.TelegramBotToken == "" {
			return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required when NOTIFICATIONS_PROVIDER is %s", NotificationsTelegram)
		}
		config.TelegramChatID, err = strconv.ParseInt(strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	default:
		return nil, fmt.Errorf("invalid NOTIFICATIONS_PROVIDER %q", config.NotificationsProvider)
	}

	return config, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, raw)
	}
	return d, nil
}
