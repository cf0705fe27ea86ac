package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	BackendURL             string
	DatabaseURL            string
	BackendTimeout         time.Duration
	SessionTTL             time.Duration
	CookieSecure           bool
	LogLevel               string
	LogJSON                bool
	WhatsAppPollInterval   time.Duration
	WhatsAppRestartPoll    time.Duration
	WhatsAppMaxRetries     int
	RateLimitPerMinute     int
	RateLimitBurst         int
	UserRateLimitPerMinute int
	UserRateLimitBurst     int
	RoutePolicyFile        string
	TrustedProxies         string
}

// LoadDotEnv reads a .env file into the process environment when present.
// Variables already set win over the file.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	backendURL := strings.TrimSpace(os.Getenv("ENDPOINT_URL"))
	if backendURL == "" {
		backendURL = strings.TrimSpace(os.Getenv("NEXT_PUBLIC_ENDPOINT_URL"))
	}

	logLevel := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "info"
	}

	return Config{
		Port:                   port,
		BackendURL:             strings.TrimRight(backendURL, "/"),
		DatabaseURL:            os.Getenv("DB_DSN"),
		BackendTimeout:         readDurationSeconds("BACKEND_TIMEOUT_SECONDS", 10),
		SessionTTL:             time.Duration(readInt("SESSION_TTL_HOURS", 8)) * time.Hour,
		CookieSecure:           readBool("COOKIE_SECURE", false),
		LogLevel:               logLevel,
		LogJSON:                readBool("LOG_JSON", false),
		WhatsAppPollInterval:   readDurationSeconds("WHATSAPP_POLL_SECONDS", 2),
		WhatsAppRestartPoll:    readDurationSeconds("WHATSAPP_RESTART_POLL_SECONDS", 1),
		WhatsAppMaxRetries:     readInt("WHATSAPP_MAX_RETRIES", 3),
		RateLimitPerMinute:     readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:         readInt("RATE_LIMIT_BURST", 30),
		UserRateLimitPerMinute: readInt("USER_RATE_LIMIT_PER_MIN", 600),
		UserRateLimitBurst:     readInt("USER_RATE_LIMIT_BURST", 120),
		RoutePolicyFile:        strings.TrimSpace(os.Getenv("ROUTE_POLICY_FILE")),
		TrustedProxies:         strings.TrimSpace(os.Getenv("TRUSTED_PROXIES")),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
