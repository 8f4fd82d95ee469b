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
	RateLimitBackendMemory   = "memory"
	RateLimitBackendDatabase = "database"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBLogSQL   bool

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GeminiAPIKey    string
	ChatModel       string
	DefaultProvider string

	ProviderTimeout  time.Duration
	RateLimitMax     int
	RateLimitWindow  time.Duration
	RateLimitBackend string

	JWTSecret     string
	GCSBucketName string

	DraftTTL        time.Duration
	DraftListLimit  int
	HistoryWindow   int
	RoutineLookback time.Duration

	DefaultLocale   string
	DefaultTimezone string
	DefaultCurrency string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Port:           getString("PORT", "3000"),
		AllowedOrigins: splitList(getString("ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:       getString("LOG_LEVEL", "info"),
		LogFormat:      getString("LOG_FORMAT", "json"),

		DBHost:     getString("DB_HOST", "localhost"),
		DBUser:     getString("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getString("DB_NAME", "tripmind"),
		DBPort:     getString("DB_PORT", "5432"),
		DBLogSQL:   getBool("DB_LOG_SQL", false, &errs),

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:    os.Getenv("GOOGLE_AI_STUDIO_API_KEY"),
		ChatModel:       getString("CHAT_MODEL", "openai/gpt-4o-mini"),
		DefaultProvider: getString("DEFAULT_PROVIDER", "openai"),

		ProviderTimeout:  getDuration("PROVIDER_TIMEOUT", 45*time.Second, &errs),
		RateLimitMax:     getInt("RATE_LIMIT_MAX", 30, &errs),
		RateLimitWindow:  getDuration("RATE_LIMIT_WINDOW", time.Minute, &errs),
		RateLimitBackend: strings.ToLower(getString("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		GCSBucketName: os.Getenv("GCS_BUCKET_NAME"),

		DraftTTL:        getDuration("DRAFT_TTL", 72*time.Hour, &errs),
		DraftListLimit:  getInt("DRAFT_LIST_LIMIT", 5, &errs),
		HistoryWindow:   getInt("HISTORY_WINDOW", 10, &errs),
		RoutineLookback: getDuration("ROUTINE_LOOKBACK", 30*24*time.Hour, &errs),

		DefaultLocale:   getString("DEFAULT_LOCALE", "en-US"),
		DefaultTimezone: getString("DEFAULT_TIMEZONE", "UTC"),
		DefaultCurrency: getString("DEFAULT_CURRENCY", "USD"),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	// Moderation and the audio capabilities only exist on the OpenAI provider.
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is not set"))
	}
	switch c.DefaultProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("DEFAULT_PROVIDER is openai but OPENAI_API_KEY is not set"))
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("DEFAULT_PROVIDER is gemini but GOOGLE_AI_STUDIO_API_KEY is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("DEFAULT_PROVIDER must be openai or gemini, got %q", c.DefaultProvider))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.RateLimitMax <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be positive"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.RateLimitBackend != RateLimitBackendMemory && c.RateLimitBackend != RateLimitBackendDatabase {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be %s or %s", RateLimitBackendMemory, RateLimitBackendDatabase))
	}
	if c.DraftListLimit <= 0 {
		errs = append(errs, errors.New("DRAFT_LIST_LIMIT must be positive"))
	}
	if c.HistoryWindow <= 0 {
		errs = append(errs, errors.New("HISTORY_WINDOW must be positive"))
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
