package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultJWTSecret = "defaultsecret"
)

type Config struct {
	AppEnv   string
	APIPort  string
	LogLevel string

	JWTKey []byte
	JWTExp time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FrontendURL            string
	BackendURL             string
	GoogleClientID         string
	GoogleClientSecret     string
	AllowedRedirectSchemes []string
	CORSAllowedOrigins     []string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxBodyBytes      int64
	// TrustProxy honors X-Forwarded-For / X-Real-IP. Only enable it behind a
	// reverse proxy that overwrites those headers.
	TrustProxy bool

	LLMAPIKey            string
	LLMModel             string
	LLMBaseURL           string
	LLMTimeout           time.Duration
	LLMRequestsPerMinute int

	StatsCacheTTL   time.Duration
	StatsQueueName  string
	StatsLockPrefix string
	StatsLockTTL    time.Duration

	EarlyAccessMonths   int
	EarlyAccessEnforced bool
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the environment without touching .env files.
func FromEnv() *Config {
	frontendURL := strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5500"), "/")

	cfg := &Config{
		AppEnv:   strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		APIPort:  getEnv("API_PORT", "5001"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTKey: []byte(getEnv("JWT_SECRET", defaultJWTSecret)),
		JWTExp: time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 168)) * time.Hour,

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "user"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "preecode"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		FrontendURL:            frontendURL,
		BackendURL:             strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:5001"), "/"),
		GoogleClientID:         getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:     getEnv("GOOGLE_CLIENT_SECRET", ""),
		AllowedRedirectSchemes: getEnvAsList("ALLOWED_REDIRECT_SCHEMES", []string{"vscode://", "https://", "http://"}),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{
			frontendURL,
			"http://localhost:3000",
			"http://localhost:5001",
			"http://127.0.0.1:5500",
			"http://localhost:5500",
		}),

		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 15)) * time.Minute,
		MaxBodyBytes:      int64(getEnvAsInt("MAX_BODY_BYTES", 50*1024)),
		TrustProxy:        getEnvAsBool("TRUST_PROXY", false),

		LLMAPIKey:            strings.TrimSpace(getEnv("LLM_API_KEY", "")),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4-turbo"),
		LLMBaseURL:           getEnv("LLM_BASE_URL", ""),
		LLMTimeout:           time.Duration(getEnvAsInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
		LLMRequestsPerMinute: getEnvAsInt("LLM_REQUESTS_PER_MINUTE", 60),

		StatsCacheTTL:   time.Duration(getEnvAsInt("STATS_CACHE_TTL_SECONDS", 300)) * time.Second,
		StatsQueueName:  getEnv("STATS_QUEUE_NAME", "stats_refresh_queue"),
		StatsLockPrefix: getEnv("STATS_LOCK_PREFIX", "stats_refresh_lock:"),
		StatsLockTTL:    time.Duration(getEnvAsInt("STATS_LOCK_TTL_SECONDS", 30)) * time.Second,

		EarlyAccessMonths:   getEnvAsInt("EARLY_ACCESS_MONTHS", 3),
		EarlyAccessEnforced: getEnvAsBool("EARLY_ACCESS_ENFORCED", false),
	}

	cfg.DBConnStr = "host=" + cfg.DBHost +
		" port=" + cfg.DBPort +
		" user=" + cfg.DBUser +
		" password=" + cfg.DBPassword +
		" dbname=" + cfg.DBName +
		" sslmode=" + cfg.DBSslMode

	return cfg
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// GoogleCallbackURL must be absolute; the provider redirects the browser to it.
func (c *Config) GoogleCallbackURL() string {
	return c.BackendURL + "/api/auth/google/callback"
}

func (c *Config) Validate() error {
	var errs []error
	if !c.IsDevelopment() {
		if string(c.JWTKey) == defaultJWTSecret || len(c.JWTKey) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be set to at least 32 bytes outside development"))
		}
	}
	if c.JWTExp <= 0 {
		errs = append(errs, fmt.Errorf("JWT_EXPIRATION_HOURS must be positive, got %s", c.JWTExp))
	}
	if len(c.AllowedRedirectSchemes) == 0 {
		errs = append(errs, errors.New("ALLOWED_REDIRECT_SCHEMES must not be empty"))
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW_MINUTES must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string, fallback []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return compact(fallback)
	}
	return compact(strings.Split(valueStr, ","))
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
