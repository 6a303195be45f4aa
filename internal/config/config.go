package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// PublicOrigin is this API's externally reachable origin, used to build
	// OAuth callback URLs. Never derived from request headers.
	PublicOrigin string

	// Token signing. AuthSecrets is ordered: the first entry signs, every
	// entry verifies. A single entry matches deployments without rotation.
	AuthSecrets     []string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Cookie delivery context. FrontendOrigin decides browser vs non-browser
	// delivery; CookieDomain is the shared parent domain used in production.
	FrontendOrigin   string
	CookieDomain     string
	AuthCookieSecure bool

	// Revocation store.
	RevocationBackend   string
	RevocationRestURL   string
	RevocationRestToken string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int

	// Outbound mail. Empty SMTPHost falls back to the log mailer.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// WebAuthn relying party.
	RPID          string
	RPDisplayName string
	RPOrigin      string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", EnvDevelopment)
	authCookieSecure := environment == EnvProduction
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "taskora"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		PublicOrigin: strings.TrimRight(getenv("PUBLIC_ORIGIN", "http://localhost:8080"), "/"),

		AuthSecrets:     splitList(getenv("AUTH_JWT_SECRETS", getenv("AUTH_JWT_SECRET", ""))),
		AccessTokenTTL:  getenvDuration("AUTH_ACCESS_TTL", 15*time.Minute),
		RefreshTokenTTL: getenvDuration("AUTH_REFRESH_TTL", 7*24*time.Hour),

		FrontendOrigin:   strings.TrimSpace(getenv("FRONTEND_ORIGIN", "")),
		CookieDomain:     strings.TrimSpace(getenv("AUTH_COOKIE_DOMAIN", "")),
		AuthCookieSecure: authCookieSecure,

		RevocationBackend:   strings.ToLower(getenv("REVOCATION_BACKEND", "rest")),
		RevocationRestURL:   strings.TrimSpace(getenv("REVOCATION_REST_URL", "")),
		RevocationRestToken: strings.TrimSpace(getenv("REVOCATION_REST_TOKEN", "")),
		RedisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getenv("REDIS_PASSWORD", ""),
		RedisDB:             int(getenvInt64("REDIS_DB", 0)),

		SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
		SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "no-reply@taskora.local"),

		RPID:          getenv("WEBAUTHN_RP_ID", "localhost"),
		RPDisplayName: getenv("WEBAUTHN_RP_NAME", "Taskora"),
		RPOrigin:      getenv("WEBAUTHN_RP_ORIGIN", "http://localhost:3000"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "taskora"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLETIME", 60)),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
