package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	AuthModeJWT      = "jwt"
	AuthModeFirebase = "firebase"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE" envDefault:"server.log"`

	PostgresConnStr string `env:"POSTGRES_CONN_STR"`
	MongoURI        string `env:"MONGO_URI"`
	MongoDatabase   string `env:"MONGO_DATABASE" envDefault:"pingup"`
	RedisAddr       string `env:"REDIS_ADDR"`
	RedisPassword   string `env:"REDIS_PASSWORD"`

	AuthMode                string `env:"AUTH_MODE" envDefault:"jwt"`
	JWTSecret               string `env:"JWT_SECRET"`
	FirebaseCredentialsPath string `env:"FIREBASE_CREDENTIALS_PATH"`
	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCheckRevoked    bool   `env:"FIREBASE_CHECK_REVOKED" envDefault:"false"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	S3Region  string `env:"S3_REGION"`
	S3Bucket  string `env:"S3_BUCKET"`
	S3BaseURL string `env:"S3_BASE_URL"`

	RateLimitRPS          float64       `env:"RATE_LIMIT_RPS" envDefault:"20"`
	ReconcileInterval     time.Duration `env:"RECONCILE_INTERVAL" envDefault:"10m"`
	SchedulerPollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL" envDefault:"1s"`
	UnreadCacheTTL        time.Duration `env:"UNREAD_CACHE_TTL" envDefault:"15s"`
}

// Load reads .env when present, parses the environment into a Config and
// validates it for serving
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse is Load without the serving checks, for tooling that only touches storage
func Parse() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthModeJWT, AuthModeFirebase:
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeJWT, AuthModeFirebase, c.AuthMode)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable not set")
	}
	if c.AuthMode == AuthModeFirebase && c.FirebaseCredentialsPath == "" {
		return fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required when AUTH_MODE=firebase")
	}
	return nil
}

// MediaEnabled reports whether S3 uploads are configured
func (c *Config) MediaEnabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
