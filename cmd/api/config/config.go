package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port           string
	AppEnv         string
	LogLevel       string
	AllowedOrigins []string

	DBDriver   string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	SQLitePath string

	AuthJWTSecret string
	AuthJWKSURL   string

	GatewayConfigPath string
	TierSource        string
	StripeSecretKey   string

	RateLimitRPS   float64
	RateLimitBurst int

	LimiterSweepInterval time.Duration
	DBConnectTimeout     time.Duration
	ShutdownTimeout      time.Duration
}

// LoadConfig reads the optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	cfg := &Config{
		Port:              getEnv("PORT", "3000"),
		AppEnv:            getEnv("APP_ENV", "production"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		DBDriver:          getEnv("DB_DRIVER", "postgres"),
		DBHost:            os.Getenv("DB_HOST"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		DBPort:            getEnv("DB_PORT", "5432"),
		SQLitePath:        getEnv("SQLITE_PATH", "gateway.db"),
		AuthJWTSecret:     os.Getenv("AUTH_JWT_SECRET"),
		AuthJWKSURL:       os.Getenv("AUTH_JWKS_URL"),
		GatewayConfigPath: getEnv("GATEWAY_CONFIG_PATH", "gateway.toml"),
		TierSource:        getEnv("TIER_SOURCE", "db"),
		StripeSecretKey:   os.Getenv("STRIPE_SECRET_KEY"),

		LimiterSweepInterval: 10 * time.Minute,
		DBConnectTimeout:     30 * time.Second,
		ShutdownTimeout:      15 * time.Second,
	}

	var err error
	if cfg.RateLimitRPS, err = strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "1"), 64); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(getEnv("RATE_LIMIT_BURST", "5")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AuthJWTSecret == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_JWT_SECRET or AUTH_JWKS_URL must be set")
	}
	switch c.TierSource {
	case "db":
	case "stripe":
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when TIER_SOURCE=stripe")
		}
	default:
		return fmt.Errorf("unsupported TIER_SOURCE %q", c.TierSource)
	}
	if c.DBDriver == "postgres" && (c.DBHost == "" || c.DBName == "") {
		return fmt.Errorf("DB_HOST and DB_NAME are required for postgres")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
