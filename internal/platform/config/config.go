package config

import (
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata" // CLOSURE_TIMEZONE must resolve on hosts without a zoneinfo database

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMemory   = "memory"
)

const defaultJWTSecret = "a-very-secret-key-should-be-longer-and-random"

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	StorageDriver string
	SQLitePath    string
	Port          string
	IsProduction  bool
	JWTSecret     string
	JWTIssuer     string

	// Fiscal settings
	RegisterID         string
	ClosureTime        string // "HH:MM" start of the business day
	ClosureLocation    *time.Location
	DefaultVATRate     decimal.Decimal
	InvalidOrderPolicy string // "skip" or "fail"

	RateLimit          string // ulule formatted rate, e.g. "100-M"
	CORSAllowedOrigins []string

	// Metrics are exported over OTLP/gRPC when OTLPEndpoint is set.
	OTLPEndpoint string
	OTLPInsecure bool
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PGSQL_URL", "")
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)
	v.SetDefault("SQLITE_PATH", "fiscal_journal.db")
	v.SetDefault("PORT", "8080")
	v.SetDefault("IS_PRODUCTION", false)
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("REGISTER_ID", "REG-001")
	v.SetDefault("CLOSURE_TIME", "02:00")
	v.SetDefault("CLOSURE_TIMEZONE", "Europe/Paris")
	v.SetDefault("DEFAULT_VAT_RATE", "20")
	v.SetDefault("INVALID_ORDER_POLICY", "skip")
	v.SetDefault("RATE_LIMIT", "300-M")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL:   v.GetString("PGSQL_URL"),
		StorageDriver: strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
		SQLitePath:    v.GetString("SQLITE_PATH"),
		Port:          v.GetString("PORT"),
		IsProduction:  v.GetBool("IS_PRODUCTION"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		JWTIssuer:     v.GetString("JWT_ISSUER"),
		RegisterID:    v.GetString("REGISTER_ID"),
		ClosureTime:   v.GetString("CLOSURE_TIME"),
		RateLimit:     v.GetString("RATE_LIMIT"),
		OTLPEndpoint:  v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:  v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
	}

	switch cfg.StorageDriver {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("PGSQL_URL is required when STORAGE_DRIVER=%s", StoragePostgres)
		}
	case StorageSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required when STORAGE_DRIVER=%s", StorageSQLite)
		}
	case StorageMemory:
		log.Println("Warning: STORAGE_DRIVER=memory. The legal journal will not survive a restart.")
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}

	if cfg.JWTSecret == "" || cfg.JWTSecret == defaultJWTSecret {
		if cfg.IsProduction {
			return nil, fmt.Errorf("JWT_SECRET must be set in production")
		}
		cfg.JWTSecret = defaultJWTSecret
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}

	if strings.TrimSpace(cfg.RegisterID) == "" {
		return nil, fmt.Errorf("REGISTER_ID must not be empty")
	}

	if _, err := time.Parse("15:04", cfg.ClosureTime); err != nil {
		return nil, fmt.Errorf("invalid CLOSURE_TIME %q, expected HH:MM: %w", cfg.ClosureTime, err)
	}

	loc, err := time.LoadLocation(v.GetString("CLOSURE_TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOSURE_TIMEZONE: %w", err)
	}
	cfg.ClosureLocation = loc

	rate, err := decimal.NewFromString(v.GetString("DEFAULT_VAT_RATE"))
	if err != nil || rate.IsNegative() {
		return nil, fmt.Errorf("invalid DEFAULT_VAT_RATE %q", v.GetString("DEFAULT_VAT_RATE"))
	}
	cfg.DefaultVATRate = rate

	cfg.InvalidOrderPolicy = strings.ToLower(strings.TrimSpace(v.GetString("INVALID_ORDER_POLICY")))
	if cfg.InvalidOrderPolicy != "skip" && cfg.InvalidOrderPolicy != "fail" {
		return nil, fmt.Errorf("invalid INVALID_ORDER_POLICY %q, expected skip or fail", cfg.InvalidOrderPolicy)
	}

	for _, origin := range strings.Split(v.GetString("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	return cfg, nil
}
