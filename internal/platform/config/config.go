package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/northcart/api/internal/repositories/postgres"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 120 * time.Second
	defaultDBHost         = "localhost"
	defaultDBPort         = 5432
	defaultDBSSLMode      = "disable"
	defaultMigrationsDir  = "migrations"
	defaultTokenTTL       = 24 * time.Hour
	defaultIdempotencyTTL = 24 * time.Hour
	defaultTaxRateBP      = 0
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Database postgres.Config
	Auth     AuthConfig
	Checkout CheckoutConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// AuthConfig groups credential-verification settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// CheckoutConfig tunes order-creation behaviour.
type CheckoutConfig struct {
	// TaxRateBasisPoints is the flat tax rate applied to the item subtotal,
	// expressed in basis points (100 = 1%).
	TaxRateBasisPoints int64
	IdempotencyTTL     time.Duration
}

// Load reads configuration from the environment, overlaying values from a
// local .env file when one exists.
func Load() (Config, error) {
	env, err := environment()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         lookup(env, "PORT", defaultPort),
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		Database: postgres.Config{
			Host:          lookup(env, "DB_HOST", defaultDBHost),
			User:          lookup(env, "DB_USER", "storefront"),
			Password:      lookup(env, "DB_PASSWORD", ""),
			Name:          lookup(env, "DB_NAME", "storefront"),
			SSLMode:       lookup(env, "DB_SSLMODE", defaultDBSSLMode),
			MigrationsDir: lookup(env, "DB_MIGRATIONS_DIR", defaultMigrationsDir),
		},
		Auth: AuthConfig{
			JWTSecret: lookup(env, "JWT_SECRET", ""),
			TokenTTL:  defaultTokenTTL,
		},
		Checkout: CheckoutConfig{
			TaxRateBasisPoints: defaultTaxRateBP,
			IdempotencyTTL:     defaultIdempotencyTTL,
		},
	}

	cfg.Database.Port = defaultDBPort
	if raw := lookup(env, "DB_PORT", ""); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: DB_PORT must be an integer: %w", err)
		}
		cfg.Database.Port = port
	}

	if raw := lookup(env, "SERVER_READ_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: SERVER_READ_TIMEOUT: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}
	if raw := lookup(env, "SERVER_WRITE_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: SERVER_WRITE_TIMEOUT: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}
	if raw := lookup(env, "SERVER_IDLE_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: SERVER_IDLE_TIMEOUT: %w", err)
		}
		cfg.Server.IdleTimeout = d
	}
	if raw := lookup(env, "AUTH_TOKEN_TTL", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: AUTH_TOKEN_TTL: %w", err)
		}
		cfg.Auth.TokenTTL = d
	}
	if raw := lookup(env, "CHECKOUT_TAX_RATE_BP", ""); raw != "" {
		bp, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || bp < 0 {
			return Config{}, fmt.Errorf("config: CHECKOUT_TAX_RATE_BP must be a non-negative integer")
		}
		cfg.Checkout.TaxRateBasisPoints = bp
	}
	if raw := lookup(env, "CHECKOUT_IDEMPOTENCY_TTL", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: CHECKOUT_IDEMPOTENCY_TTL: %w", err)
		}
		cfg.Checkout.IdempotencyTTL = d
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}

	return cfg, nil
}

// environment merges process env vars over the optional .env file.
func environment() (map[string]string, error) {
	values := map[string]string{}

	if file, err := os.Open(defaultEnvFile); err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", defaultEnvFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: open %s: %w", defaultEnvFile, err)
	}

	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		values[key] = value
	}
	return values, nil
}

func lookup(env map[string]string, key, fallback string) string {
	if value, ok := env[key]; ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}
