// Package config reads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Token store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the whole server configuration.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	GinMode         string        `env:"GIN_MODE" envDefault:"debug"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT"`
	DBPath          string        `env:"DB_PATH" envDefault:"visitors.db"`
	TokenStore      string        `env:"TOKEN_STORE" envDefault:"sqlite"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	ContentPath     string        `env:"CONTENT_PATH"`
	CookieSecure    bool          `env:"COOKIE_SECURE"`
	AllowedOrigins  []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
	VisitRetention  time.Duration `env:"VISITOR_RETENTION" envDefault:"720h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Tab socket tuning.
	WSHeartbeat        time.Duration `env:"WS_HEARTBEAT" envDefault:"30s"`
	WSHeartbeatTimeout time.Duration `env:"WS_HEARTBEAT_TIMEOUT" envDefault:"5s"`
	WSRateInterval     time.Duration `env:"WS_RATE_INTERVAL" envDefault:"50ms"`
	WSRateBurst        int           `env:"WS_RATE_BURST" envDefault:"20"`

	// TokenStoreOpTimeout bounds each token store call.
	TokenStoreOpTimeout time.Duration `env:"TOKEN_STORE_OP_TIMEOUT" envDefault:"3s"`

	Admin   Admin  `envPrefix:"ADMIN_"`
	SMTP    SMTP   `envPrefix:"SMTP_"`
	ToEmail string `env:"TO_EMAIL"`

	// DefaultAdmin is set when debug mode filled in the development password.
	DefaultAdmin bool
}

// Admin holds the admin login settings.
type Admin struct {
	Username      string        `env:"USERNAME" envDefault:"admin"`
	Password      string        `env:"PASSWORD"`
	PasswordHash  string        `env:"PASSWORD_HASH"`
	TokenSecret   string        `env:"TOKEN_SECRET"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
	LoginBurst    int           `env:"LOGIN_BURST" envDefault:"5"`
	LoginInterval time.Duration `env:"LOGIN_INTERVAL" envDefault:"12s"`
}

// SMTP holds the contact form mail settings.
type SMTP struct {
	Host string `env:"HOST"`
	Port string `env:"PORT" envDefault:"587"`
	User string `env:"USER"`
	Pass string `env:"PASS"`
}

// MailEnabled reports whether contact mail can be sent.
func (c Config) MailEnabled() bool {
	return c.SMTP.Host != "" && c.SMTP.User != "" && c.SMTP.Pass != "" && c.ToEmail != ""
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Release reports whether gin runs in release mode.
func (c Config) Release() bool {
	return c.GinMode == "release"
}

func (c *Config) normalize() error {
	c.TokenStore = strings.ToLower(strings.TrimSpace(c.TokenStore))
	switch c.TokenStore {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: TOKEN_STORE=postgres needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown TOKEN_STORE %q", c.TokenStore)
	}

	if c.LogFormat == "" {
		c.LogFormat = "text"
		if c.Release() {
			c.LogFormat = "json"
		}
	}

	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		if c.Release() {
			return errors.New("config: ADMIN_PASSWORD or ADMIN_PASSWORD_HASH is required in release mode")
		}
		c.Admin.Password = "admin123"
		c.DefaultAdmin = true
	}
	if c.Admin.LoginBurst < 1 {
		c.Admin.LoginBurst = 1
	}
	return nil
}
