package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Content   ContentConfig   `yaml:"content"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Email     EmailConfig     `yaml:"email"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// LedgerConfig contains escrow ledger gateway settings
type LedgerConfig struct {
	BaseURL     string `yaml:"base_url"`
	ContractRef string `yaml:"contract_ref"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
}

// ContentConfig contains content-addressed storage (pinning service) settings
type ContentConfig struct {
	APIURL     string `yaml:"api_url"`
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
}

// WalletConfig contains wallet gateway settings
type WalletConfig struct {
	BaseURL string `yaml:"base_url"`
}

// LifecycleConfig contains state machine cooldown settings
type LifecycleConfig struct {
	VerifyCooldownSecs  int `yaml:"verify_cooldown_seconds"`
	ResolveCooldownSecs int `yaml:"resolve_cooldown_seconds"`
}

// CatalogConfig points at the GPU catalog file
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// EmailConfig contains SendGrid settings
type EmailConfig struct {
	APIKey    string `yaml:"api_key"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	Enabled   bool   `yaml:"enabled"`
}

// JWTConfig contains session token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	SessionExpiryMins int    `yaml:"session_expiry_minutes"`
}

// RateLimitConfig contains per-client request limits
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ReconcileOpenRentals string `yaml:"reconcile_open_rentals"`
	RepublishCanonical   string `yaml:"republish_canonical"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Ledger gateway
	if val := os.Getenv("LEDGER_BASE_URL"); val != "" {
		c.Ledger.BaseURL = val
	}
	if val := os.Getenv("LEDGER_CONTRACT_REF"); val != "" {
		c.Ledger.ContractRef = val
	}

	// Content store
	if val := os.Getenv("CONTENT_API_URL"); val != "" {
		c.Content.APIURL = val
	}
	if val := os.Getenv("CONTENT_GATEWAY_URL"); val != "" {
		c.Content.GatewayURL = val
	}
	if val := os.Getenv("CONTENT_API_KEY"); val != "" {
		c.Content.APIKey = val
	}
	if val := os.Getenv("CONTENT_API_SECRET"); val != "" {
		c.Content.APISecret = val
	}

	// Wallet
	if val := os.Getenv("WALLET_BASE_URL"); val != "" {
		c.Wallet.BaseURL = val
	}

	// Email
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.APIKey = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	// Ledger validation
	if c.Ledger.BaseURL == "" {
		return fmt.Errorf("ledger base URL is required")
	}
	if c.Ledger.ContractRef == "" {
		return fmt.Errorf("ledger contract reference is required")
	}
	if c.Ledger.TimeoutSecs == 0 {
		c.Ledger.TimeoutSecs = 30
	}

	// Content store validation
	if c.Content.APIURL == "" {
		return fmt.Errorf("content store API URL is required")
	}
	if c.Content.GatewayURL == "" {
		return fmt.Errorf("content store gateway URL is required")
	}

	// Wallet validation
	if c.Wallet.BaseURL == "" {
		return fmt.Errorf("wallet base URL is required")
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.SessionExpiryMins == 0 {
		c.JWT.SessionExpiryMins = 60
	}

	// Catalog defaults
	if c.Catalog.Path == "" {
		c.Catalog.Path = "config/gpus.yaml"
	}

	// Lifecycle defaults
	if c.Lifecycle.VerifyCooldownSecs == 0 {
		c.Lifecycle.VerifyCooldownSecs = 60
	}
	if c.Lifecycle.ResolveCooldownSecs == 0 {
		c.Lifecycle.ResolveCooldownSecs = 120
	}

	// Rate limit defaults
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}

	// Scheduler defaults
	if c.Scheduler.ReconcileOpenRentals == "" {
		c.Scheduler.ReconcileOpenRentals = "0 */5 * * * *" // Every 5 minutes
	}
	if c.Scheduler.RepublishCanonical == "" {
		c.Scheduler.RepublishCanonical = "0 2 * * * *" // Hourly at :02
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// VerifyCooldown returns the verify cooldown as a duration
func (c *Config) VerifyCooldown() time.Duration {
	return time.Duration(c.Lifecycle.VerifyCooldownSecs) * time.Second
}

// ResolveCooldown returns the resolve cooldown as a duration
func (c *Config) ResolveCooldown() time.Duration {
	return time.Duration(c.Lifecycle.ResolveCooldownSecs) * time.Second
}

// SessionExpiry returns the session token lifetime as a duration
func (c *Config) SessionExpiry() time.Duration {
	return time.Duration(c.JWT.SessionExpiryMins) * time.Minute
}

// LedgerTimeout returns the ledger gateway request timeout as a duration
func (c *Config) LedgerTimeout() time.Duration {
	return time.Duration(c.Ledger.TimeoutSecs) * time.Second
}
