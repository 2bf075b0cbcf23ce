// Package config loads and validates gatekeep configuration from a YAML
// file and GATEKEEP_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level gatekeep configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Email    EmailConfig    `mapstructure:"email"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
	SecureCookie bool          `mapstructure:"secure_cookie"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// URL returns the database connection string.
func (dc *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.User, dc.Password, dc.Host, dc.Port, dc.Database, dc.SSLMode)
}

// RedisConfig contains settings for the shared expiring cache. When Address
// is empty the in-memory store is used instead.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig contains authentication engine settings. Per-user overridable
// limits (lockout, session concurrency, rate limiting) live in
// auth.DefaultSettings, not here; these are deployment-level knobs.
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenIssuer    string        `mapstructure:"token_issuer"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PasswordMinLen int           `mapstructure:"password_min_len"`
	OTPExpiry      time.Duration `mapstructure:"otp_expiry"`
	OTPResendDelay time.Duration `mapstructure:"otp_resend_delay"`
	TOTPIssuer     string        `mapstructure:"totp_issuer"`
	// SocialLogins lists the providers enabled for social sign-in and
	// self-registration (google, facebook, github, linkedin). Per-user
	// overrides can still widen or narrow this.
	SocialLogins []string `mapstructure:"social_logins"`
	Diagnostics  bool     `mapstructure:"diagnostics"`
}

// EmailConfig contains outbound notification settings (Mailgun).
type EmailConfig struct {
	Provider string `mapstructure:"provider"` // "mailgun" or "log"
	Domain   string `mapstructure:"domain"`
	APIKey   string `mapstructure:"api_key"`
	Sender   string `mapstructure:"sender"`
}

// LoggingConfig contains zerolog settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from the file named by GATEKEEP_CONFIG (default
// gatekeep.yaml in the working directory, optional) and the environment.
func Load() (*Config, error) {
	// .env is optional; ignore absence
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GATEKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	configPath := os.Getenv("GATEKEEP_CONFIG")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("gatekeep")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.body_limit", 1<<20)
	v.SetDefault("server.secure_cookie", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gatekeep")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "gatekeep")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Keys without a meaningful default still need registering so that
	// environment-only values survive Unmarshal.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_issuer", "gatekeep")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.password_min_len", 8)
	v.SetDefault("auth.otp_expiry", 10*time.Minute)
	v.SetDefault("auth.otp_resend_delay", 60*time.Second)
	v.SetDefault("auth.totp_issuer", "Gatekeep")
	v.SetDefault("auth.social_logins", []string{})
	v.SetDefault("auth.diagnostics", false)

	v.SetDefault("email.provider", "log")
	v.SetDefault("email.domain", "")
	v.SetDefault("email.api_key", "")
	v.SetDefault("email.sender", "no-reply@localhost")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters, got %d", len(c.Auth.JWTSecret))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}
	if c.Auth.OTPExpiry <= 0 {
		return fmt.Errorf("auth.otp_expiry must be positive, got %s", c.Auth.OTPExpiry)
	}
	if c.Email.Provider == "mailgun" && (c.Email.Domain == "" || c.Email.APIKey == "") {
		return fmt.Errorf("email.domain and email.api_key are required when email.provider is mailgun")
	}
	return nil
}
