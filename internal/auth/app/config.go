package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is loaded from the environment and an optional .env file.
type Config struct {
	Issuer string `mapstructure:"VOUCH_ISSUER"` // iss claim of session tokens

	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"` // sqlite or postgres
	DatabaseURL    string `mapstructure:"DATABASE_URL"`    // postgres DSN
	DatabaseFile   string `mapstructure:"DATABASE_FILE"`   // sqlite file

	PepperFile    string `mapstructure:"PEPPER_FILE"`
	MasterKeyPath string `mapstructure:"MASTER_KEY_PATH"` // seals TOTP secrets; ephemeral when unset

	NumKeys     int  `mapstructure:"NUM_KEYS"`     // session signing keys (1-10)
	KeyRotation bool `mapstructure:"KEY_ROTATION"` // rotate one key per housekeeping run

	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	SessionCookie string        `mapstructure:"SESSION_COOKIE"`
	SecureCookies bool          `mapstructure:"SECURE_COOKIES"`
	StepUpTTL     time.Duration `mapstructure:"STEPUP_TTL"`
	StepUpMaxAge  time.Duration `mapstructure:"STEPUP_MAX_AGE"` // 0 accepts any live step-up

	// PublicBaseURL prefixes the links in verification and reset emails.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	// Requests per minute for each limiter profile.
	RateLimitStrict   int `mapstructure:"RATELIMIT_STRICT"`
	RateLimitModerate int `mapstructure:"RATELIMIT_MODERATE"`
	RateLimitLenient  int `mapstructure:"RATELIMIT_LENIENT"`

	Env                  string        `mapstructure:"ENV"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	LogFormat            string        `mapstructure:"LOG_FORMAT"`
	Port                 int           `mapstructure:"PORT"`
	ShutdownGracePeriod  time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"`
	HousekeepingInterval time.Duration `mapstructure:"HOUSEKEEPING_INTERVAL"`
}

// LoadConfig reads .env when present, then the environment. Environment
// variables win over the file.
func LoadConfig() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("VOUCH_ISSUER", "vouch")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_FILE", "vouch.db")
	v.SetDefault("PEPPER_FILE", "pepper")
	v.SetDefault("MASTER_KEY_PATH", "")
	v.SetDefault("NUM_KEYS", 3)
	v.SetDefault("KEY_ROTATION", false)
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("SESSION_COOKIE", "vouch_session")
	v.SetDefault("SECURE_COOKIES", true)
	v.SetDefault("STEPUP_TTL", "15m")
	v.SetDefault("STEPUP_MAX_AGE", "0s")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("RATELIMIT_STRICT", 5)
	v.SetDefault("RATELIMIT_MODERATE", 20)
	v.SetDefault("RATELIMIT_LENIENT", 100)
	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("PORT", 8080)
	v.SetDefault("SHUTDOWN_GRACE_PERIOD", "10s")
	v.SetDefault("HOUSEKEEPING_INTERVAL", "1h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.DatabaseDriver = strings.ToLower(c.DatabaseDriver)
	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabaseFile == "" {
			return errors.New("config: DATABASE_FILE must be set for sqlite")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for postgres")
		}
	default:
		return fmt.Errorf("config: unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.Issuer == "" {
		return errors.New("config: VOUCH_ISSUER must be set")
	}
	if c.NumKeys < 1 || c.NumKeys > 10 {
		return errors.New("config: NUM_KEYS must be between 1 and 10")
	}
	if c.SessionTTL <= 0 || c.StepUpTTL <= 0 {
		return errors.New("config: SESSION_TTL and STEPUP_TTL must be positive")
	}
	if c.StepUpMaxAge < 0 {
		return errors.New("config: STEPUP_MAX_AGE must not be negative")
	}
	if c.RateLimitStrict < 1 || c.RateLimitModerate < 1 || c.RateLimitLenient < 1 {
		return errors.New("config: RATELIMIT_* must be at least 1")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}

	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	return nil
}

// EmailVerificationURL is the page verification links point at.
func (c Config) EmailVerificationURL() string {
	return c.PublicBaseURL + "/verify-email"
}

// PasswordResetURL is the page reset links point at.
func (c Config) PasswordResetURL() string {
	return c.PublicBaseURL + "/reset-password"
}
