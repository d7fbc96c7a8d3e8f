package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen       string           `yaml:"listen"`
	Environment  string           `yaml:"environment"` // "development" or "production"
	DatabasePath string           `yaml:"database_path"`
	RedisAddr    string           `yaml:"redis_addr"`
	Session      SessionConfig    `yaml:"session"`
	OTP          OTPConfig        `yaml:"otp"`
	Authsignal   AuthsignalConfig `yaml:"authsignal"`
	Google       GoogleConfig     `yaml:"google"`
	CORS         CORSConfig       `yaml:"cors"`
	RateLimit    RateLimitConfig  `yaml:"rate_limit"`
	Logs         LogsConfig       `yaml:"logs"`
	TLS          TLSConfig        `yaml:"tls"`
}

type SessionConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Secret    string        `yaml:"secret"`
	Transport string        `yaml:"transport"` // "bearer" (default) or "cookie"
}

type OTPConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// AuthsignalConfig configures the optional external challenge provider.
// Delegation is enabled only when APISecret is set.
type AuthsignalConfig struct {
	APIURL    string        `yaml:"api_url"`
	APISecret string        `yaml:"api_secret"`
	Timeout   time.Duration `yaml:"timeout"`
}

type GoogleConfig struct {
	ClientID string `yaml:"client_id"` // audience for federated id-token validation
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type LogsConfig struct {
	Retention time.Duration `yaml:"retention"`
}

type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

var C Config

// IsProduction reports whether the server runs in production mode.
// Development-only behavior (echoing issued passcodes) keys off this.
func IsProduction() bool {
	return C.Environment == "production"
}

func Load() error {
	// Defaults
	C = Config{
		Listen:       ":8080",
		Environment:  "development",
		DatabasePath: "app.db",
		RedisAddr:    "localhost:6379",
		Session: SessionConfig{
			Timeout:   24 * time.Hour,
			Transport: "bearer",
		},
		OTP: OTPConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 3,
		},
		Authsignal: AuthsignalConfig{
			APIURL:  "https://signal.authsignal.com/v1",
			Timeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   time.Minute,
		},
		Logs: LogsConfig{
			Retention: 48 * time.Hour,
		},
	}

	// Load from YAML if exists
	if data, err := os.ReadFile("config.yaml"); err == nil {
		if err := yaml.Unmarshal(data, &C); err != nil {
			return err
		}
	}

	// Environment overrides
	if v := os.Getenv("LISTEN"); v != "" {
		C.Listen = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		C.Environment = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		C.DatabasePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		C.RedisAddr = v
	}
	if v := os.Getenv("SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			C.Session.Timeout = d
		}
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		C.Session.Secret = v
	}
	if v := os.Getenv("SESSION_TRANSPORT"); v != "" {
		C.Session.Transport = v
	}
	if v := os.Getenv("OTP_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			C.OTP.TTL = d
		}
	}
	if v := os.Getenv("OTP_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			C.OTP.MaxAttempts = n
		}
	}
	if v := os.Getenv("AUTHSIGNAL_API_URL"); v != "" {
		C.Authsignal.APIURL = v
	}
	if v := os.Getenv("AUTHSIGNAL_API_SECRET"); v != "" {
		C.Authsignal.APISecret = v
	}
	if v := os.Getenv("AUTHSIGNAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			C.Authsignal.Timeout = d
		}
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		C.Google.ClientID = v
	}
	if v := os.Getenv("TLS_ENABLED"); v == "true" {
		C.TLS.Enabled = true
	}
	if v := os.Getenv("TLS_CERT"); v != "" {
		C.TLS.Cert = v
	}
	if v := os.Getenv("TLS_KEY"); v != "" {
		C.TLS.Key = v
	}

	return C.validate()
}

// validate rejects configurations that would fail at request time.
// Provider and session settings are checked at startup, never ad hoc per call.
func (c *Config) validate() error {
	if c.Session.Transport != "bearer" && c.Session.Transport != "cookie" {
		return fmt.Errorf("invalid session transport %q (use \"bearer\" or \"cookie\")", c.Session.Transport)
	}
	if c.OTP.MaxAttempts <= 0 {
		return fmt.Errorf("otp max_attempts must be positive")
	}
	if c.OTP.TTL <= 0 {
		return fmt.Errorf("otp ttl must be positive")
	}
	if c.Authsignal.APISecret != "" && c.Authsignal.APIURL == "" {
		return fmt.Errorf("authsignal api_url required when api_secret is set")
	}
	if c.Authsignal.Timeout <= 0 {
		c.Authsignal.Timeout = 5 * time.Second
	}
	return nil
}
