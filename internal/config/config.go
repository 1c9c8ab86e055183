package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for glucolog
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Security   SecurityConfig   `mapstructure:"security" yaml:"security"`
	Nightscout NightscoutConfig `mapstructure:"nightscout" yaml:"nightscout"`
	Reminders  RemindersConfig  `mapstructure:"reminders" yaml:"reminders"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address" yaml:"address"`
	Port         int    `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`
}

// SecurityConfig holds auth settings
type SecurityConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Password     string   `mapstructure:"password" yaml:"password"`
	TokenTTL     int      `mapstructure:"token_ttl_hours" yaml:"token_ttl_hours"`
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

// NightscoutConfig holds settings for the optional CGM import
type NightscoutConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	URL       string `mapstructure:"url" yaml:"url"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
	Timeout   int    `mapstructure:"timeout" yaml:"timeout"`
}

// RemindersConfig holds the medication reminder scheduler settings
type RemindersConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	CronSpec     string `mapstructure:"cron_spec" yaml:"cron_spec"`
	OverdueAfter int    `mapstructure:"overdue_after_minutes" yaml:"overdue_after_minutes"`
}

// RateLimitConfig holds per-client API rate limiting settings
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	RPS     float64 `mapstructure:"rps" yaml:"rps"`
	Burst   int     `mapstructure:"burst" yaml:"burst"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.Set("storage.sqlite_path", filepath.Join(dataDir, "glucolog.db"))
	v.Set("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "glucolog.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (GLUCOLOG_SERVER_PORT, GLUCOLOG_SECURITY_JWT_SECRET, etc.)
	v.SetEnvPrefix("GLUCOLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("security.token_ttl_hours", 168)
	v.SetDefault("security.allow_origins", []string{"*"})

	v.SetDefault("nightscout.enabled", false)
	v.SetDefault("nightscout.timeout", 30)

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.cron_spec", "*/15 * * * *")
	v.SetDefault("reminders.overdue_after_minutes", 30)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 10)
	v.SetDefault("rate_limit.burst", 20)
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "glucolog")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "glucolog")
}

// loadEnvOverrides loads specific env vars that Viper's AutomaticEnv misses
// for keys never touched by defaults or the config file
func loadEnvOverrides(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	cfg.Security.JWTSecret = getEnv("GLUCOLOG_SECURITY_JWT_SECRET", cfg.Security.JWTSecret)
	cfg.Security.Password = getEnv("GLUCOLOG_SECURITY_PASSWORD", cfg.Security.Password)
	cfg.Nightscout.URL = getEnv("GLUCOLOG_NIGHTSCOUT_URL", cfg.Nightscout.URL)
	cfg.Nightscout.APISecret = getEnv("GLUCOLOG_NIGHTSCOUT_API_SECRET", cfg.Nightscout.APISecret)
	if cfg.Nightscout.URL != "" {
		cfg.Nightscout.Enabled = true
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if cfg.Nightscout.Enabled && cfg.Nightscout.URL == "" {
		return fmt.Errorf("nightscout.url is required when nightscout.enabled is true")
	}

	if cfg.Reminders.Enabled && cfg.Reminders.CronSpec == "" {
		return fmt.Errorf("reminders.cron_spec is required when reminders.enabled is true")
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate_limit.rps must be positive")
	}

	// Generate JWT secret if not provided
	if cfg.Security.JWTSecret == "" {
		secret, err := generateSecret(32)
		if err != nil {
			return fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		cfg.Security.JWTSecret = secret
	}

	return nil
}

func generateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WriteDefault writes a starter config file with the default settings so
// users have something to edit on first run.
func WriteDefault(path string) error {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to build default config: %w", err)
	}

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, out, 0600)
}
