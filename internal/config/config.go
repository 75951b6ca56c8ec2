// Package config loads service settings from defaults, an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultUserAgent is sent with image downloads; some origins reject requests
// without a browser-like identification.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Config is the fully resolved service configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Vision VisionConfig `mapstructure:"vision"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// VisionConfig controls credential lookup and label detection calls.
type VisionConfig struct {
	// CredentialsEnv names the environment variable holding raw credential JSON.
	CredentialsEnv string `mapstructure:"credentials_env"`
	// CredentialsFile is used when CredentialsEnv is unset or empty.
	CredentialsFile string        `mapstructure:"credentials_file"`
	MaxResults      int           `mapstructure:"max_results"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// FetchConfig controls image downloads.
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
}

// RedisConfig enables the label cache when Addr is set.
type RedisConfig struct {
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// AuthConfig enables bearer token checks on /analyze when JWTSecret is set.
type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret"`
	JWTAudience string `mapstructure:"jwt_audience"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

type envBinding struct {
	ConfigKey string
	EnvVar    string
}

func envBindings() []envBinding {
	return []envBinding{
		{"server.addr", "SERVER_ADDR"},
		{"server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT"},
		{"vision.credentials_env", "VISION_CREDENTIALS_ENV"},
		{"vision.credentials_file", "VISION_CREDENTIALS_FILE"},
		{"vision.max_results", "VISION_MAX_RESULTS"},
		{"vision.timeout", "VISION_TIMEOUT"},
		{"fetch.timeout", "FETCH_TIMEOUT"},
		{"fetch.user_agent", "FETCH_USER_AGENT"},
		{"fetch.max_bytes", "FETCH_MAX_BYTES"},
		{"redis.addr", "REDIS_ADDR"},
		{"redis.ttl", "REDIS_TTL"},
		{"auth.jwt_secret", "JWT_SECRET"},
		{"auth.jwt_audience", "JWT_AUDIENCE"},
		{"log.level", "LOG_LEVEL"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("vision.credentials_env", "GOOGLE_CREDENTIALS_JSON")
	v.SetDefault("vision.credentials_file", "credentials/google-vision.json")
	v.SetDefault("vision.max_results", 10)
	v.SetDefault("vision.timeout", 30*time.Second)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("fetch.max_bytes", 20<<20)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_audience", "")

	v.SetDefault("log.level", "info")
}

// Load resolves the configuration. configFile may be empty, in which case
// config.yaml is looked up in the working directory and /etc/activity-check;
// a missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, binding := range envBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			return nil, fmt.Errorf("bind %s: %w", binding.EnvVar, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/activity-check")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// PORT is what most container platforms inject.
	if os.Getenv("SERVER_ADDR") == "" && !v.InConfig("server.addr") {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			v.Set("server.addr", ":"+port)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Addr == "" {
		problems = append(problems, "server.addr must not be empty")
	}
	if c.Vision.CredentialsEnv == "" && c.Vision.CredentialsFile == "" {
		problems = append(problems, "vision.credentials_env or vision.credentials_file is required")
	}
	if c.Vision.MaxResults < 0 {
		problems = append(problems, "vision.max_results must be >= 0")
	}
	if c.Fetch.MaxBytes < 0 {
		problems = append(problems, "fetch.max_bytes must be >= 0")
	}
	if c.Fetch.Timeout < 0 || c.Vision.Timeout < 0 {
		problems = append(problems, "timeouts must be >= 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
