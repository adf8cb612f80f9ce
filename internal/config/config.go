// Package config loads codebuddy's configuration.
//
// Sources, lowest precedence first:
//
//	defaults → codebuddy.yaml (./ or $HOME/.codebuddy/) → CODEBUDDY_* env vars → legacy env vars
//
// Nested keys map to env vars by upper-casing and replacing dots with
// underscores: server.port is CODEBUDDY_SERVER_PORT. The legacy names
// (PORT, DB_PATH, JWT_SECRET, ...) are still honoured for old deployments.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// BaseURL is the public address used in emailed links.
	BaseURL         string        `mapstructure:"base_url"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type GitHubConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	CallbackURL  string `mapstructure:"callback_url"`
}

// Enabled reports whether GitHub login is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// TokenExpiry applies to emailed verification and reset links.
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
	GitHub      GitHubConfig  `mapstructure:"github"`
}

type ValidatorConfig struct {
	// Backend is "process" (goja in a killable child process), "docker",
	// or "goja" (in-process; interrupts are cooperative, so only for
	// development and tests).
	Backend       string        `mapstructure:"backend"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxTimeout    time.Duration `mapstructure:"max_timeout"`
	MaxConcurrent int64         `mapstructure:"max_concurrent"`
	MaxLogLines   int           `mapstructure:"max_log_lines"`
	// MaxMemory caps each child process of the process backend, in bytes.
	MaxMemory     int64         `mapstructure:"max_memory"`
}

type Judge0Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Host         string        `mapstructure:"host"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
}

type DockerConfig struct {
	// Languages lists the runtimes to pool containers for: javascript, python.
	Languages []string      `mapstructure:"languages"`
	PoolSize  int           `mapstructure:"pool_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type ExecutorConfig struct {
	// Backend is "judge0", "docker" or "none".
	Backend string       `mapstructure:"backend"`
	Judge0  Judge0Config `mapstructure:"judge0"`
	Docker  DockerConfig `mapstructure:"docker"`
}

type ChatConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
	MaxAttempts int     `mapstructure:"max_attempts"`
}

// Enabled reports whether the tutor endpoints should be mounted.
func (c ChatConfig) Enabled() bool {
	return c.APIKey != ""
}

type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
	// RedisAddr selects the shared redis limiter; empty means in-memory.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Prefix        string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MailConfig struct {
	From string `mapstructure:"from"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Chat      ChatConfig      `mapstructure:"chat"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
	Mail      MailConfig      `mapstructure:"mail"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

var defaults = map[string]any{
	"server.port":             8080,
	"server.base_url":         "http://localhost:8080",
	"server.secure_cookies":   false,
	"server.allowed_origins":  []string{},
	"server.shutdown_timeout": 30 * time.Second,

	"storage.db_path": "data/codebuddy.db",

	"auth.jwt_secret":           "",
	"auth.session_ttl":          24 * time.Hour,
	"auth.token_expiry":         24 * time.Hour,
	"auth.github.client_id":     "",
	"auth.github.client_secret": "",
	"auth.github.callback_url":  "",

	"validator.backend":        "process",
	"validator.timeout":        5 * time.Second,
	"validator.max_timeout":    30 * time.Second,
	"validator.max_concurrent": 8,
	"validator.max_log_lines":  100,
	"validator.max_memory":     256 << 20,

	"executor.backend":              "judge0",
	"executor.judge0.base_url":      "https://judge0-ce.p.rapidapi.com",
	"executor.judge0.api_key":       "",
	"executor.judge0.host":          "",
	"executor.judge0.poll_interval": 2 * time.Second,
	"executor.judge0.max_wait":      30 * time.Second,
	"executor.docker.languages":     []string{"javascript", "python"},
	"executor.docker.pool_size":     2,
	"executor.docker.timeout":       5 * time.Second,

	"chat.base_url":     "https://api.openai.com/v1/",
	"chat.api_key":      "",
	"chat.model":        "gpt-3.5-turbo",
	"chat.temperature":  0.4,
	"chat.top_p":        1.0,
	"chat.max_tokens":   500,
	"chat.max_attempts": 3,

	"ratelimit.limit":          4,
	"ratelimit.window":         10 * time.Second,
	"ratelimit.redis_addr":     "",
	"ratelimit.redis_password": "",
	"ratelimit.redis_db":       0,
	"ratelimit.prefix":         "codebuddy:ratelimit",

	"log.level":  "info",
	"log.format": "text",

	"mail.from": "CodeBuddy <no-reply@codebuddy.local>",
}

// legacyEnv are the variable names older deployments set.
var legacyEnv = map[string][]string{
	"server.port":               {"PORT"},
	"storage.db_path":           {"DB_PATH"},
	"auth.jwt_secret":           {"JWT_SECRET"},
	"auth.github.client_id":     {"GITHUB_CLIENT_ID"},
	"auth.github.client_secret": {"GITHUB_CLIENT_SECRET"},
	"auth.github.callback_url":  {"GITHUB_CALLBACK_URL"},
	"chat.api_key":              {"OPENAI_API_KEY"},
	"executor.judge0.api_key":   {"REACT_APP_RAPID_API_KEY", "RAPID_API_KEY"},
	"ratelimit.redis_addr":      {"REDIS_ADDR"},
}

// Load reads the configuration. An empty path searches for codebuddy.yaml;
// a missing file is not an error then. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("CODEBUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envs := append([]string{"CODEBUDDY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("codebuddy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".codebuddy"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if cfg.Auth.GitHub.CallbackURL == "" {
		cfg.Auth.GitHub.CallbackURL = strings.TrimRight(cfg.Server.BaseURL, "/") + "/auth/github/callback"
	}
	return &cfg, nil
}

// Validate checks what the server needs to start.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage.db_path is required"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters (set CODEBUDDY_AUTH_JWT_SECRET or JWT_SECRET)"))
	}
	switch c.Validator.Backend {
	case "process", "goja", "docker":
	default:
		errs = append(errs, fmt.Errorf("validator.backend %q must be process, goja or docker", c.Validator.Backend))
	}
	switch c.Executor.Backend {
	case "judge0", "docker", "none":
	default:
		errs = append(errs, fmt.Errorf("executor.backend %q must be judge0, docker or none", c.Executor.Backend))
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("ratelimit.limit and ratelimit.window must be positive"))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger: text or JSON on w at the configured level.
func (l LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(l.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: log.format %q must be text or json", l.Format)
	}
}
