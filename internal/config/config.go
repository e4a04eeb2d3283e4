package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MESSAGEHUB"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `mapstructure:"basic_config"`
	Databases   map[string]DatabaseConfig `mapstructure:"databases"`
	Redis       RedisConfig               `mapstructure:"redis"`
	Auth        AuthConfig                `mapstructure:"auth"`
	Middleware  MiddlewareConfig          `mapstructure:"middleware"`
	Logging     LoggingConfig             `mapstructure:"logging"`
	Moderation  ModerationConfig          `mapstructure:"moderation"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	GitHub      GitHubConfig              `mapstructure:"github"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

type BasicConfig struct {
	ServerAddress string `mapstructure:"server_address"`
	DBDriver      string `mapstructure:"db_driver"`

	MinWorkers        int `mapstructure:"min_workers"`
	MaxWorkers        int `mapstructure:"max_workers"`
	QueueSize         int `mapstructure:"queue_size"`
	WorkerIdleTimeout int `mapstructure:"worker_idle_timeout"` // minutes

	NotificationCleanInterval int `mapstructure:"notification_clean_interval"` // minutes
	NotificationRetention     int `mapstructure:"notification_retention"`      // hours
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DBName   string `mapstructure:"dbname"`
	Params   string `mapstructure:"params"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	SigningKey        string        `mapstructure:"signing_key"`
	Issuer            string        `mapstructure:"issuer"`
	AccessTTL         time.Duration `mapstructure:"access_ttl"`
	RefreshTTL        time.Duration `mapstructure:"refresh_ttl"`
	BcryptCost        int           `mapstructure:"bcrypt_cost"`
	PasswordMinLength int           `mapstructure:"password_min_length"`
}

type MiddlewareConfig struct {
	TimeWindowEnabled bool     `mapstructure:"time_window_enabled"`
	TimeWindowStart   string   `mapstructure:"time_window_start"`
	TimeWindowEnd     string   `mapstructure:"time_window_end"`
	RateLimit         int      `mapstructure:"rate_limit"`
	RateWindowSeconds int      `mapstructure:"rate_window_seconds"`
	RateLimitedPaths  []string `mapstructure:"rate_limited_paths"`
	RequestLog        LogFile  `mapstructure:"request_log"`
}

// LogFile describes a rotating log file.
type LogFile struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

type LoggingConfig struct {
	Service   string `mapstructure:"service"`
	Env       string `mapstructure:"env"`
	Backend   string `mapstructure:"backend"`
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

type ModerationConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	BannedWords []string `mapstructure:"banned_words"`
	LLMProvider string   `mapstructure:"llm_provider"`
	LLMModel    string   `mapstructure:"llm_model"`
}

type GitHubConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateWindow returns the configured sliding window length.
func (m MiddlewareConfig) RateWindow() time.Duration {
	return time.Duration(m.RateWindowSeconds) * time.Second
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing file is tolerated; defaults and MESSAGEHUB_* variables still apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(absPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", absPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize(baseDir string) error {
	driver := strings.ToLower(c.BasicConfig.DBDriver)
	c.BasicConfig.DBDriver = driver
	dbCfg, ok := c.Databases[driver]
	if !ok {
		return fmt.Errorf("database config for %s not found", driver)
	}
	if (driver == "sqlite3" || driver == "sqlite") && dbCfg.DSN != "" && dbCfg.DSN != ":memory:" &&
		!strings.HasPrefix(dbCfg.DSN, "file:") && !filepath.IsAbs(dbCfg.DSN) {
		dbCfg.DSN = filepath.Join(baseDir, dbCfg.DSN)
		c.Databases[driver] = dbCfg
	}
	return nil
}

// ValidateAuth reports settings the HTTP server cannot start without.
// Tools that only touch the database skip it.
func (c *Config) ValidateAuth() error {
	if c.Auth.SigningKey == "" {
		return errors.New("auth.signing_key must be configured")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("basic_config.server_address", ":8090")
	v.SetDefault("basic_config.db_driver", "sqlite3")
	v.SetDefault("basic_config.min_workers", 2)
	v.SetDefault("basic_config.max_workers", 16)
	v.SetDefault("basic_config.queue_size", 256)
	v.SetDefault("basic_config.worker_idle_timeout", 1)
	v.SetDefault("basic_config.notification_clean_interval", 60)
	v.SetDefault("basic_config.notification_retention", 24*30)

	v.SetDefault("databases.sqlite3.dsn", "data/messagehub.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.issuer", "messagehub")
	v.SetDefault("auth.access_ttl", "5m")
	v.SetDefault("auth.refresh_ttl", "24h")
	v.SetDefault("auth.bcrypt_cost", 0)
	v.SetDefault("auth.password_min_length", 8)

	v.SetDefault("middleware.time_window_enabled", true)
	v.SetDefault("middleware.time_window_start", "06:00")
	v.SetDefault("middleware.time_window_end", "21:00")
	v.SetDefault("middleware.rate_limit", 5)
	v.SetDefault("middleware.rate_window_seconds", 60)
	v.SetDefault("middleware.rate_limited_paths", []string{"/messages", "/chats/"})
	v.SetDefault("middleware.request_log.path", "requests.log")
	v.SetDefault("middleware.request_log.max_size", 10)
	v.SetDefault("middleware.request_log.max_backups", 10)
	v.SetDefault("middleware.request_log.max_age", 30)
	v.SetDefault("middleware.request_log.compress", true)

	v.SetDefault("logging.service", "messagehub")
	v.SetDefault("logging.backend", "")
	v.SetDefault("logging.level", "info")

	v.SetDefault("moderation.enabled", true)
	v.SetDefault("moderation.banned_words", []string{})

	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.timeout", "10s")
}
