package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	App       AppConfig
	Log       LogConfig
	Store     StoreConfig
	DB        DBConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Directory DirectoryConfig
	Recorder  RecorderConfig
}

type AppConfig struct {
	Port    string
	Env     string
	BaseURL string
}

type LogConfig struct {
	Level string
}

type StoreConfig struct {
	Driver string // postgres | sqlite
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     string
	CacheTTL time.Duration
}

// Enabled reports whether a Redis host has been configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type AuthConfig struct {
	APIKeys     map[string]string // API key -> owner ID
	OwnerHeader string            // trusted gateway header, used when no API keys are configured
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

type DirectoryConfig struct {
	MaxLinksPerOwner      int
	CodeLength            int
	MaxAllocationAttempts int
	DefaultTTL            time.Duration
	RejectExpired         bool
}

type RecorderConfig struct {
	Workers    int
	BufferSize int
}

// Load reads configuration from the given file (".env" when empty) and the
// environment. A missing file is not an error: the environment and defaults
// are enough to start.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = ".env"
	}
	v.SetConfigFile(path)
	if strings.HasSuffix(path, ".env") {
		v.SetConfigType("env")
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.Env = v.GetString("APP_ENV")
	cfg.App.BaseURL = strings.TrimRight(v.GetString("APP_BASE_URL"), "/")
	cfg.Log.Level = v.GetString("LOG_LEVEL")

	cfg.Store.Driver = strings.ToLower(v.GetString("STORE_DRIVER"))
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")
	cfg.SQLite.Path = v.GetString("SQLITE_PATH")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.CacheTTL = v.GetDuration("CACHE_TTL")

	// Auth config - parse API keys from comma-separated string
	// Format: key1:owner1,key2:owner2
	cfg.Auth.APIKeys = parseAPIKeys(v.GetString("API_KEYS"))
	cfg.Auth.OwnerHeader = v.GetString("AUTH_OWNER_HEADER")

	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = v.GetInt("RATE_LIMIT_BURST")

	cfg.Directory.MaxLinksPerOwner = v.GetInt("DIRECTORY_MAX_LINKS_PER_OWNER")
	cfg.Directory.CodeLength = v.GetInt("DIRECTORY_CODE_LENGTH")
	cfg.Directory.MaxAllocationAttempts = v.GetInt("DIRECTORY_MAX_ALLOCATION_ATTEMPTS")
	cfg.Directory.DefaultTTL = v.GetDuration("DIRECTORY_DEFAULT_TTL")
	cfg.Directory.RejectExpired = v.GetBool("DIRECTORY_REJECT_EXPIRED")

	cfg.Recorder.Workers = v.GetInt("RECORDER_WORKERS")
	cfg.Recorder.BufferSize = v.GetInt("RECORDER_BUFFER")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("APP_BASE_URL", "http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("SQLITE_PATH", "./data/shortlink.db")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("CACHE_TTL", time.Hour)
	v.SetDefault("AUTH_OWNER_HEADER", "X-Owner-ID")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("DIRECTORY_MAX_LINKS_PER_OWNER", 10)
	v.SetDefault("DIRECTORY_CODE_LENGTH", 6)
	v.SetDefault("DIRECTORY_MAX_ALLOCATION_ATTEMPTS", 20)
	v.SetDefault("DIRECTORY_DEFAULT_TTL", 24*time.Hour)
	v.SetDefault("DIRECTORY_REJECT_EXPIRED", false)
	v.SetDefault("RECORDER_WORKERS", 3)
	v.SetDefault("RECORDER_BUFFER", 1000)
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Directory.MaxLinksPerOwner <= 0 {
		return fmt.Errorf("DIRECTORY_MAX_LINKS_PER_OWNER must be positive, got %d", c.Directory.MaxLinksPerOwner)
	}
	if c.Directory.CodeLength < 6 || c.Directory.CodeLength > 32 {
		return fmt.Errorf("DIRECTORY_CODE_LENGTH must be between 6 and 32, got %d", c.Directory.CodeLength)
	}
	if c.Directory.MaxAllocationAttempts <= 0 {
		return fmt.Errorf("DIRECTORY_MAX_ALLOCATION_ATTEMPTS must be positive, got %d", c.Directory.MaxAllocationAttempts)
	}
	if c.Directory.DefaultTTL <= 0 {
		return fmt.Errorf("DIRECTORY_DEFAULT_TTL must be positive, got %s", c.Directory.DefaultTTL)
	}
	return nil
}

// parseAPIKeys parses comma-separated API keys in format "key1:owner1,key2:owner2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			key, owner := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if key != "" && owner != "" {
				keys[key] = owner
			}
		}
	}

	return keys
}
