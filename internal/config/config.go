package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Render   RenderConfig   `mapstructure:"render"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	InternalSecret string   `mapstructure:"internal_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ClamdAddr      string   `mapstructure:"clamd_addr"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
}

// AuthConfig contains JWT signing material and token lifetimes.
type AuthConfig struct {
	PrivateKeyPath  string        `mapstructure:"private_key_path"`
	PublicKeyPath   string        `mapstructure:"public_key_path"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// RenderConfig controls the headless-browser render pool.
type RenderConfig struct {
	PoolSize   int           `mapstructure:"pool_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	BrowserBin string        `mapstructure:"browser_bin"`
}

// LimitsConfig bounds per-user resource usage.
type LimitsConfig struct {
	MaxCVs                int `mapstructure:"max_cvs"`
	LoginRateLimitPerHour int `mapstructure:"login_rate_limit_per_hour"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr returns the host:port address of the Redis server.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "cvstudio")
	v.SetDefault("database.user", "cvstudio")
	v.SetDefault("database.password", "cvstudio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "cvstudio")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("render.pool_size", 4)
	v.SetDefault("render.job_timeout", 45*time.Second)
	v.SetDefault("limits.max_cvs", 20)
	v.SetDefault("limits.login_rate_limit_per_hour", 10)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                         "API_PORT",
		"api.internal_secret":              "INTERNAL_API_SECRET",
		"api.allowed_origins":              "ALLOWED_ORIGINS",
		"api.clamd_addr":                   "CLAMD_ADDR",
		"database.host":                    "DATABASE_HOST",
		"database.port":                    "DATABASE_PORT",
		"database.name":                    "POSTGRES_DB",
		"database.user":                    "POSTGRES_USER",
		"database.password":                "POSTGRES_PASSWORD",
		"database.sslmode":                 "DATABASE_SSLMODE",
		"redis.host":                       "REDIS_HOST",
		"redis.port":                       "REDIS_PORT",
		"minio.endpoint":                   "MINIO_ENDPOINT",
		"minio.access_key_id":              "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":          "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                    "MINIO_USE_SSL",
		"minio.bucket":                     "MINIO_BUCKET",
		"auth.private_key_path":            "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":             "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":            "JWT_ACCESS_TTL",
		"auth.refresh_token_ttl":           "JWT_REFRESH_TTL",
		"render.pool_size":                 "RENDER_POOL_SIZE",
		"render.job_timeout":               "RENDER_JOB_TIMEOUT",
		"render.browser_bin":               "RENDER_BROWSER_BIN",
		"limits.max_cvs":                   "MAX_CVS_PER_USER",
		"limits.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Render.PoolSize <= 0 {
		return errors.New("render pool size must be positive")
	}
	if cfg.Render.JobTimeout <= 0 {
		return errors.New("render job timeout must be positive")
	}
	return nil
}
