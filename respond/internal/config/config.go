// Package config provides configuration loading for the respond service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the respond service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Evidence  EvidenceConfig  `mapstructure:"evidence"`
	Detection DetectionConfig `mapstructure:"detection"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

// AuthConfig holds the admin API key. An empty key disables authentication.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig selects and configures the store.
type DatabaseConfig struct {
	Driver        string         `mapstructure:"driver"`
	MigrateOnBoot bool           `mapstructure:"migrate_on_boot"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
}

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the connection URL with credentials escaped.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     p.Host + ":" + strconv.Itoa(p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig holds Redis configuration for the detection lock
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// EvidenceConfig selects where packets and imports are stored.
type EvidenceConfig struct {
	Backend string   `mapstructure:"backend"`
	Root    string   `mapstructure:"root"`
	S3      S3Config `mapstructure:"s3"`
}

// Evidence backends.
const (
	BackendFilesystem = "filesystem"
	BackendS3         = "s3"
)

// S3Config holds the S3 evidence bucket settings.
type S3Config struct {
	Bucket               string `mapstructure:"bucket"`
	Prefix               string `mapstructure:"prefix"`
	Endpoint             string `mapstructure:"endpoint"`
	UsePathStyle         bool   `mapstructure:"use_path_style"`
	ServerSideEncryption string `mapstructure:"server_side_encryption"`
	KMSKeyID             string `mapstructure:"kms_key_id"`
}

// DetectionConfig controls detection runs.
type DetectionConfig struct {
	WindowLimit int           `mapstructure:"window_limit"`
	Interval    time.Duration `mapstructure:"interval"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

// AWSConfig holds credentials resolution settings for S3 and CloudTrail.
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	RoleARN         string `mapstructure:"role_arn"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	CloudTrail      bool   `mapstructure:"cloudtrail_enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.max_upload_bytes", 64<<20)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("auth.api_key", "")

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.migrate_on_boot", true)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "workbench")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "workbench")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("evidence.backend", BackendFilesystem)
	v.SetDefault("evidence.root", "./evidence")
	v.SetDefault("evidence.s3.bucket", "")
	v.SetDefault("evidence.s3.prefix", "")
	v.SetDefault("evidence.s3.endpoint", "")
	v.SetDefault("evidence.s3.use_path_style", false)
	v.SetDefault("evidence.s3.server_side_encryption", "")
	v.SetDefault("evidence.s3.kms_key_id", "")

	v.SetDefault("detection.window_limit", 500)
	v.SetDefault("detection.interval", "0s")
	v.SetDefault("detection.lock_ttl", "2m")

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.role_arn", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.session_token", "")
	v.SetDefault("aws.cloudtrail_enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/workbench/respond")
	}

	// Environment variables override (RESPOND_SERVER_PORT, etc.)
	v.SetEnvPrefix("RESPOND")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Conventional variable names are honored as well.
	_ = v.BindEnv("auth.api_key", "RESPOND_AUTH_API_KEY", "ADMIN_API_KEY")
	_ = v.BindEnv("aws.region", "RESPOND_AWS_REGION", "AWS_REGION")
	_ = v.BindEnv("aws.profile", "RESPOND_AWS_PROFILE", "AWS_PROFILE")
	_ = v.BindEnv("aws.role_arn", "RESPOND_AWS_ROLE_ARN", "AWS_ROLE_ARN")

	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	switch c.Evidence.Backend {
	case BackendFilesystem:
		if c.Evidence.Root == "" {
			return errors.New("evidence.root is required for the filesystem backend")
		}
	case BackendS3:
		if c.Evidence.S3.Bucket == "" {
			return errors.New("evidence.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown evidence.backend %q", c.Evidence.Backend)
	}
	if c.Detection.WindowLimit <= 0 {
		return errors.New("detection.window_limit must be positive")
	}
	return nil
}
