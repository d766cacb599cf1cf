package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AWS_REGION", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, BackendFilesystem, cfg.Evidence.Backend)
	assert.Equal(t, 500, cfg.Detection.WindowLimit)
	assert.Equal(t, 2*time.Minute, cfg.Detection.LockTTL)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "respond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  driver: memory
evidence:
  backend: s3
  s3:
    bucket: evidence-bucket
detection:
  interval: 1m
`), 0o600))

	t.Setenv("RESPOND_SERVER_PORT", "9100")
	t.Setenv("ADMIN_API_KEY", "secret")
	t.Setenv("AWS_ROLE_ARN", "arn:aws:iam::123456789012:role/reader")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "evidence-bucket", cfg.Evidence.S3.Bucket)
	assert.Equal(t, time.Minute, cfg.Detection.Interval)
	assert.Equal(t, "secret", cfg.Auth.APIKey)
	assert.Equal(t, "arn:aws:iam::123456789012:role/reader", cfg.AWS.RoleARN)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Database:  DatabaseConfig{Driver: DriverPostgres},
			Evidence:  EvidenceConfig{Backend: BackendFilesystem, Root: "/tmp/e"},
			Detection: DetectionConfig{WindowLimit: 10},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"bad backend", func(c *Config) { c.Evidence.Backend = "gcs" }},
		{"empty root", func(c *Config) { c.Evidence.Root = "" }},
		{"s3 without bucket", func(c *Config) { c.Evidence.Backend = BackendS3 }},
		{"zero window", func(c *Config) { c.Detection.WindowLimit = 0 }},
	}
	ok := base()
	require.NoError(t, ok.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "wb", Password: "p@ss/word", Database: "workbench", SSLMode: "disable"}
	assert.Equal(t, "postgres://wb:p%40ss%2Fword@db:5432/workbench?sslmode=disable", p.DSN())
}
