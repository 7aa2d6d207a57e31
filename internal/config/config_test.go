package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDSN    = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
	testSecret = "c29tZV9zZWNyZXQ="
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
serverAddr: ":9000"
databaseDsn: "`+testDSN+`"
signingSecret: "`+testSecret+`"
allowedOrigins:
  - http://localhost:3000
storeTimeout: 500ms
redis:
  addr: redis:6379
  db: 2
bridge:
  backend: nats
  natsUrl: nats://nats:4222
logging:
  env: prod
  level: debug
`)

	t.Setenv("GOCHAT_INSTANCE_ID", "instance-a")
	t.Setenv("GOCHAT_REDIS_PASSWORD", "hunter2")
	t.Setenv("GOCHAT_LOG_BACKEND", "zap")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, testDSN, cfg.DatabaseDSN)
	assert.Equal(t, []byte("some_secret"), cfg.SigningKey)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, BridgeNats, cfg.Bridge.Backend)
	assert.Equal(t, "MESSAGES", cfg.Bridge.Channel)
	assert.Equal(t, "instance-a", cfg.InstanceId)
	assert.Equal(t, "prod", cfg.Logging.Env)
	assert.Equal(t, "zap", cfg.Logging.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("GOCHAT_DATABASE_DSN", testDSN)
	t.Setenv("GOCHAT_SIGNING_SECRET", testSecret)
	t.Setenv("GOCHAT_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("GOCHAT_BRIDGE_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.ServerAddr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, BridgeMemory, cfg.Bridge.Backend)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.NotEmpty(t, cfg.InstanceId, "expected a generated instance id")
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "serverAddr: [unterminated"))
		assert.Error(t, err)
	})

	t.Run("bad duration in env", func(t *testing.T) {
		t.Setenv("GOCHAT_DATABASE_DSN", testDSN)
		t.Setenv("GOCHAT_SIGNING_SECRET", testSecret)
		t.Setenv("GOCHAT_STORE_TIMEOUT", "soon")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.DatabaseDSN = testDSN
		cfg.SigningSecret = testSecret
		return cfg
	}

	tcases := []struct {
		name   string
		modify func(*Config)
		err    bool
	}{
		{
			name:   "valid config",
			modify: func(*Config) {},
		},
		{
			name:   "empty address",
			modify: func(c *Config) { c.ServerAddr = "" },
			err:    true,
		},
		{
			name:   "empty DSN",
			modify: func(c *Config) { c.DatabaseDSN = "" },
			err:    true,
		},
		{
			name:   "empty signing key",
			modify: func(c *Config) { c.SigningSecret = "" },
			err:    true,
		},
		{
			name:   "unknown bridge",
			modify: func(c *Config) { c.Bridge.Backend = "kafka" },
			err:    true,
		},
		{
			name:   "nats without url",
			modify: func(c *Config) { c.Bridge.Backend = BridgeNats; c.Bridge.NatsURL = "" },
			err:    true,
		},
		{
			name:   "redis without address",
			modify: func(c *Config) { c.Redis.Addr = "" },
			err:    true,
		},
		{
			name:   "memory without redis",
			modify: func(c *Config) { c.Bridge.Backend = BridgeMemory; c.Redis.Addr = "" },
		},
		{
			name:   "zero store timeout",
			modify: func(c *Config) { c.StoreTimeout = 0 },
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.modify(cfg)

			err := cfg.Validate()
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)
			assert.NotEmpty(t, cfg.SigningKey)
			assert.NotEmpty(t, cfg.InstanceId)
		})
	}
}

func Test_decodeSigningSecret(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: testSecret,
			expectedKey:  []byte("some_secret"),
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectError:  true,
		},
		{
			name:         "empty base64 secret",
			base64Secret: "",
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedKey, key)
		})
	}
}
