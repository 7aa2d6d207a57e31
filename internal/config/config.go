package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	BridgeRedis  = "redis"
	BridgeNats   = "nats"
	BridgeMemory = "memory"

	EnvPrefix = "GOCHAT_"
)

type Redis struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type Bridge struct {
	Backend string `yaml:"backend" env:"BACKEND"` // redis|nats|memory
	Channel string `yaml:"channel" env:"CHANNEL"`
	NatsURL string `yaml:"natsUrl" env:"NATS_URL"`
}

type Logging struct {
	Env     string `yaml:"env" env:"ENV"`         // dev|stage|prod
	Backend string `yaml:"backend" env:"BACKEND"` // std|zap
	Level   string `yaml:"level" env:"LEVEL"`
}

type Config struct {
	ServerAddr     string        `yaml:"serverAddr" env:"SERVER_ADDR"`
	DatabaseDSN    string        `yaml:"databaseDsn" env:"DATABASE_DSN"`
	SigningSecret  string        `yaml:"signingSecret" env:"SIGNING_SECRET"`
	AllowedOrigins []string      `yaml:"allowedOrigins" env:"ALLOWED_ORIGINS" envSeparator:","`
	InstanceId     string        `yaml:"instanceId" env:"INSTANCE_ID"`
	StoreTimeout   time.Duration `yaml:"storeTimeout" env:"STORE_TIMEOUT"`

	Redis   Redis   `yaml:"redis" envPrefix:"REDIS_"`
	Bridge  Bridge  `yaml:"bridge" envPrefix:"BRIDGE_"`
	Logging Logging `yaml:"logging" envPrefix:"LOG_"`

	// SigningKey is the decoded SigningSecret.
	SigningKey []byte `yaml:"-"`
}

func Default() *Config {
	return &Config{
		ServerAddr:   ":8000",
		StoreTimeout: 2 * time.Second,
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Bridge: Bridge{
			Backend: BridgeRedis,
			Channel: "MESSAGES",
			NatsURL: "nats://localhost:4222",
		},
		Logging: Logging{
			Env:   "dev",
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and GOCHAT_ prefixed environment variables, in that
// order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields, fills derived ones and decodes the
// signing secret.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return errors.New("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return errors.New("database DSN cannot be empty")
	}

	signingKey, err := decodeSigningSecret(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	switch c.Bridge.Backend {
	case BridgeRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis address cannot be empty")
		}
	case BridgeNats:
		if c.Redis.Addr == "" {
			return errors.New("redis address cannot be empty")
		}
		if c.Bridge.NatsURL == "" {
			return errors.New("nats url cannot be empty with the nats bridge")
		}
	case BridgeMemory:
	default:
		return fmt.Errorf("unknown bridge backend %q", c.Bridge.Backend)
	}

	if c.Bridge.Channel == "" {
		c.Bridge.Channel = "MESSAGES"
	}
	if c.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if c.InstanceId == "" {
		c.InstanceId = uuid.NewString()
	}

	return nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("signing secret cannot be empty")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}
