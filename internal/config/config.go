// Package config loads the notebook service configuration from an optional
// YAML file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
)

// ErrInvalid is returned when the loaded configuration cannot be used.
var ErrInvalid = errors.New("config: invalid")

// Config holds configuration for the notebook binaries.
type Config struct {
	// Backend selects the storage gateway.
	// Default: "dynamodb"
	Backend string `yaml:"backend"`

	// TableName is the DynamoDB table. Required for the dynamodb backend.
	TableName string `yaml:"tableName"`

	// Region is the AWS region. Empty defers to the SDK's resolution chain.
	Region string `yaml:"region"`

	// Endpoint overrides the DynamoDB endpoint, e.g. a local DynamoDB.
	Endpoint string `yaml:"endpoint"`

	// BoltPath is the database file for the bolt backend.
	// Default: "notebook.db"
	BoltPath string `yaml:"boltPath"`

	// ListenAddr is the local HTTP server address.
	// Default: ":8080"
	ListenAddr string `yaml:"listenAddr"`

	// Log configures the logger.
	Log LogConfig `yaml:"log"`

	// OrderByCreated sorts documents, groups and notes by creation time.
	OrderByCreated bool `yaml:"orderByCreated"`

	// MaxTransactItems caps the items written by one document creation.
	// Default: 100
	// Max: 100 (DynamoDB TransactWriteItems limit)
	MaxTransactItems int `yaml:"maxTransactItems"`

	// BreakerEnabled wraps the gateway in a circuit breaker.
	BreakerEnabled bool `yaml:"breakerEnabled"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is json or console.
	// Default: "json"
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Backend:          BackendDynamoDB,
		BoltPath:         "notebook.db",
		ListenAddr:       ":8080",
		Log:              LogConfig{Level: "info", Format: "json"},
		MaxTransactItems: 100,
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// NOTEBOOK_CONFIG if set, then environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("NOTEBOOK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on c.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str("NOTEBOOK_BACKEND", &c.Backend)
	str("TABLE_NAME", &c.TableName)
	str("AWS_REGION", &c.Region)
	str("DYNAMODB_ENDPOINT", &c.Endpoint)
	str("BOLT_PATH", &c.BoltPath)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	for name, dst := range map[string]*bool{
		"ORDER_BY_CREATED": &c.OrderByCreated,
		"BREAKER_ENABLED":  &c.BreakerEnabled,
	} {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q: %w", ErrInvalid, name, v, err)
			}
			*dst = b
		}
	}

	if v, ok := lookup("MAX_TRANSACT_ITEMS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: MAX_TRANSACT_ITEMS=%q: %w", ErrInvalid, v, err)
		}
		c.MaxTransactItems = n
	}
	return nil
}

// validate fills defaults and rejects settings no backend can run with.
func (c *Config) validate() error {
	def := Default()
	c.Backend = strings.ToLower(c.Backend)
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.MaxTransactItems < 1 || c.MaxTransactItems > 100 {
		c.MaxTransactItems = def.MaxTransactItems
	}

	switch c.Backend {
	case BackendDynamoDB:
		if c.TableName == "" {
			return fmt.Errorf("%w: TABLE_NAME is required for the %s backend", ErrInvalid, BackendDynamoDB)
		}
	case BackendBolt:
		if c.BoltPath == "" {
			c.BoltPath = def.BoltPath
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	return nil
}
