// Package config resolves cleanbook's runtime settings.
//
// Settings are layered, later layers winning:
//
//  1. Default()
//  2. a .env file, loaded into the process environment (existing
//     variables are kept)
//  3. CLEANBOOK_* environment variables
//  4. an optional YAML file
//
// Command-line flags are applied on top by internal/cli.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cleanbook/internal/schema"
)

// Backends.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// ID schemes for locally allocated ids.
const (
	IDSchemeTimestamp = "timestamp"
	IDSchemeUUID      = "uuid"
)

// Environment variable names.
const (
	EnvBackend             = "CLEANBOOK_BACKEND"
	EnvDB                  = "CLEANBOOK_DB"
	EnvRedisURL            = "CLEANBOOK_REDIS_URL"
	EnvRedisPrefix         = "CLEANBOOK_REDIS_PREFIX"
	EnvIDScheme            = "CLEANBOOK_ID_SCHEME"
	EnvServices            = "CLEANBOOK_SERVICES"
	EnvResubscribeAttempts = "CLEANBOOK_RESUBSCRIBE_ATTEMPTS"
	EnvResubscribeBackoff  = "CLEANBOOK_RESUBSCRIBE_BACKOFF"
)

// Config holds every runtime setting.
type Config struct {
	// Backend selects the medium: "local" (SQLite) or "remote" (Redis).
	Backend string `yaml:"backend"`

	// DB is the SQLite database path for the local backend.
	DB string `yaml:"db"`

	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`

	// IDScheme picks the local id allocator: "timestamp" or "uuid".
	IDScheme string `yaml:"id_scheme"`

	// Services is the bookable service catalogue.
	Services []string `yaml:"services"`

	ResubscribeAttempts int           `yaml:"resubscribe_attempts"`
	ResubscribeBackoff  time.Duration `yaml:"resubscribe_backoff"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:             BackendLocal,
		DB:                  "cleanbook.db",
		RedisURL:            "redis://localhost:6379/0",
		RedisPrefix:         "cleanbook",
		IDScheme:            IDSchemeTimestamp,
		Services:            slices.Clone(schema.DefaultServices),
		ResubscribeAttempts: 5,
		ResubscribeBackoff:  500 * time.Millisecond,
	}
}

// Load builds the configuration from defaults, the .env file at dotenv
// (skipped when missing), the environment and the YAML file at path (skipped
// when empty).
func Load(dotenv, path string) (Config, error) {
	cfg := Default()

	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides settings from CLEANBOOK_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvBackend, &c.Backend)
	str(EnvDB, &c.DB)
	str(EnvRedisURL, &c.RedisURL)
	str(EnvRedisPrefix, &c.RedisPrefix)
	str(EnvIDScheme, &c.IDScheme)

	if v, ok := lookup(EnvServices); ok && v != "" {
		c.Services = SplitList(v)
	}
	if v, ok := lookup(EnvResubscribeAttempts); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer (got %q)", EnvResubscribeAttempts, v)
		}
		c.ResubscribeAttempts = n
	}
	if v, ok := lookup(EnvResubscribeBackoff); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s must be a duration (got %q)", EnvResubscribeBackoff, v)
		}
		c.ResubscribeBackoff = d
	}
	return nil
}

// LoadFile overrides settings with the keys present in the YAML file at
// path. Unknown keys are an error.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
		if c.DB == "" {
			return fmt.Errorf("backend %q needs a database path", c.Backend)
		}
	case BackendRemote:
		if c.RedisURL == "" {
			return fmt.Errorf("backend %q needs a redis url", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendLocal, BackendRemote)
	}

	switch c.IDScheme {
	case IDSchemeTimestamp, IDSchemeUUID:
	default:
		return fmt.Errorf("unknown id scheme %q (want %s or %s)", c.IDScheme, IDSchemeTimestamp, IDSchemeUUID)
	}

	if c.ResubscribeAttempts < 0 {
		return fmt.Errorf("resubscribe attempts must not be negative")
	}
	return nil
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
