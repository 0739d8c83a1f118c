// Package config loads service configuration from VOTEBOARD_* environment
// variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name below.
const EnvPrefix = "VOTEBOARD_"

// DevSessionSecret is the fallback signing key for local development.
const DevSessionSecret = "dev-secret-key-change-in-production"

// Config is the root configuration.
type Config struct {
	Server    Server
	Log       LogConfig       `envPrefix:"LOG_"`
	Postgres  PostgresConfig  `envPrefix:"POSTGRES_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	RateLimit RateLimitConfig `envPrefix:"RATELIMIT_"`
	Identity  IdentityConfig  `envPrefix:"IDENTITY_"`
	Vote      VoteConfig      `envPrefix:"VOTE_"`
	Audit     AuditConfig     `envPrefix:"AUDIT_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `env:"ADDR" envDefault:":8080"`
	TrustProxyHeaders bool          `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

// PostgresConfig selects the SQL vote store. An empty DSN keeps votes in memory.
type PostgresConfig struct {
	DSN             string        `env:"DSN"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	Migrate         bool          `env:"MIGRATE" envDefault:"true"`
}

// RedisConfig selects the Redis rate limit and cache backends. An empty URL
// keeps both in process.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

type RateLimitConfig struct {
	IPLimit       int           `env:"IP_LIMIT" envDefault:"100"`
	IPWindow      time.Duration `env:"IP_WINDOW" envDefault:"5m"`
	UserLimit     int           `env:"USER_LIMIT" envDefault:"15"`
	UserWindow    time.Duration `env:"USER_WINDOW" envDefault:"5m"`
	ReadLimit     int           `env:"READ_LIMIT" envDefault:"300"`
	ReadWindow    time.Duration `env:"READ_WINDOW" envDefault:"5m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
}

type IdentityConfig struct {
	SessionSecret    string        `env:"SESSION_SECRET"`
	SessionIssuer    string        `env:"SESSION_ISSUER" envDefault:"voteboard"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	ProviderBaseURL  string        `env:"PROVIDER_BASE_URL" envDefault:"https://discord.com/api/v10"`
	ProviderTimeout  time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"3s"`
	RequiredServerID string        `env:"REQUIRED_SERVER_ID"`
	// RoleTiers is an ordered list of "roleID:Name:weight" entries.
	RoleTiers []string `env:"ROLE_TIERS" envSeparator:"," envDefault:"1001:MiniETH:10,1002:MegaLevel:20,1003:GigaLevel:30"`
	// SeedUsersJSON bootstraps the community directory.
	SeedUsersJSON string `env:"SEED_USERS"`
}

type VoteConfig struct {
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	TxTimeout    time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
	TxMaxRetries int           `env:"TX_MAX_ATTEMPTS" envDefault:"3"`
}

// AuditConfig enables the Kafka audit sink when Brokers is set.
type AuditConfig struct {
	BufferSize int      `env:"BUFFER_SIZE" envDefault:"1024"`
	Retain     int      `env:"RETAIN" envDefault:"10000"`
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic      string   `env:"KAFKA_TOPIC" envDefault:"voteboard.audit"`
}

// RoleTier is one parsed entry of IdentityConfig.RoleTiers.
type RoleTier struct {
	ID     string
	Name   string
	Weight int
}

// SeedUser is one entry of VOTEBOARD_IDENTITY_SEED_USERS.
type SeedUser struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	RoleIDs     []string `json:"role_ids"`
}

// Load parses the environment.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the given variables instead of the process environment when
// environment is non-nil.
func LoadFrom(environment map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Identity.SessionSecret == "" {
		cfg.Identity.SessionSecret = DevSessionSecret
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that would make the service misbehave.
func (c Config) Validate() error {
	rl := c.RateLimit
	if rl.IPLimit <= 0 || rl.UserLimit <= 0 || rl.ReadLimit <= 0 {
		return errors.New("config: rate limits must be positive")
	}
	if rl.IPWindow <= 0 || rl.UserWindow <= 0 || rl.ReadWindow <= 0 {
		return errors.New("config: rate limit windows must be positive")
	}
	if c.Vote.TxMaxRetries < 1 {
		return errors.New("config: VOTE_TX_MAX_ATTEMPTS must be at least 1")
	}
	if len(c.Identity.SessionSecret) < 16 {
		return errors.New("config: IDENTITY_SESSION_SECRET must be at least 16 bytes")
	}
	if _, err := c.Identity.ParseRoleTiers(); err != nil {
		return err
	}
	if _, err := c.Identity.ParseSeedUsers(); err != nil {
		return err
	}
	return nil
}

// ParseRoleTiers returns the tier table in configured order.
func (c IdentityConfig) ParseRoleTiers() ([]RoleTier, error) {
	tiers := make([]RoleTier, 0, len(c.RoleTiers))
	seen := make(map[string]struct{}, len(c.RoleTiers))
	for _, raw := range c.RoleTiers {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: role tier %q must be id:name:weight", raw)
		}
		id, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if id == "" || name == "" {
			return nil, fmt.Errorf("config: role tier %q has empty id or name", raw)
		}
		weight, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("config: role tier %q weight: %w", raw, err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("config: duplicate role tier id %q", id)
		}
		seen[id] = struct{}{}
		tiers = append(tiers, RoleTier{ID: id, Name: name, Weight: weight})
	}
	if len(tiers) == 0 {
		return nil, errors.New("config: at least one role tier is required")
	}
	return tiers, nil
}

// ParseSeedUsers decodes the bootstrap directory users, if any.
func (c IdentityConfig) ParseSeedUsers() ([]SeedUser, error) {
	if strings.TrimSpace(c.SeedUsersJSON) == "" {
		return nil, nil
	}
	var users []SeedUser
	if err := json.Unmarshal([]byte(c.SeedUsersJSON), &users); err != nil {
		return nil, fmt.Errorf("config: seed users: %w", err)
	}
	for _, u := range users {
		if u.ID == "" || u.DisplayName == "" {
			return nil, errors.New("config: seed users need id and display_name")
		}
	}
	return users, nil
}
