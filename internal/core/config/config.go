package config

import (
	"fmt"
	"strings"
	"time"

	coreagg "github.com/aevon-lab/asof/internal/core/aggregation"
	"github.com/aevon-lab/asof/internal/core/identity"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ASOF_"

// Config represents the top-level application config plus resolved rule-loading config.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Snapshots  SnapshotsConfig  `koanf:"snapshots"`
	DynamoDB   DynamoDBConfig   `koanf:"dynamodb"`
	Engine     EngineConfig     `koanf:"engine"`
	Refresh    RefreshConfig    `koanf:"refresh"`
	Projection ProjectionConfig `koanf:"projection"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`

	// RuleLoading is populated by Load after parsing rule files.
	RuleLoading RuleLoadingConfig `koanf:"-"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

// DatabaseConfig selects the event store. Type "memory" keeps events in
// process and needs no DSN.
type DatabaseConfig struct {
	Type         string `koanf:"type"` // postgres | memory
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type SnapshotsConfig struct {
	Store       string `koanf:"store"`        // memory | postgres | dynamodb
	KeepHistory int    `koanf:"keep_history"` // older checkpoints retained per lane
}

type DynamoDBConfig struct {
	Table           string `koanf:"table"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"` // optional, e.g. localstack
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	CreateTable     bool   `koanf:"create_table"`
}

type EngineConfig struct {
	PageSize        int  `koanf:"page_size"`
	MaxPages        int  `koanf:"max_pages"`
	LaneLocking     bool `koanf:"lane_locking"`
	LockStripes     int  `koanf:"lock_stripes"`
	JoinConcurrency int  `koanf:"join_concurrency"`
}

type RefreshConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Interval    string   `koanf:"interval"` // parsed and validated on startup
	WorkerCount int      `koanf:"worker_count"`
	Lanes       []string `koanf:"lanes"` // "type/id" or "type/id<-type/id"
}

type ProjectionConfig struct {
	RulesDir     string `koanf:"rules_dir"`
	RequireRules bool   `koanf:"require_rules"`
}

type TelemetryConfig struct {
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"` // empty disables export
}

type RuleLoadingConfig struct {
	RulesDir string
	Rules    []coreagg.AggregationRule
}

// IntervalDuration returns the parsed refresh interval.
func (c RefreshConfig) IntervalDuration() (time.Duration, error) {
	return time.ParseDuration(c.Interval)
}

// ParsedLanes returns the statically configured refresh lanes.
func (c RefreshConfig) ParsedLanes() ([]identity.Lane, error) {
	lanes := make([]identity.Lane, 0, len(c.Lanes))
	for _, raw := range c.Lanes {
		lane, err := identity.ParseLane(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid refresh lane %q: %w", raw, err)
		}
		lanes = append(lanes, lane)
	}
	return lanes, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	switch c.Database.Type {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	default:
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	switch c.Snapshots.Store {
	case "memory":
	case "postgres":
		if c.Database.Type != "postgres" {
			return fmt.Errorf("snapshots.store postgres requires database.type postgres")
		}
	case "dynamodb":
		if strings.TrimSpace(c.DynamoDB.Table) == "" {
			return fmt.Errorf("dynamodb.table is required")
		}
		if strings.TrimSpace(c.DynamoDB.Region) == "" {
			return fmt.Errorf("dynamodb.region is required")
		}
		if (c.DynamoDB.AccessKeyID == "") != (c.DynamoDB.SecretAccessKey == "") {
			return fmt.Errorf("dynamodb.access_key_id and dynamodb.secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("unsupported snapshots.store %q", c.Snapshots.Store)
	}
	if c.Snapshots.KeepHistory < 0 {
		return fmt.Errorf("snapshots.keep_history must be >= 0")
	}

	if c.Engine.PageSize <= 0 {
		return fmt.Errorf("engine.page_size must be > 0")
	}
	if c.Engine.MaxPages <= 0 {
		return fmt.Errorf("engine.max_pages must be > 0")
	}
	if c.Engine.LaneLocking && c.Engine.LockStripes <= 0 {
		return fmt.Errorf("engine.lock_stripes must be > 0 when lane_locking is enabled")
	}
	if c.Engine.JoinConcurrency <= 0 {
		return fmt.Errorf("engine.join_concurrency must be > 0")
	}

	if c.Refresh.Enabled {
		interval, err := c.Refresh.IntervalDuration()
		if err != nil {
			return fmt.Errorf("invalid refresh interval %q: %w", c.Refresh.Interval, err)
		}
		if interval <= 0 {
			return fmt.Errorf("refresh interval must be > 0")
		}
		if c.Refresh.WorkerCount <= 0 {
			return fmt.Errorf("refresh.worker_count must be > 0")
		}
	}
	if _, err := c.Refresh.ParsedLanes(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Projection.RulesDir) == "" {
		return fmt.Errorf("projection.rules_dir is required")
	}

	return nil
}

// Load parses config from file + env, validates it, then loads and validates projection rules.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":              8080,
		"server.host":              "0.0.0.0",
		"server.mode":              "release",
		"database.type":            "postgres",
		"database.dsn":             "",
		"database.max_open_conns":  25,
		"database.max_idle_conns":  25,
		"database.auto_migrate":    true,
		"snapshots.store":          "postgres",
		"snapshots.keep_history":   5,
		"dynamodb.table":           "asof-snapshots",
		"dynamodb.region":          "us-east-1",
		"dynamodb.create_table":    false,
		"engine.page_size":         1000,
		"engine.max_pages":         1000,
		"engine.lane_locking":      true,
		"engine.lock_stripes":      64,
		"engine.join_concurrency":  8,
		"refresh.enabled":          false,
		"refresh.interval":         "1m",
		"refresh.worker_count":     4,
		"projection.rules_dir":     "./config/rules",
		"projection.require_rules": true,
		"telemetry.service_name":   "asofd",
		"telemetry.otlp_endpoint":  "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repo, err := coreagg.NewFileSystemRuleRepository(cfg.Projection.RulesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load projection rules: %w", err)
	}
	rules := repo.GetRules()
	if cfg.Projection.RequireRules && len(rules) == 0 {
		return nil, fmt.Errorf("no projection rules found in %q", cfg.Projection.RulesDir)
	}

	cfg.RuleLoading = RuleLoadingConfig{
		RulesDir: cfg.Projection.RulesDir,
		Rules:    rules,
	}

	return &cfg, nil
}
