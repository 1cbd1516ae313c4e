package config

import (
	"fmt"
	"strings"
	"time"

	apperrors "storage-sync-worker/internal/shared/errors"

	"github.com/caarlos0/env/v6"
)

// StorageOptions describes where documents are read from and mirrored to.
type StorageOptions struct {
	SourceConnection string   `env:"SOURCE_DATABASE_CONNECTION" json:"-"`
	TargetConnection string   `env:"TARGET_DATABASE_CONNECTION" json:"-"`
	SourceDatabase   string   `env:"SOURCE_DATABASE" json:"source_database"`
	TargetDatabase   string   `env:"TARGET_DATABASE" json:"target_database"`
	CollectionNames  []string `env:"COLLECTION_NAMES" envSeparator:"," json:"collection_names"`
	MaxPoolSize      uint64   `env:"MAX_POOL_SIZE" envDefault:"100" json:"max_pool_size"`
}

// TimingOptions holds the connection timeouts and loop delays.
type TimingOptions struct {
	ConnectTimeoutSeconds             int `env:"CONNECT_TIMEOUT_SECONDS" envDefault:"30" json:"connect_timeout_seconds"`
	ServerSelectionTimeoutSeconds     int `env:"SERVER_SELECTION_TIMEOUT_SECONDS" envDefault:"60" json:"server_selection_timeout_seconds"`
	DelayBetweenSyncAttemptsSeconds   int `env:"DELAY_BETWEEN_SYNC_ATTEMPTS_SECONDS" envDefault:"5" json:"delay_between_sync_attempts_seconds"`
	DelayBetweenDeleteAttemptsSeconds int `env:"DELAY_BETWEEN_DELETE_ATTEMPTS_SECONDS" envDefault:"30" json:"delay_between_delete_attempts_seconds"`
	DelayBetweenCleanupMinutes        int `env:"DELAY_BETWEEN_CLEANUP_MINUTES" envDefault:"5" json:"delay_between_cleanup_minutes"`
}

// ConnectTimeout is the driver connect timeout.
func (t TimingOptions) ConnectTimeout() time.Duration {
	return time.Duration(t.ConnectTimeoutSeconds) * time.Second
}

// ServerSelectionTimeout is the driver server selection timeout.
func (t TimingOptions) ServerSelectionTimeout() time.Duration {
	return time.Duration(t.ServerSelectionTimeoutSeconds) * time.Second
}

// DelayBetweenSyncAttempts is the wait before reopening a failed change feed.
func (t TimingOptions) DelayBetweenSyncAttempts() time.Duration {
	return time.Duration(t.DelayBetweenSyncAttemptsSeconds) * time.Second
}

// DelayBetweenDeleteAttempts is the wait before retrying a failed pruning cycle.
func (t TimingOptions) DelayBetweenDeleteAttempts() time.Duration {
	return time.Duration(t.DelayBetweenDeleteAttemptsSeconds) * time.Second
}

// DelayBetweenCleanup is the idle time between two pruning cycles.
func (t TimingOptions) DelayBetweenCleanup() time.Duration {
	return time.Duration(t.DelayBetweenCleanupMinutes) * time.Minute
}

// RetentionOptions controls pruning of outdated source records.
type RetentionOptions struct {
	Enabled            bool   `env:"PRUNE_ENABLED" envDefault:"true" json:"enabled"`
	DateField          string `env:"PRUNE_DATE_FIELD" envDefault:"timestamp" json:"date_field"`
	DateFormat         string `env:"PRUNE_DATE_FORMAT" envDefault:"unix_ms" json:"date_format"`
	MaxDataAliveInDays int    `env:"MAX_DATA_ALIVE_IN_DAYS" envDefault:"620" json:"max_data_alive_in_days"`
	DeleteBunchSize    int64  `env:"DELETE_BUNCH_SIZE" envDefault:"50" json:"delete_bunch_size"`
}

// ReplicationOptions controls how change events are applied.
type ReplicationOptions struct {
	DuplicateInsertPolicy string `env:"DUPLICATE_INSERT_POLICY" envDefault:"skip" json:"duplicate_insert_policy"`
}

// CheckpointOptions controls persistence of change stream resume tokens.
type CheckpointOptions struct {
	Backend    string `env:"CHECKPOINT_BACKEND" envDefault:"none" json:"backend"`
	Interval   int    `env:"CHECKPOINT_INTERVAL" envDefault:"1" json:"interval"`
	Collection string `env:"CHECKPOINT_COLLECTION" envDefault:"_sync_checkpoints" json:"collection"`
}

// RedisConfig holds the connection settings for the redis checkpoint backend.
type RedisConfig struct {
	Addr            string `env:"REDIS_ADDR" envDefault:"localhost:6379" json:"addr"`
	Password        string `env:"REDIS_PASSWORD" json:"-"`
	Database        int    `env:"REDIS_DB" envDefault:"0" json:"database"`
	KeyPrefix       string `env:"REDIS_KEY_PREFIX" envDefault:"storage-sync" json:"key_prefix"`
	PoolSize        int    `env:"REDIS_POOL_SIZE" envDefault:"10" json:"pool_size"`
	MaxRetries      int    `env:"REDIS_MAX_RETRIES" envDefault:"3" json:"max_retries"`
	EnableTLS       bool   `env:"REDIS_TLS" envDefault:"false" json:"enable_tls"`
	ConnMaxIdleTime string `env:"REDIS_CONN_MAX_IDLE_TIME" envDefault:"30m" json:"conn_max_idle_time"`
}

// StatusConfig configures the optional HTTP status server.
type StatusConfig struct {
	Addr string `env:"STATUS_ADDR" json:"addr"`
}

// Enabled reports whether the status server should be started.
func (s StatusConfig) Enabled() bool {
	return s.Addr != ""
}

// SyncConfig is the full worker configuration. It is loaded once at start and
// not modified afterwards.
type SyncConfig struct {
	Storage     StorageOptions     `json:"storage"`
	Timing      TimingOptions      `json:"timing"`
	Retention   RetentionOptions   `json:"retention"`
	Replication ReplicationOptions `json:"replication"`
	Checkpoint  CheckpointOptions  `json:"checkpoint"`
	Redis       RedisConfig        `json:"redis"`
	Status      StatusConfig       `json:"status"`
}

// LoadConfig loads configuration from environment variables, applies defaults
// and validates the result.
func LoadConfig() (*SyncConfig, error) {
	cfg := DefaultSyncConfig()

	sections := []struct {
		name   string
		target interface{}
	}{
		{"storage", &cfg.Storage},
		{"timing", &cfg.Timing},
		{"retention", &cfg.Retention},
		{"replication", &cfg.Replication},
		{"checkpoint", &cfg.Checkpoint},
		{"redis", &cfg.Redis},
		{"status", &cfg.Status},
	}
	for _, section := range sections {
		if err := env.Parse(section.target); err != nil {
			return nil, apperrors.NewConfigurationError(
				fmt.Sprintf("failed to load %s configuration from environment", section.name)).
				WithDetail("cause", err.Error())
		}
	}

	cfg.Storage.CollectionNames = normalizeNames(cfg.Storage.CollectionNames)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultSyncConfig returns a SyncConfig with default values and no connections.
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Storage: StorageOptions{
			MaxPoolSize: DefaultMaxPoolSize,
		},
		Timing: TimingOptions{
			ConnectTimeoutSeconds:             DefaultConnectTimeoutSeconds,
			ServerSelectionTimeoutSeconds:     DefaultServerSelectionTimeoutSeconds,
			DelayBetweenSyncAttemptsSeconds:   DefaultDelayBetweenSyncAttemptsSeconds,
			DelayBetweenDeleteAttemptsSeconds: DefaultDelayBetweenDeleteAttemptsSeconds,
			DelayBetweenCleanupMinutes:        DefaultDelayBetweenCleanupMinutes,
		},
		Retention: RetentionOptions{
			Enabled:            true,
			DateField:          DefaultPruneDateField,
			DateFormat:         DateFormatUnixMillis,
			MaxDataAliveInDays: DefaultMaxDataAliveInDays,
			DeleteBunchSize:    DefaultDeleteBunchSize,
		},
		Replication: ReplicationOptions{
			DuplicateInsertPolicy: DuplicateInsertSkip,
		},
		Checkpoint: CheckpointOptions{
			Backend:    CheckpointBackendNone,
			Interval:   DefaultCheckpointInterval,
			Collection: DefaultCheckpointCollection,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			KeyPrefix:       "storage-sync",
			PoolSize:        10,
			MaxRetries:      3,
			ConnMaxIdleTime: "30m",
		},
	}
}

// Validate checks the configuration for missing or inconsistent values.
func (c *SyncConfig) Validate() error {
	ve := &validationErrors{}

	s := c.Storage
	ve.require(s.SourceConnection, "SOURCE_DATABASE_CONNECTION")
	ve.require(s.TargetConnection, "TARGET_DATABASE_CONNECTION")
	ve.require(s.SourceDatabase, "SOURCE_DATABASE")
	ve.require(s.TargetDatabase, "TARGET_DATABASE")
	if len(s.CollectionNames) == 0 {
		ve.add("COLLECTION_NAMES must list at least one collection")
	}
	seen := make(map[string]string, len(s.CollectionNames))
	for _, name := range s.CollectionNames {
		key := strings.ToLower(name)
		if prev, dup := seen[key]; dup {
			ve.add(fmt.Sprintf("COLLECTION_NAMES contains %q and %q, which collide case-insensitively", prev, name))
		}
		seen[key] = name
	}
	if s.MaxPoolSize == 0 {
		ve.add("MAX_POOL_SIZE must be positive")
	}

	t := c.Timing
	ve.positive(t.ConnectTimeoutSeconds, "CONNECT_TIMEOUT_SECONDS")
	ve.positive(t.ServerSelectionTimeoutSeconds, "SERVER_SELECTION_TIMEOUT_SECONDS")
	ve.positive(t.DelayBetweenSyncAttemptsSeconds, "DELAY_BETWEEN_SYNC_ATTEMPTS_SECONDS")
	ve.positive(t.DelayBetweenDeleteAttemptsSeconds, "DELAY_BETWEEN_DELETE_ATTEMPTS_SECONDS")
	ve.positive(t.DelayBetweenCleanupMinutes, "DELAY_BETWEEN_CLEANUP_MINUTES")

	r := c.Retention
	if r.Enabled {
		ve.require(r.DateField, "PRUNE_DATE_FIELD")
		ve.positive(r.MaxDataAliveInDays, "MAX_DATA_ALIVE_IN_DAYS")
		ve.positive(int(r.DeleteBunchSize), "DELETE_BUNCH_SIZE")
		if r.DateFormat != DateFormatUnixMillis && r.DateFormat != DateFormatDate {
			ve.add(fmt.Sprintf("PRUNE_DATE_FORMAT must be %q or %q", DateFormatUnixMillis, DateFormatDate))
		}
	}

	switch c.Replication.DuplicateInsertPolicy {
	case DuplicateInsertSkip, DuplicateInsertError:
	default:
		ve.add(fmt.Sprintf("DUPLICATE_INSERT_POLICY must be %q or %q", DuplicateInsertSkip, DuplicateInsertError))
	}

	switch c.Checkpoint.Backend {
	case CheckpointBackendNone, CheckpointBackendMongo, CheckpointBackendRedis:
	default:
		ve.add(fmt.Sprintf("CHECKPOINT_BACKEND must be one of %q, %q, %q",
			CheckpointBackendNone, CheckpointBackendMongo, CheckpointBackendRedis))
	}
	ve.positive(c.Checkpoint.Interval, "CHECKPOINT_INTERVAL")
	if c.Checkpoint.Backend == CheckpointBackendMongo {
		ve.require(c.Checkpoint.Collection, "CHECKPOINT_COLLECTION")
	}
	if c.Checkpoint.Backend == CheckpointBackendRedis {
		ve.require(c.Redis.Addr, "REDIS_ADDR")
	}

	return ve.err()
}

type validationErrors struct {
	messages []string
}

func (v *validationErrors) add(msg string) {
	v.messages = append(v.messages, msg)
}

func (v *validationErrors) require(value, name string) {
	if strings.TrimSpace(value) == "" {
		v.add(name + " is required")
	}
}

func (v *validationErrors) positive(value int, name string) {
	if value <= 0 {
		v.add(name + " must be positive")
	}
}

func (v *validationErrors) err() error {
	if len(v.messages) == 0 {
		return nil
	}
	return apperrors.NewConfigurationError("invalid configuration").
		WithDetail("validation_errors", v.messages).
		WithCause(fmt.Errorf("%w: %s", apperrors.ErrInvalidConfig, strings.Join(v.messages, "; ")))
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
