package config

// Field names shared by the sync and retention loops.
const (
	FieldID               = "_id"
	DefaultPruneDateField = "timestamp"
)

// Default timing and sizing values.
const (
	DefaultMaxPoolSize                       = 100
	DefaultConnectTimeoutSeconds             = 30
	DefaultServerSelectionTimeoutSeconds     = 60
	DefaultDelayBetweenSyncAttemptsSeconds   = 5
	DefaultDelayBetweenDeleteAttemptsSeconds = 30
	DefaultMaxDataAliveInDays                = 620
	DefaultDeleteBunchSize                   = 50
	DefaultDelayBetweenCleanupMinutes        = 5
	DefaultCheckpointInterval                = 1
)

// Age field encodings understood by the retention loop.
const (
	DateFormatUnixMillis = "unix_ms"
	DateFormatDate       = "date"
)

// Policies for an insert that collides with an existing _id in the target.
const (
	DuplicateInsertSkip  = "skip"
	DuplicateInsertError = "error"
)

// Checkpoint backends for change stream resume tokens.
const (
	CheckpointBackendNone  = "none"
	CheckpointBackendMongo = "mongo"
	CheckpointBackendRedis = "redis"
)

// DefaultCheckpointCollection holds resume tokens when the mongo backend is used.
const DefaultCheckpointCollection = "_sync_checkpoints"
