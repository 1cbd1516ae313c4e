package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storage-sync-worker/internal/shared/logger"
	syncmodule "storage-sync-worker/internal/sync"
	"storage-sync-worker/internal/sync/config"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const closeTimeout = 30 * time.Second

// Container owns the worker's connections and modules and releases them in
// reverse order on Close.
type Container struct {
	mu sync.RWMutex
	// Module instances
	SyncModule *syncmodule.SyncModule
	// Database connections
	SourceClient *mongo.Client
	TargetClient *mongo.Client
	RedisClient  *redis.Client
	// Configuration
	Config *config.SyncConfig
	// Logger
	Logger logger.Logger
}

// NewContainer creates a container for cfg.
func NewContainer(cfg *config.SyncConfig, log logger.Logger) *Container {
	return &Container{
		Config: cfg,
		Logger: log.WithComponent("container"),
	}
}

// Connect opens the source and target pools, and the Redis client when the
// redis checkpoint backend is selected. Only invalid connection settings fail;
// a store that is down at startup is reported and left to the loops' backoff.
func (c *Container) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.Config
	source, err := config.ConnectMongo(ctx, config.NewMongoClientOptions(cfg.Storage.SourceConnection, cfg.Storage, cfg.Timing))
	if err != nil {
		return fmt.Errorf("source database: %w", err)
	}
	c.SourceClient = source
	c.checkReachable(ctx, "source", cfg.Storage.SourceDatabase, func(ctx context.Context) error {
		return config.PingMongo(ctx, source)
	})

	target, err := config.ConnectMongo(ctx, config.NewMongoClientOptions(cfg.Storage.TargetConnection, cfg.Storage, cfg.Timing))
	if err != nil {
		return fmt.Errorf("target database: %w", err)
	}
	c.TargetClient = target
	c.checkReachable(ctx, "target", cfg.Storage.TargetDatabase, func(ctx context.Context) error {
		return config.PingMongo(ctx, target)
	})

	if cfg.Checkpoint.Backend == config.CheckpointBackendRedis {
		client := config.NewRedisClient(&cfg.Redis)
		c.RedisClient = client
		c.checkReachable(ctx, "redis", cfg.Redis.Addr, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return nil
}

func (c *Container) checkReachable(ctx context.Context, store, name string, ping func(context.Context) error) {
	log := c.Logger.WithFields(map[string]interface{}{"store": store, "name": name})
	pingCtx, cancel := context.WithTimeout(ctx, c.Config.Timing.ConnectTimeout())
	defer cancel()
	if err := ping(pingCtx); err != nil {
		log.WithError(err).Warn("Store is not reachable yet, sync loops will retry")
		return
	}
	log.Info("Connected to store")
}

// InitializeSync builds the sync module on the connected clients.
func (c *Container) InitializeSync(runID string, log logger.Logger) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SourceClient == nil || c.TargetClient == nil {
		return fmt.Errorf("databases must be connected before the sync module is initialized")
	}

	module, err := syncmodule.NewSyncModule(c.Config, syncmodule.Clients{
		Source: c.SourceClient,
		Target: c.TargetClient,
		Redis:  c.RedisClient,
	}, runID, log)
	if err != nil {
		return fmt.Errorf("failed to create sync module: %w", err)
	}

	c.SyncModule = module
	return nil
}

// GetSyncModule returns the sync module instance
func (c *Container) GetSyncModule() *syncmodule.SyncModule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SyncModule
}

// Cleanup disconnects every client that was opened.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	c.SyncModule = nil

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		c.RedisClient = nil
	}
	if c.TargetClient != nil {
		if err := c.TargetClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("target database: %w", err))
		}
		c.TargetClient = nil
	}
	if c.SourceClient != nil {
		if err := c.SourceClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("source database: %w", err))
		}
		c.SourceClient = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// Close gracefully releases all resources with a timeout.
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := c.Cleanup(ctx); err != nil {
		c.Logger.WithError(err).Warn("Errors while closing container")
		return err
	}
	c.Logger.Info("Container resources closed")
	return nil
}
