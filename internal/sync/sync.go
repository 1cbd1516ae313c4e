package sync

import (
	"context"
	"fmt"

	apperrors "storage-sync-worker/internal/shared/errors"
	"storage-sync-worker/internal/shared/eventbus"
	"storage-sync-worker/internal/shared/logger"
	httpadapter "storage-sync-worker/internal/sync/adapter/http"
	mongodbpersistence "storage-sync-worker/internal/sync/adapter/persistence/mongodb"
	redispersistence "storage-sync-worker/internal/sync/adapter/persistence/redis"
	"storage-sync-worker/internal/sync/config"
	"storage-sync-worker/internal/sync/domain/repository"
	"storage-sync-worker/internal/sync/usecase"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"
)

// Clients are the connection pools shared by every loop. Redis is only needed
// for the redis checkpoint backend.
type Clients struct {
	Source *mongo.Client
	Target *mongo.Client
	Redis  *redis.Client
}

// SyncModule wires the replication and retention loops for every configured collection.
type SyncModule struct {
	Config        *config.SyncConfig
	Clients       Clients
	Orchestrator  *usecase.Orchestrator
	EventBus      *eventbus.EventBus
	Tracker       *usecase.StatusTracker
	Metrics       *usecase.Collector
	Registry      *prometheus.Registry
	StatusHandler *httpadapter.StatusHandler
	Checkpoints   repository.CheckpointStore
	Logger        logger.Logger
}

// NewSyncModule builds the module. Its errors are configuration faults and are fatal.
func NewSyncModule(cfg *config.SyncConfig, clients Clients, runID string, log logger.Logger) (*SyncModule, error) {
	return newSyncModule(cfg, clients, runID, clock.WallClock, log)
}

func newSyncModule(cfg *config.SyncConfig, clients Clients, runID string, clk clock.Clock, log logger.Logger) (*SyncModule, error) {
	if clients.Source == nil || clients.Target == nil {
		return nil, apperrors.NewConfigurationError("source and target clients are required")
	}
	log.Info("Initializing sync module...")

	sourceDB := clients.Source.Database(cfg.Storage.SourceDatabase)
	targetDB := clients.Target.Database(cfg.Storage.TargetDatabase)

	checkpoints, err := newCheckpointStore(cfg, targetDB, clients.Redis, log)
	if err != nil {
		return nil, err
	}

	bus := eventbus.NewEventBus(log)
	tracker := usecase.NewStatusTracker(cfg.Storage.CollectionNames)
	tracker.Attach(bus)
	metrics := usecase.NewMetricsCollector()
	metrics.Attach(bus)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	targets := mongodbpersistence.NewTargetCollections(targetDB, cfg.Storage.CollectionNames)
	dispatcher := usecase.NewDispatcher(targets, cfg.Replication.DuplicateInsertPolicy, log)
	feeds := mongodbpersistence.NewFeedSource(sourceDB, log)

	orchestrator := usecase.NewOrchestrator(log)
	for _, name := range cfg.Storage.CollectionNames {
		rcfg := usecase.ReplicationConfig{
			Collection:         name,
			Feeds:              feeds,
			Dispatcher:         dispatcher,
			CheckpointInterval: cfg.Checkpoint.Interval,
			Publisher:          bus,
			Clock:              clk,
			RetryDelay:         cfg.Timing.DelayBetweenSyncAttempts(),
			Logger:             log,
		}
		if checkpoints != nil {
			rcfg.Checkpoints = checkpoints
		}
		orchestrator.AddReplication(usecase.NewReplicationLoop(rcfg))

		if !cfg.Retention.Enabled {
			continue
		}
		orchestrator.AddRetention(usecase.NewRetentionLoop(usecase.RetentionConfig{
			Collection:         mongodbpersistence.NewRetentionCollection(sourceDB, name, cfg.Retention),
			MaxDataAliveInDays: cfg.Retention.MaxDataAliveInDays,
			DeleteBunchSize:    cfg.Retention.DeleteBunchSize,
			IdleDelay:          cfg.Timing.DelayBetweenCleanup(),
			RetryDelay:         cfg.Timing.DelayBetweenDeleteAttempts(),
			Publisher:          bus,
			Clock:              clk,
			Logger:             log,
		}))
	}

	m := &SyncModule{
		Config:       cfg,
		Clients:      clients,
		Orchestrator: orchestrator,
		EventBus:     bus,
		Tracker:      tracker,
		Metrics:      metrics,
		Registry:     registry,
		Checkpoints:  checkpoints,
		Logger:       log,
	}
	m.StatusHandler = httpadapter.NewStatusHandler(tracker, registry, m, runID, log)

	log.WithFields(map[string]interface{}{
		"collections": cfg.Storage.CollectionNames,
		"loops":       orchestrator.TaskCount(),
		"retention":   cfg.Retention.Enabled,
		"checkpoints": cfg.Checkpoint.Backend,
	}).Info("Sync module initialized")
	return m, nil
}

func newCheckpointStore(cfg *config.SyncConfig, targetDB *mongo.Database, redisClient *redis.Client, log logger.Logger) (repository.CheckpointStore, error) {
	switch cfg.Checkpoint.Backend {
	case config.CheckpointBackendMongo:
		return mongodbpersistence.NewCheckpointStore(targetDB, cfg.Checkpoint.Collection), nil
	case config.CheckpointBackendRedis:
		if redisClient == nil {
			return nil, apperrors.NewConfigurationError("redis checkpoint backend requires a redis client")
		}
		return redispersistence.NewCheckpointStore(redisClient, cfg.Redis.KeyPrefix, log), nil
	default:
		log.Warn("No checkpoint backend configured: changes made while the worker is stopped will not be replicated")
		return nil, nil
	}
}

// Run blocks until every loop has stopped after ctx is cancelled.
func (m *SyncModule) Run(ctx context.Context) error {
	return m.Orchestrator.Run(ctx)
}

// Serve runs the loops and, when configured, the status server until ctx is
// cancelled. A status server failure is logged and leaves the loops running.
func (m *SyncModule) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.Run(gctx)
	})
	if server := m.StatusServer(); server != nil {
		g.Go(func() error {
			if err := server.Run(gctx); err != nil {
				m.Logger.WithError(err).Error("Status server stopped, sync loops keep running")
			}
			return nil
		})
	}
	return g.Wait()
}

// StatusServer returns the status server, or nil when no address is configured.
func (m *SyncModule) StatusServer() *httpadapter.Server {
	if !m.Config.Status.Enabled() {
		return nil
	}
	return httpadapter.NewServer(m.Config.Status.Addr, m.StatusHandler, m.Logger)
}

// HealthCheck pings the source and target deployments, and Redis when it is used.
func (m *SyncModule) HealthCheck(ctx context.Context) error {
	if err := m.Clients.Source.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := m.Clients.Target.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if m.Clients.Redis != nil {
		if err := m.Clients.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
