package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "storage-sync-worker/internal/shared/errors"
	"storage-sync-worker/internal/shared/eventbus"
	"storage-sync-worker/internal/shared/logger"
	"storage-sync-worker/internal/shared/utils"
	"storage-sync-worker/internal/sync/domain/model"
	"storage-sync-worker/internal/sync/domain/repository"

	"github.com/juju/clock"
)

const (
	loopReplication = "replication"

	checkpointFlushTimeout = 5 * time.Second
)

// ReplicationConfig holds the collaborators of a ReplicationLoop.
type ReplicationConfig struct {
	Collection string
	Feeds      repository.FeedSource
	Dispatcher *Dispatcher
	// Checkpoints is optional. Without it the feed starts at "now" after a restart.
	Checkpoints        repository.CheckpointStore
	CheckpointInterval int
	Publisher          eventbus.Publisher
	Clock              clock.Clock
	RetryDelay         time.Duration
	Logger             logger.Logger
}

// ReplicationLoop tails the change feed of one collection and mirrors each
// event into the target database, in feed order.
type ReplicationLoop struct {
	cfg ReplicationConfig

	resumeToken model.ResumeToken
	unsaved     int
}

// NewReplicationLoop creates a loop for cfg.Collection.
func NewReplicationLoop(cfg ReplicationConfig) *ReplicationLoop {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 1
	}
	cfg.Logger = cfg.Logger.WithComponent("replication-loop")
	return &ReplicationLoop{cfg: cfg}
}

// Collection returns the source collection the loop serves.
func (l *ReplicationLoop) Collection() string {
	return l.cfg.Collection
}

// Run reopens the feed after every fault until ctx is cancelled. It only
// returns once ctx is done.
func (l *ReplicationLoop) Run(ctx context.Context) error {
	ctx = utils.WithLoop(utils.WithCollection(ctx, l.cfg.Collection), loopReplication)
	log := l.cfg.Logger.WithContext(ctx)

	l.loadCheckpoint(ctx, log)

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := l.stream(ctx, log)
		if ctx.Err() != nil {
			return nil
		}

		if apperrors.IsHistoryLost(err) && !l.resumeToken.IsZero() {
			log.WithError(err).Warn("Resume token is no longer in the oplog, restarting change feed from now")
			l.resetCheckpoint(ctx, log)
			continue
		}

		delay := l.cfg.RetryDelay
		entry := log.WithError(err).WithFields(map[string]interface{}{"delay": delay.String()})
		if apperrors.IsTransient(err) {
			entry.Error("Lost connection to change feed, retrying")
		} else {
			entry.Error("Change feed failed, retrying")
		}
		l.publish(ctx, eventbus.EventTypeFeedFault, err.Error())

		if !wait(ctx, l.cfg.Clock, delay) {
			return nil
		}
	}
}

// stream opens the feed and applies events until the feed fails or ctx is done.
func (l *ReplicationLoop) stream(ctx context.Context, log logger.Logger) error {
	feed, err := l.cfg.Feeds.Open(ctx, l.cfg.Collection, l.resumeToken)
	if err != nil {
		return apperrors.NewFeedError("failed to open change feed", err).
			WithDetail("collection", l.cfg.Collection)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointFlushTimeout)
		defer cancel()
		if err := feed.Close(closeCtx); err != nil {
			log.WithError(err).Debug("Failed to close change feed")
		}
		l.flushCheckpoint(closeCtx, log)
	}()

	log.WithFields(map[string]interface{}{"resumed": !l.resumeToken.IsZero()}).Info("Watching collection for changes")
	l.publish(ctx, eventbus.EventTypeFeedOpened, nil)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		event, err := feed.Next(ctx)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeHandler) {
				log.WithError(err).Error("Skipping change event that could not be read")
				l.publish(ctx, eventbus.EventTypeChangeFailed, err.Error())
				continue
			}
			return apperrors.NewFeedError("change feed interrupted", err).
				WithDetail("collection", l.cfg.Collection)
		}

		l.apply(ctx, log, event)
		l.recordToken(ctx, log, event.ResumeToken)
	}
}

func (l *ReplicationLoop) apply(ctx context.Context, log logger.Logger, event *model.ChangeEvent) {
	handler, ok := l.cfg.Dispatcher.Resolve(event.Kind)
	if !ok {
		log.WithFields(map[string]interface{}{"operation": event.RawOperation}).
			Warn("Unsupported change operation, skipping")
		l.publish(ctx, eventbus.EventTypeChangeSkipped, event.RawOperation)
		return
	}

	opCtx := utils.WithOperation(ctx, event.Kind.String())
	if err := applySafely(opCtx, handler, event, l.cfg.Collection); err != nil {
		log.WithError(err).WithFields(map[string]interface{}{"operation": event.Kind.String()}).
			Error("Failed to apply change event")
		l.publish(ctx, eventbus.EventTypeChangeFailed, err.Error())
		return
	}
	l.publish(ctx, eventbus.EventTypeChangeApplied, event.Kind.String())
}

// applySafely turns a handler panic into a per-event error so the feed stays open.
func applySafely(ctx context.Context, handler Handler, event *model.ChangeEvent, collection string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewHandlerError("handler panicked", fmt.Errorf("%v", r)).
				WithDetail("collection", collection).
				WithDetail("operation", event.RawOperation)
		}
	}()
	return handler.Apply(ctx, event, collection)
}

func (l *ReplicationLoop) recordToken(ctx context.Context, log logger.Logger, token model.ResumeToken) {
	if token.IsZero() {
		return
	}
	l.resumeToken = token
	l.unsaved++
	if l.unsaved >= l.cfg.CheckpointInterval {
		l.flushCheckpoint(ctx, log)
	}
}

func (l *ReplicationLoop) flushCheckpoint(ctx context.Context, log logger.Logger) {
	if l.cfg.Checkpoints == nil || l.unsaved == 0 || l.resumeToken.IsZero() {
		return
	}
	if err := l.cfg.Checkpoints.Save(ctx, l.cfg.Collection, l.resumeToken); err != nil {
		log.WithError(err).Warn("Failed to save checkpoint")
		return
	}
	l.unsaved = 0
}

func (l *ReplicationLoop) loadCheckpoint(ctx context.Context, log logger.Logger) {
	if l.cfg.Checkpoints == nil || !l.resumeToken.IsZero() {
		return
	}
	token, err := l.cfg.Checkpoints.Load(ctx, l.cfg.Collection)
	switch {
	case errors.Is(err, apperrors.ErrCheckpointNotFound):
		log.Info("No checkpoint stored, change feed starts from now")
	case err != nil:
		log.WithError(err).Warn("Failed to load checkpoint, change feed starts from now")
	default:
		l.resumeToken = token
		log.Info("Resuming change feed from checkpoint")
	}
}

func (l *ReplicationLoop) resetCheckpoint(ctx context.Context, log logger.Logger) {
	l.resumeToken = nil
	l.unsaved = 0
	if l.cfg.Checkpoints == nil {
		return
	}
	if err := l.cfg.Checkpoints.Clear(ctx, l.cfg.Collection); err != nil {
		log.WithError(err).Warn("Failed to clear checkpoint")
	}
}

func (l *ReplicationLoop) publish(ctx context.Context, eventType string, data interface{}) {
	if l.cfg.Publisher == nil {
		return
	}
	l.cfg.Publisher.PublishAndForget(ctx, eventbus.NewBasicEventWithSource(eventType, data, l.cfg.Collection))
}
