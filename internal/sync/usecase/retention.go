package usecase

import (
	"context"
	"time"

	apperrors "storage-sync-worker/internal/shared/errors"
	"storage-sync-worker/internal/shared/eventbus"
	"storage-sync-worker/internal/shared/logger"
	"storage-sync-worker/internal/shared/utils"
	"storage-sync-worker/internal/sync/domain/model"
	"storage-sync-worker/internal/sync/domain/repository"

	"github.com/juju/clock"
)

const loopRetention = "retention"

// RetentionConfig holds the collaborators and limits of a RetentionLoop.
type RetentionConfig struct {
	Collection         repository.RetentionCollection
	MaxDataAliveInDays int
	DeleteBunchSize    int64
	// IdleDelay separates two pruning cycles.
	IdleDelay time.Duration
	// RetryDelay is waited before retrying a cycle that failed.
	RetryDelay time.Duration
	Publisher  eventbus.Publisher
	Clock      clock.Clock
	Logger     logger.Logger
}

// RetentionLoop deletes records older than the retention window from one
// source collection, in batches of at most DeleteBunchSize.
type RetentionLoop struct {
	cfg RetentionConfig
}

// NewRetentionLoop creates a loop over cfg.Collection.
func NewRetentionLoop(cfg RetentionConfig) *RetentionLoop {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	cfg.Logger = cfg.Logger.WithComponent("retention-loop")
	return &RetentionLoop{cfg: cfg}
}

// Collection returns the source collection the loop prunes.
func (l *RetentionLoop) Collection() string {
	return l.cfg.Collection.Name()
}

// Run prunes until ctx is cancelled. A failed cycle is retried after
// RetryDelay; a completed cycle is followed by IdleDelay.
func (l *RetentionLoop) Run(ctx context.Context) error {
	ctx = utils.WithLoop(utils.WithCollection(ctx, l.Collection()), loopRetention)
	log := l.cfg.Logger.WithContext(ctx)

	l.ensureIndex(ctx, log)

	for {
		if ctx.Err() != nil {
			return nil
		}

		result, err := l.PruneOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.WithError(err).WithFields(map[string]interface{}{
				"delay": l.cfg.RetryDelay.String(),
			}).Error("Failed to delete outdated records, retrying")
			l.publish(ctx, eventbus.EventTypePruneFault, err.Error())
			if !wait(ctx, l.cfg.Clock, l.cfg.RetryDelay) {
				return nil
			}
			continue
		}

		if result.Deleted > 0 {
			log.WithFields(map[string]interface{}{
				"rounds":  result.Rounds,
				"deleted": result.Deleted,
			}).Info("Pruning cycle finished")
		}
		if !wait(ctx, l.cfg.Clock, l.cfg.IdleDelay) {
			return nil
		}
	}
}

// PruneOnce runs a single cycle: it deletes batches of outdated records until
// none are left. The cutoff is computed once at the start of the cycle.
func (l *RetentionLoop) PruneOnce(ctx context.Context) (model.PruneResult, error) {
	var result model.PruneResult
	cutoff := model.RetentionCutoff(l.cfg.Clock.Now(), l.cfg.MaxDataAliveInDays)
	log := l.cfg.Logger.WithContext(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ids, err := l.cfg.Collection.FindExpiredIDs(ctx, cutoff, l.cfg.DeleteBunchSize)
		if err != nil {
			return result, apperrors.NewRetentionError("failed to find outdated records", err).
				WithDetail("collection", l.Collection())
		}
		if len(ids) == 0 {
			return result, nil
		}

		deleted, err := l.cfg.Collection.DeleteByIDs(ctx, ids)
		if err != nil {
			return result, apperrors.NewRetentionError("failed to delete outdated records", err).
				WithDetail("collection", l.Collection())
		}
		if deleted == 0 {
			return result, apperrors.NewRetentionError("outdated records are still present after delete", apperrors.ErrNothingDeleted).
				WithDetail("collection", l.Collection()).
				WithDetail("batch", len(ids))
		}
		result.Rounds++
		result.Deleted += deleted

		log.WithFields(map[string]interface{}{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("Deleted outdated records")
		l.publish(ctx, eventbus.EventTypeRecordsPruned, deleted)
	}
}

func (l *RetentionLoop) ensureIndex(ctx context.Context, log logger.Logger) {
	created, err := l.cfg.Collection.EnsureAgeIndex(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to ensure age index, pruning continues without it")
		return
	}
	if created {
		log.Info("Created age index for pruning")
	}
}

func (l *RetentionLoop) publish(ctx context.Context, eventType string, data interface{}) {
	if l.cfg.Publisher == nil {
		return
	}
	l.cfg.Publisher.PublishAndForget(ctx, eventbus.NewBasicEventWithSource(eventType, data, l.Collection()))
}
