package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "storage-sync-worker/internal/shared/errors"
	"storage-sync-worker/internal/shared/logger"
	"storage-sync-worker/internal/sync/domain/model"

	goredis "github.com/redis/go-redis/v9"
)

const (
	fieldToken     = "token"
	fieldUpdatedAt = "updated_at"
)

// CheckpointStore keeps change stream resume tokens in Redis hashes, one per
// replicated collection.
type CheckpointStore struct {
	client    *goredis.Client
	keyPrefix string
	logger    logger.Logger
}

// NewCheckpointStore creates a Redis-backed checkpoint store. Keys have the
// form "<prefix>:checkpoint:<collection>".
func NewCheckpointStore(client *goredis.Client, keyPrefix string, log logger.Logger) *CheckpointStore {
	return &CheckpointStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    log.WithComponent("redis-checkpoints"),
	}
}

func (s *CheckpointStore) key(collection string) string {
	if s.keyPrefix == "" {
		return fmt.Sprintf("checkpoint:%s", collection)
	}
	return fmt.Sprintf("%s:checkpoint:%s", s.keyPrefix, collection)
}

// Load returns the stored token or ErrCheckpointNotFound.
func (s *CheckpointStore) Load(ctx context.Context, collection string) (model.ResumeToken, error) {
	raw, err := s.client.HGet(ctx, s.key(collection), fieldToken).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, apperrors.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, apperrors.NewCheckpointError("failed to load checkpoint", err).
			WithDetail("collection", collection)
	}
	if len(raw) == 0 {
		return nil, apperrors.ErrCheckpointNotFound
	}
	return model.ResumeToken(raw), nil
}

// Save overwrites the token for collection.
func (s *CheckpointStore) Save(ctx context.Context, collection string, token model.ResumeToken) error {
	err := s.client.HSet(ctx, s.key(collection),
		fieldToken, []byte(token),
		fieldUpdatedAt, time.Now().UTC().UnixMilli(),
	).Err()
	if err != nil {
		return apperrors.NewCheckpointError("failed to save checkpoint", err).
			WithDetail("collection", collection)
	}

	s.logger.WithFields(map[string]interface{}{
		"collection": collection,
		"key":        s.key(collection),
	}).Debug("Checkpoint saved")
	return nil
}

// Clear removes the token for collection.
func (s *CheckpointStore) Clear(ctx context.Context, collection string) error {
	if err := s.client.Del(ctx, s.key(collection)).Err(); err != nil {
		return apperrors.NewCheckpointError("failed to clear checkpoint", err).
			WithDetail("collection", collection)
	}
	return nil
}
