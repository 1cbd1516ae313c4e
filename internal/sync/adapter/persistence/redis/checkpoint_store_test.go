package redis

import (
	"context"
	"testing"
	"time"

	apperrors "storage-sync-worker/internal/shared/errors"
	"storage-sync-worker/internal/shared/logger"
	"storage-sync-worker/internal/sync/domain/model"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// createTestRedisClient returns a client on a scratch database, skipping the
// test when no server is reachable.
func createTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:         "localhost:6379",
		DB:           15,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available for testing:", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func newTestLogger() logger.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logger.NewLogrusLogger(l)
}

func TestCheckpointStore_Key(t *testing.T) {
	s := &CheckpointStore{keyPrefix: "storage-sync"}
	assert.Equal(t, "storage-sync:checkpoint:orders", s.key("orders"))

	s = &CheckpointStore{}
	assert.Equal(t, "checkpoint:orders", s.key("orders"))
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	client := createTestRedisClient(t)
	store := NewCheckpointStore(client, "test", newTestLogger())
	ctx := context.Background()

	_, err := store.Load(ctx, "orders")
	assert.ErrorIs(t, err, apperrors.ErrCheckpointNotFound)

	raw, err := bson.Marshal(bson.D{{Key: "_data", Value: "82635A"}})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "orders", model.ResumeToken(raw)))

	got, err := store.Load(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, model.ResumeToken(raw), got)

	require.NoError(t, store.Clear(ctx, "orders"))
	_, err = store.Load(ctx, "orders")
	assert.ErrorIs(t, err, apperrors.ErrCheckpointNotFound)
}

func TestCheckpointStore_Unreachable(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	store := NewCheckpointStore(client, "test", newTestLogger())

	_, err := store.Load(context.Background(), "orders")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCheckpoint))
}
