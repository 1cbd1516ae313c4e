package mongodb

import (
	"context"
	"errors"
	"time"

	apperrors "storage-sync-worker/internal/shared/errors"
	"storage-sync-worker/internal/sync/domain/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type checkpointDocument struct {
	Collection string    `bson:"_id"`
	Token      bson.Raw  `bson:"token"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// CheckpointStore keeps one resume token document per replicated collection.
// It lives in the target database so checkpoints follow the mirror they describe.
type CheckpointStore struct {
	coll *mongo.Collection
}

// NewCheckpointStore creates a CheckpointStore backed by collection in db.
func NewCheckpointStore(db *mongo.Database, collection string) *CheckpointStore {
	return &CheckpointStore{coll: db.Collection(collection)}
}

// Load returns the stored token or ErrCheckpointNotFound.
func (s *CheckpointStore) Load(ctx context.Context, collection string) (model.ResumeToken, error) {
	var doc checkpointDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: collection}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, apperrors.NewCheckpointError("failed to load checkpoint", err).
			WithDetail("collection", collection)
	}
	if len(doc.Token) == 0 {
		return nil, apperrors.ErrCheckpointNotFound
	}
	return model.ResumeToken(doc.Token), nil
}

// Save upserts the token for collection.
func (s *CheckpointStore) Save(ctx context.Context, collection string, token model.ResumeToken) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "token", Value: bson.Raw(token)},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}
	_, err := s.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: collection}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return apperrors.NewCheckpointError("failed to save checkpoint", err).
			WithDetail("collection", collection)
	}
	return nil
}

// Clear removes the token for collection.
func (s *CheckpointStore) Clear(ctx context.Context, collection string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: collection}}); err != nil {
		return apperrors.NewCheckpointError("failed to clear checkpoint", err).
			WithDetail("collection", collection)
	}
	return nil
}
