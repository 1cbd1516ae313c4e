package repository

import (
	"context"
	"time"

	"storage-sync-worker/internal/sync/domain/model"

	"go.mongodb.org/mongo-driver/bson"
)

// ChangeFeed is an open, ordered change stream on one source collection.
type ChangeFeed interface {
	// Next blocks until the next event is available. It returns the context
	// error on cancellation and a feed fault when the stream itself fails.
	Next(ctx context.Context) (*model.ChangeEvent, error)
	Close(ctx context.Context) error
}

// FeedSource opens change feeds scoped to a single collection. A zero resume
// token starts the feed at "now".
type FeedSource interface {
	Open(ctx context.Context, collection string, resumeAfter model.ResumeToken) (ChangeFeed, error)
}

// TargetCollection is a mirror collection in the target database.
type TargetCollection interface {
	Name() string
	InsertOne(ctx context.Context, document bson.D) error
	// UpdateByID sets and unsets fields on the document with the given _id
	// without upserting. It returns the number of matched documents.
	UpdateByID(ctx context.Context, id interface{}, set bson.D, unset []string) (int64, error)
	// DeleteByID returns the number of deleted documents (0 or 1).
	DeleteByID(ctx context.Context, id interface{}) (int64, error)
}

// TargetResolver maps a source collection name to its mirror, matching
// names case-insensitively.
type TargetResolver interface {
	Resolve(sourceCollection string) (TargetCollection, bool)
}

// RetentionCollection is the source-side view used by the pruning loop.
type RetentionCollection interface {
	Name() string
	// EnsureAgeIndex creates an ascending index on the age field when missing.
	EnsureAgeIndex(ctx context.Context) (bool, error)
	// FindExpiredIDs returns up to limit _id values whose age field is before cutoff.
	FindExpiredIDs(ctx context.Context, cutoff time.Time, limit int64) ([]interface{}, error)
	// DeleteByIDs deletes exactly the given identities.
	DeleteByIDs(ctx context.Context, ids []interface{}) (int64, error)
}

// CheckpointStore persists change feed resume tokens across restarts.
type CheckpointStore interface {
	// Load returns errors.ErrCheckpointNotFound when nothing is stored.
	Load(ctx context.Context, collection string) (model.ResumeToken, error)
	Save(ctx context.Context, collection string, token model.ResumeToken) error
	Clear(ctx context.Context, collection string) error
}
