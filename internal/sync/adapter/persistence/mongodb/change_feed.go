package mongodb

import (
	"context"

	apperrors "storage-sync-worker/internal/shared/errors"
	"storage-sync-worker/internal/shared/logger"
	"storage-sync-worker/internal/sync/domain/model"
	"storage-sync-worker/internal/sync/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// changeStreamDocument is the subset of a change stream event the worker reads.
type changeStreamDocument struct {
	OperationType     string             `bson:"operationType"`
	DocumentKey       bson.D             `bson:"documentKey,omitempty"`
	FullDocument      bson.D             `bson:"fullDocument,omitempty"`
	UpdateDescription *updateDescription `bson:"updateDescription,omitempty"`
	Namespace         struct {
		DB   string `bson:"db"`
		Coll string `bson:"coll"`
	} `bson:"ns"`
}

type updateDescription struct {
	UpdatedFields bson.D   `bson:"updatedFields"`
	RemovedFields []string `bson:"removedFields"`
}

// toChangeEvent converts a decoded change stream document into a ChangeEvent.
func (d *changeStreamDocument) toChangeEvent(collection string) *model.ChangeEvent {
	ev := &model.ChangeEvent{
		Kind:           model.ParseOperationKind(d.OperationType),
		RawOperation:   d.OperationType,
		CollectionName: collection,
		DocumentKey:    d.DocumentKey,
		FullDocument:   d.FullDocument,
	}
	if d.Namespace.Coll != "" {
		ev.CollectionName = d.Namespace.Coll
	}
	if d.UpdateDescription != nil {
		ev.UpdatedFields = d.UpdateDescription.UpdatedFields
		ev.RemovedFields = d.UpdateDescription.RemovedFields
	}
	return ev
}

// decodeChangeEvent decodes one raw change stream document.
func decodeChangeEvent(raw bson.Raw, collection string) (*model.ChangeEvent, error) {
	var doc changeStreamDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc.toChangeEvent(collection), nil
}

// FeedSource opens change streams on collections of the source database.
type FeedSource struct {
	db     *mongo.Database
	logger logger.Logger
}

// NewFeedSource creates a FeedSource over db. The database handle is shared by
// every replication loop.
func NewFeedSource(db *mongo.Database, log logger.Logger) *FeedSource {
	return &FeedSource{db: db, logger: log.WithComponent("change-feed")}
}

// Open starts a change stream on collection. A zero resumeAfter starts at the
// current cluster time.
func (s *FeedSource) Open(ctx context.Context, collection string, resumeAfter model.ResumeToken) (repository.ChangeFeed, error) {
	opts := options.ChangeStream()
	if !resumeAfter.IsZero() {
		opts.SetResumeAfter(bson.Raw(resumeAfter))
	}

	stream, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"collection": collection,
		"resumed":    !resumeAfter.IsZero(),
	}).Debug("Change stream opened")

	return &changeFeed{stream: stream, collection: collection}, nil
}

type changeFeed struct {
	stream     *mongo.ChangeStream
	collection string
}

// Next returns the next change event. A document that cannot be decoded is
// reported as a handler error so the caller can skip it; the stream has
// already advanced past it.
func (f *changeFeed) Next(ctx context.Context) (*model.ChangeEvent, error) {
	if f.stream.Next(ctx) {
		ev, err := decodeChangeEvent(f.stream.Current, f.collection)
		if err != nil {
			return nil, apperrors.NewHandlerError("failed to decode change event", err).
				WithDetail("collection", f.collection)
		}
		ev.ResumeToken = model.ResumeToken(f.stream.ResumeToken())
		return ev, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.stream.Err(); err != nil {
		return nil, err
	}
	return nil, apperrors.ErrFeedClosed
}

func (f *changeFeed) Close(ctx context.Context) error {
	return f.stream.Close(ctx)
}
