package mongodb

import (
	"context"
	"strings"

	"storage-sync-worker/internal/sync/config"
	"storage-sync-worker/internal/sync/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TargetCollections resolves mirror collections by case-insensitive name. It
// is built once at startup and only read afterwards.
type TargetCollections struct {
	byName map[string]*TargetCollection
}

// NewTargetCollections resolves a handle for every configured name in db.
func NewTargetCollections(db *mongo.Database, names []string) *TargetCollections {
	byName := make(map[string]*TargetCollection, len(names))
	for _, name := range names {
		byName[strings.ToLower(name)] = &TargetCollection{coll: db.Collection(name)}
	}
	return &TargetCollections{byName: byName}
}

// Resolve implements repository.TargetResolver.
func (t *TargetCollections) Resolve(sourceCollection string) (repository.TargetCollection, bool) {
	c, ok := t.byName[strings.ToLower(sourceCollection)]
	if !ok {
		return nil, false
	}
	return c, true
}

// Len returns the number of mirrored collections.
func (t *TargetCollections) Len() int {
	return len(t.byName)
}

// TargetCollection applies replicated mutations to one mirror collection.
type TargetCollection struct {
	coll *mongo.Collection
}

// Name returns the collection name in the target database.
func (c *TargetCollection) Name() string {
	return c.coll.Name()
}

// InsertOne inserts document as-is.
func (c *TargetCollection) InsertOne(ctx context.Context, document bson.D) error {
	_, err := c.coll.InsertOne(ctx, document)
	return err
}

// UpdateByID applies $set/$unset to the document with the given _id. It never upserts.
func (c *TargetCollection) UpdateByID(ctx context.Context, id interface{}, set bson.D, unset []string) (int64, error) {
	update := bson.D{}
	if len(set) > 0 {
		update = append(update, bson.E{Key: "$set", Value: set})
	}
	if len(unset) > 0 {
		fields := make(bson.D, 0, len(unset))
		for _, f := range unset {
			fields = append(fields, bson.E{Key: f, Value: ""})
		}
		update = append(update, bson.E{Key: "$unset", Value: fields})
	}

	res, err := c.coll.UpdateOne(ctx, bson.D{{Key: config.FieldID, Value: id}}, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

// DeleteByID deletes the document with the given _id, if any.
func (c *TargetCollection) DeleteByID(ctx context.Context, id interface{}) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, bson.D{{Key: config.FieldID, Value: id}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
