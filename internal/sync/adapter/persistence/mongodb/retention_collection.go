package mongodb

import (
	"context"
	"fmt"
	"time"

	"storage-sync-worker/internal/sync/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RetentionCollection finds and deletes outdated records in a source collection.
type RetentionCollection struct {
	coll       *mongo.Collection
	dateField  string
	dateFormat string
}

// NewRetentionCollection creates a RetentionCollection for name in db. The age
// field is compared as a unix millisecond integer or as a BSON date depending
// on opts.DateFormat.
func NewRetentionCollection(db *mongo.Database, name string, opts config.RetentionOptions) *RetentionCollection {
	dateField := opts.DateField
	if dateField == "" {
		dateField = config.DefaultPruneDateField
	}
	return &RetentionCollection{
		coll:       db.Collection(name),
		dateField:  dateField,
		dateFormat: opts.DateFormat,
	}
}

// Name returns the source collection name.
func (r *RetentionCollection) Name() string {
	return r.coll.Name()
}

// ageIndexName follows the server's default naming so an index created by an
// operator is recognised too.
func (r *RetentionCollection) ageIndexName() string {
	return fmt.Sprintf("%s_1", r.dateField)
}

// EnsureAgeIndex creates an ascending index on the age field unless one with
// the same key already exists. It reports whether an index was created.
func (r *RetentionCollection) EnsureAgeIndex(ctx context.Context) (bool, error) {
	specs, err := r.coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return false, fmt.Errorf("list indexes on %s: %w", r.Name(), err)
	}
	for _, spec := range specs {
		if spec.Name == r.ageIndexName() || r.isAgeKey(spec.KeysDocument) {
			return false, nil
		}
	}

	_, err = r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: r.dateField, Value: 1}},
		Options: options.Index().SetName(r.ageIndexName()),
	})
	if err != nil {
		return false, fmt.Errorf("create index %s on %s: %w", r.ageIndexName(), r.Name(), err)
	}
	return true, nil
}

func (r *RetentionCollection) isAgeKey(keys bson.Raw) bool {
	elems, err := keys.Elements()
	if err != nil || len(elems) == 0 {
		return false
	}
	return elems[0].Key() == r.dateField
}

// cutoffValue encodes cutoff the way the age field is stored.
func (r *RetentionCollection) cutoffValue(cutoff time.Time) interface{} {
	if r.dateFormat == config.DateFormatDate {
		return primitive.NewDateTimeFromTime(cutoff)
	}
	return cutoff.UnixMilli()
}

// FindExpiredIDs returns the _id of at most limit records whose age field is
// strictly before cutoff. Only _id is fetched.
func (r *RetentionCollection) FindExpiredIDs(ctx context.Context, cutoff time.Time, limit int64) ([]interface{}, error) {
	filter := bson.D{{Key: r.dateField, Value: bson.D{{Key: "$lt", Value: r.cutoffValue(cutoff)}}}}
	opts := options.Find().
		SetLimit(limit).
		SetProjection(bson.D{{Key: config.FieldID, Value: 1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []interface{}
	for cursor.Next(ctx) {
		var rec struct {
			ID interface{} `bson:"_id"`
		}
		if err := cursor.Decode(&rec); err != nil {
			return nil, err
		}
		ids = append(ids, rec.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteByIDs deletes exactly the records whose _id is in ids.
func (r *RetentionCollection) DeleteByIDs(ctx context.Context, ids []interface{}) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	filter := bson.D{{Key: config.FieldID, Value: bson.D{{Key: "$in", Value: ids}}}}
	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
