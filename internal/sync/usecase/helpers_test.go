package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"storage-sync-worker/internal/shared/logger"
	"storage-sync-worker/internal/sync/domain/model"
	"storage-sync-worker/internal/sync/domain/repository"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const shortWait = 2 * time.Second

func newTestLogger() (logger.Logger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return logger.NewLogrusLogger(l), hook
}

func hasLogMessage(hook *test.Hook, level logrus.Level, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// memoryTarget is an in-memory mirror collection keyed by _id.
type memoryTarget struct {
	mu   sync.Mutex
	name string
	docs map[string]bson.D
}

func newMemoryTarget(name string) *memoryTarget {
	return &memoryTarget{name: name, docs: make(map[string]bson.D)}
}

func idKey(id interface{}) string {
	return fmt.Sprintf("%T:%v", id, id)
}

func (m *memoryTarget) Name() string { return m.name }

func (m *memoryTarget) InsertOne(_ context.Context, document bson.D) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var id interface{}
	for _, e := range document {
		if e.Key == "_id" {
			id = e.Value
		}
	}
	if _, exists := m.docs[idKey(id)]; exists {
		return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
	}
	m.docs[idKey(id)] = append(bson.D(nil), document...)
	return nil
}

func (m *memoryTarget) UpdateByID(_ context.Context, id interface{}, set bson.D, unset []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[idKey(id)]
	if !ok {
		return 0, nil
	}
	for _, s := range set {
		replaced := false
		for i := range doc {
			if doc[i].Key == s.Key {
				doc[i].Value = s.Value
				replaced = true
			}
		}
		if !replaced {
			doc = append(doc, s)
		}
	}
	for _, u := range unset {
		for i := range doc {
			if doc[i].Key == u {
				doc = append(doc[:i], doc[i+1:]...)
				break
			}
		}
	}
	m.docs[idKey(id)] = doc
	return 1, nil
}

func (m *memoryTarget) DeleteByID(_ context.Context, id interface{}) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[idKey(id)]; !ok {
		return 0, nil
	}
	delete(m.docs, idKey(id))
	return 1, nil
}

func (m *memoryTarget) get(id interface{}) (bson.D, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[idKey(id)]
	return doc, ok
}

func (m *memoryTarget) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

type memoryResolver map[string]*memoryTarget

func newMemoryResolver(targets ...*memoryTarget) memoryResolver {
	r := memoryResolver{}
	for _, t := range targets {
		r[strings.ToLower(t.name)] = t
	}
	return r
}

func (r memoryResolver) Resolve(sourceCollection string) (repository.TargetCollection, bool) {
	t, ok := r[strings.ToLower(sourceCollection)]
	if !ok {
		return nil, false
	}
	return t, true
}

// feedScript describes one opened feed: an open error, or a series of events
// followed by endErr. A nil endErr blocks until the context is cancelled.
type feedScript struct {
	openErr error
	events  []*model.ChangeEvent
	endErr  error
}

type scriptedFeedSource struct {
	mu      sync.Mutex
	scripts []feedScript
	opens   []model.ResumeToken
}

func (s *scriptedFeedSource) Open(_ context.Context, _ string, resumeAfter model.ResumeToken) (repository.ChangeFeed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens = append(s.opens, resumeAfter)

	if len(s.scripts) == 0 {
		return &scriptedFeed{}, nil
	}
	script := s.scripts[0]
	s.scripts = s.scripts[1:]
	if script.openErr != nil {
		return nil, script.openErr
	}
	return &scriptedFeed{events: script.events, endErr: script.endErr}, nil
}

func (s *scriptedFeedSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opens)
}

func (s *scriptedFeedSource) openedWith(i int) model.ResumeToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[i]
}

type scriptedFeed struct {
	events []*model.ChangeEvent
	endErr error
	closed bool
}

func (f *scriptedFeed) Next(ctx context.Context) (*model.ChangeEvent, error) {
	if len(f.events) > 0 {
		ev := f.events[0]
		f.events = f.events[1:]
		return ev, nil
	}
	if f.endErr != nil {
		return nil, f.endErr
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *scriptedFeed) Close(context.Context) error {
	f.closed = true
	return nil
}

// fakeRetentionCollection holds a set of expired ids and records each batch deleted.
type fakeRetentionCollection struct {
	mu        sync.Mutex
	name      string
	expired   []interface{}
	findErrs  []error
	batches   []int
	finds     int
	cutoffs   []time.Time
	indexErr  error
	indexDone bool
	// stuckDeletes makes that many DeleteByIDs calls delete nothing.
	stuckDeletes int
}

func (f *fakeRetentionCollection) Name() string { return f.name }

func (f *fakeRetentionCollection) EnsureAgeIndex(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return false, f.indexErr
	}
	created := !f.indexDone
	f.indexDone = true
	return created, nil
}

func (f *fakeRetentionCollection) FindExpiredIDs(_ context.Context, cutoff time.Time, limit int64) ([]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	f.cutoffs = append(f.cutoffs, cutoff)
	if len(f.findErrs) > 0 {
		err := f.findErrs[0]
		f.findErrs = f.findErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	n := int(limit)
	if n > len(f.expired) {
		n = len(f.expired)
	}
	return append([]interface{}(nil), f.expired[:n]...), nil
}

func (f *fakeRetentionCollection) DeleteByIDs(_ context.Context, ids []interface{}) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stuckDeletes > 0 {
		f.stuckDeletes--
		f.batches = append(f.batches, 0)
		return 0, nil
	}
	remove := make(map[interface{}]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	kept := f.expired[:0]
	var deleted int64
	for _, id := range f.expired {
		if remove[id] {
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	f.expired = kept
	f.batches = append(f.batches, len(ids))
	return deleted, nil
}

func (f *fakeRetentionCollection) snapshot() (finds int, batches []int, remaining int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finds, append([]int(nil), f.batches...), len(f.expired)
}

// MockCheckpointStore is a testify mock of repository.CheckpointStore.
type MockCheckpointStore struct {
	mock.Mock
}

func (m *MockCheckpointStore) Load(ctx context.Context, collection string) (model.ResumeToken, error) {
	args := m.Called(ctx, collection)
	token, _ := args.Get(0).(model.ResumeToken)
	return token, args.Error(1)
}

func (m *MockCheckpointStore) Save(ctx context.Context, collection string, token model.ResumeToken) error {
	return m.Called(ctx, collection, token).Error(0)
}

func (m *MockCheckpointStore) Clear(ctx context.Context, collection string) error {
	return m.Called(ctx, collection).Error(0)
}

func resumeToken(data string) model.ResumeToken {
	raw, err := bson.Marshal(bson.D{{Key: "_data", Value: data}})
	if err != nil {
		panic(err)
	}
	return model.ResumeToken(raw)
}

func insertEvent(id interface{}, doc bson.D, token string) *model.ChangeEvent {
	return &model.ChangeEvent{
		Kind:         model.OperationInsert,
		RawOperation: "insert",
		DocumentKey:  bson.D{{Key: "_id", Value: id}},
		FullDocument: doc,
		ResumeToken:  resumeToken(token),
	}
}

func updateEvent(id interface{}, set bson.D, removed []string, token string) *model.ChangeEvent {
	return &model.ChangeEvent{
		Kind:          model.OperationUpdate,
		RawOperation:  "update",
		DocumentKey:   bson.D{{Key: "_id", Value: id}},
		UpdatedFields: set,
		RemovedFields: removed,
		ResumeToken:   resumeToken(token),
	}
}

func deleteEvent(id interface{}, token string) *model.ChangeEvent {
	return &model.ChangeEvent{
		Kind:         model.OperationDelete,
		RawOperation: "delete",
		DocumentKey:  bson.D{{Key: "_id", Value: id}},
		ResumeToken:  resumeToken(token),
	}
}
