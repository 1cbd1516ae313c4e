package usecase

import (
	"context"
	"testing"

	apperrors "storage-sync-worker/internal/shared/errors"
	"storage-sync-worker/internal/sync/config"
	"storage-sync-worker/internal/sync/domain/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDispatcher_Resolve(t *testing.T) {
	log, _ := newTestLogger()
	d := NewDispatcher(newMemoryResolver(), config.DuplicateInsertSkip, log)

	for _, kind := range []model.OperationKind{model.OperationInsert, model.OperationUpdate, model.OperationDelete} {
		h, ok := d.Resolve(kind)
		assert.True(t, ok, kind.String())
		assert.NotNil(t, h, kind.String())
	}

	h, ok := d.Resolve(model.OperationOther)
	assert.False(t, ok)
	assert.Nil(t, h)
}

func TestInsertHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts full document", func(t *testing.T) {
		log, _ := newTestLogger()
		orders := newMemoryTarget("orders")
		d := NewDispatcher(newMemoryResolver(orders), config.DuplicateInsertSkip, log)
		h, _ := d.Resolve(model.OperationInsert)

		doc := bson.D{{Key: "_id", Value: 7}, {Key: "total", Value: 42}}
		require.NoError(t, h.Apply(ctx, insertEvent(7, doc, "a"), "Orders"))

		got, ok := orders.get(7)
		require.True(t, ok)
		assert.Equal(t, doc, got)
	})

	t.Run("duplicate is skipped by default", func(t *testing.T) {
		log, hook := newTestLogger()
		orders := newMemoryTarget("orders")
		d := NewDispatcher(newMemoryResolver(orders), config.DuplicateInsertSkip, log)
		h, _ := d.Resolve(model.OperationInsert)

		first := bson.D{{Key: "_id", Value: 7}, {Key: "total", Value: 42}}
		second := bson.D{{Key: "_id", Value: 7}, {Key: "total", Value: 99}}
		require.NoError(t, h.Apply(ctx, insertEvent(7, first, "a"), "orders"))
		require.NoError(t, h.Apply(ctx, insertEvent(7, second, "b"), "orders"))

		got, _ := orders.get(7)
		assert.Equal(t, first, got, "existing document must be untouched")
		assert.Equal(t, 1, orders.len())
		assert.True(t, hasLogMessage(hook, logrus.WarnLevel, "Document already exists in target, insert skipped"))
	})

	t.Run("duplicate is an error when configured", func(t *testing.T) {
		log, _ := newTestLogger()
		orders := newMemoryTarget("orders")
		d := NewDispatcher(newMemoryResolver(orders), config.DuplicateInsertError, log)
		h, _ := d.Resolve(model.OperationInsert)

		doc := bson.D{{Key: "_id", Value: 7}}
		require.NoError(t, h.Apply(ctx, insertEvent(7, doc, "a"), "orders"))
		err := h.Apply(ctx, insertEvent(7, doc, "b"), "orders")
		require.Error(t, err)
		assert.True(t, apperrors.IsDuplicateKey(err))
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeHandler))
		assert.Equal(t, 1, orders.len())
	})

	t.Run("missing full document", func(t *testing.T) {
		log, _ := newTestLogger()
		d := NewDispatcher(newMemoryResolver(newMemoryTarget("orders")), config.DuplicateInsertSkip, log)
		h, _ := d.Resolve(model.OperationInsert)

		err := h.Apply(ctx, insertEvent(7, nil, "a"), "orders")
		assert.ErrorIs(t, err, apperrors.ErrMissingFullDocument)
	})

	t.Run("unmapped collection is a no-op", func(t *testing.T) {
		log, _ := newTestLogger()
		orders := newMemoryTarget("orders")
		d := NewDispatcher(newMemoryResolver(orders), config.DuplicateInsertSkip, log)
		h, _ := d.Resolve(model.OperationInsert)

		assert.NoError(t, h.Apply(ctx, insertEvent(1, bson.D{{Key: "_id", Value: 1}}, "a"), "payments"))
		assert.Zero(t, orders.len())
	})
}

func TestUpdateHandler(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*memoryTarget, Handler) {
		log, _ := newTestLogger()
		orders := newMemoryTarget("orders")
		require.NoError(t, orders.InsertOne(ctx, bson.D{
			{Key: "_id", Value: 7}, {Key: "total", Value: 42}, {Key: "note", Value: "gift"},
		}))
		d := NewDispatcher(newMemoryResolver(orders), config.DuplicateInsertSkip, log)
		h, _ := d.Resolve(model.OperationUpdate)
		return orders, h
	}

	t.Run("sets and unsets fields", func(t *testing.T) {
		orders, h := setup(t)

		err := h.Apply(ctx, updateEvent(7, bson.D{{Key: "total", Value: 43}, {Key: "status", Value: "paid"}}, []string{"note"}, "b"), "orders")
		require.NoError(t, err)

		got, _ := orders.get(7)
		assert.Equal(t, bson.D{{Key: "_id", Value: 7}, {Key: "total", Value: 43}, {Key: "status", Value: "paid"}}, got)
	})

	t.Run("empty update is a no-op", func(t *testing.T) {
		orders, h := setup(t)

		require.NoError(t, h.Apply(ctx, updateEvent(7, nil, nil, "b"), "orders"))

		got, _ := orders.get(7)
		assert.Equal(t, bson.D{{Key: "_id", Value: 7}, {Key: "total", Value: 42}, {Key: "note", Value: "gift"}}, got)
	})

	t.Run("missing target document is ignored", func(t *testing.T) {
		orders, h := setup(t)

		require.NoError(t, h.Apply(ctx, updateEvent(8, bson.D{{Key: "total", Value: 1}}, nil, "b"), "orders"))
		_, ok := orders.get(8)
		assert.False(t, ok, "update must not upsert")
	})

	t.Run("missing document key", func(t *testing.T) {
		_, h := setup(t)

		ev := updateEvent(7, bson.D{{Key: "total", Value: 1}}, nil, "b")
		ev.DocumentKey = nil
		assert.ErrorIs(t, h.Apply(ctx, ev, "orders"), apperrors.ErrMissingDocumentKey)
	})
}

func TestDeleteHandler(t *testing.T) {
	ctx := context.Background()
	log, _ := newTestLogger()
	orders := newMemoryTarget("orders")
	require.NoError(t, orders.InsertOne(ctx, bson.D{{Key: "_id", Value: 7}}))
	d := NewDispatcher(newMemoryResolver(orders), config.DuplicateInsertSkip, log)
	h, _ := d.Resolve(model.OperationDelete)

	require.NoError(t, h.Apply(ctx, deleteEvent(7, "c"), "orders"))
	assert.Zero(t, orders.len())

	assert.NoError(t, h.Apply(ctx, deleteEvent(7, "d"), "orders"), "deleting an absent document succeeds")
	assert.NoError(t, h.Apply(ctx, deleteEvent(99, "e"), "ORDERS"))
}
