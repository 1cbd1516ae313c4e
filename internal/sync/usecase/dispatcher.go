package usecase

import (
	"context"

	apperrors "storage-sync-worker/internal/shared/errors"
	"storage-sync-worker/internal/shared/logger"
	"storage-sync-worker/internal/sync/config"
	"storage-sync-worker/internal/sync/domain/model"
	"storage-sync-worker/internal/sync/domain/repository"
)

// Handler applies one change event to the mirror of sourceCollection.
type Handler interface {
	Apply(ctx context.Context, event *model.ChangeEvent, sourceCollection string) error
}

// Dispatcher maps an operation kind to the handler that mirrors it.
type Dispatcher struct {
	insert Handler
	update Handler
	delete Handler
}

// NewDispatcher builds the handler set over targets. duplicatePolicy is one of
// config.DuplicateInsertSkip or config.DuplicateInsertError.
func NewDispatcher(targets repository.TargetResolver, duplicatePolicy string, log logger.Logger) *Dispatcher {
	log = log.WithComponent("dispatcher")
	return &Dispatcher{
		insert: &insertHandler{targets: targets, duplicatePolicy: duplicatePolicy, logger: log},
		update: &updateHandler{targets: targets, logger: log},
		delete: &deleteHandler{targets: targets, logger: log},
	}
}

// Resolve returns the handler for kind. OperationOther has no handler.
func (d *Dispatcher) Resolve(kind model.OperationKind) (Handler, bool) {
	switch kind {
	case model.OperationInsert:
		return d.insert, true
	case model.OperationUpdate:
		return d.update, true
	case model.OperationDelete:
		return d.delete, true
	default:
		return nil, false
	}
}

func handlerLogger(ctx context.Context, log logger.Logger, target string, id interface{}) logger.Logger {
	return log.WithContext(ctx).WithFields(map[string]interface{}{
		"target": target,
		"id":     id,
	})
}

func documentID(event *model.ChangeEvent, sourceCollection string) (interface{}, error) {
	id, ok := event.DocumentID()
	if !ok {
		return nil, apperrors.NewHandlerError("change event cannot be applied", apperrors.ErrMissingDocumentKey).
			WithDetail("collection", sourceCollection).
			WithDetail("operation", event.RawOperation)
	}
	return id, nil
}

type insertHandler struct {
	targets         repository.TargetResolver
	duplicatePolicy string
	logger          logger.Logger
}

func (h *insertHandler) Apply(ctx context.Context, event *model.ChangeEvent, sourceCollection string) error {
	target, ok := h.targets.Resolve(sourceCollection)
	if !ok {
		return nil
	}
	if len(event.FullDocument) == 0 {
		return apperrors.NewHandlerError("insert cannot be applied", apperrors.ErrMissingFullDocument).
			WithDetail("collection", sourceCollection)
	}
	id, _ := event.DocumentID()
	log := handlerLogger(ctx, h.logger, target.Name(), id)

	if err := target.InsertOne(ctx, event.FullDocument); err != nil {
		if apperrors.IsDuplicateKey(err) && h.duplicatePolicy != config.DuplicateInsertError {
			log.Warn("Document already exists in target, insert skipped")
			return nil
		}
		return apperrors.NewHandlerError("failed to insert document", err).
			WithDetail("collection", sourceCollection).
			WithDetail("id", id)
	}

	log.Info("Document inserted")
	return nil
}

type updateHandler struct {
	targets repository.TargetResolver
	logger  logger.Logger
}

func (h *updateHandler) Apply(ctx context.Context, event *model.ChangeEvent, sourceCollection string) error {
	target, ok := h.targets.Resolve(sourceCollection)
	if !ok {
		return nil
	}
	id, err := documentID(event, sourceCollection)
	if err != nil {
		return err
	}
	log := handlerLogger(ctx, h.logger, target.Name(), id)

	if len(event.UpdatedFields) == 0 && len(event.RemovedFields) == 0 {
		log.Debug("Update carries no field changes, nothing to apply")
		return nil
	}

	matched, err := target.UpdateByID(ctx, id, event.UpdatedFields, event.RemovedFields)
	if err != nil {
		return apperrors.NewHandlerError("failed to update document", err).
			WithDetail("collection", sourceCollection).
			WithDetail("id", id)
	}
	if matched == 0 {
		log.Warn("Document not found in target, update ignored")
		return nil
	}

	log.WithFields(map[string]interface{}{
		"set":   len(event.UpdatedFields),
		"unset": len(event.RemovedFields),
	}).Info("Document updated")
	return nil
}

type deleteHandler struct {
	targets repository.TargetResolver
	logger  logger.Logger
}

func (h *deleteHandler) Apply(ctx context.Context, event *model.ChangeEvent, sourceCollection string) error {
	target, ok := h.targets.Resolve(sourceCollection)
	if !ok {
		return nil
	}
	id, err := documentID(event, sourceCollection)
	if err != nil {
		return err
	}

	deleted, err := target.DeleteByID(ctx, id)
	if err != nil {
		return apperrors.NewHandlerError("failed to delete document", err).
			WithDetail("collection", sourceCollection).
			WithDetail("id", id)
	}

	handlerLogger(ctx, h.logger, target.Name(), id).
		WithFields(map[string]interface{}{"deleted": deleted}).
		Info("Document deleted")
	return nil
}
