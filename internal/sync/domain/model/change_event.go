package model

import (
	"go.mongodb.org/mongo-driver/bson"
)

// OperationKind is the closed set of change kinds the worker distinguishes.
type OperationKind int

const (
	// OperationOther covers every change stream operation that is not mirrored
	// (replace, rename, drop, dropDatabase, invalidate, ...).
	OperationOther OperationKind = iota
	OperationInsert
	OperationUpdate
	OperationDelete
)

// String returns the change stream name of the kind.
func (k OperationKind) String() string {
	switch k {
	case OperationInsert:
		return "insert"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return "other"
	}
}

// ParseOperationKind maps a change stream operationType to an OperationKind.
func ParseOperationKind(operationType string) OperationKind {
	switch operationType {
	case "insert":
		return OperationInsert
	case "update":
		return OperationUpdate
	case "delete":
		return OperationDelete
	default:
		return OperationOther
	}
}

// ResumeToken is the opaque change stream position after an event.
type ResumeToken bson.Raw

// IsZero reports whether the token is empty.
func (t ResumeToken) IsZero() bool {
	return len(t) == 0
}

// ChangeEvent is one captured mutation on a source collection. It is consumed
// once by the dispatcher and never stored.
type ChangeEvent struct {
	Kind           OperationKind
	RawOperation   string
	CollectionName string
	DocumentKey    bson.D
	FullDocument   bson.D
	UpdatedFields  bson.D
	RemovedFields  []string
	ResumeToken    ResumeToken
}

// DocumentID returns the _id value from the document key.
func (e *ChangeEvent) DocumentID() (interface{}, bool) {
	for _, elem := range e.DocumentKey {
		if elem.Key == "_id" {
			return elem.Value, true
		}
	}
	return nil, false
}
