package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "storage-sync-worker context key " + string(c)
}

const (
	// RunIDKey identifies a single worker process run.
	RunIDKey = contextKey("runID")

	// CollectionKey is the logical collection a loop is serving.
	CollectionKey = contextKey("collection")

	// LoopKey is the loop kind ("replication" or "retention").
	LoopKey = contextKey("loop")

	// ComponentKey is the key for component name in context.Context
	ComponentKey = contextKey("component")

	// OperationKey is the key for the change operation being handled.
	OperationKey = contextKey("operation")
)
