package backend

import (
	"context"

	"grana/internal/amqp"
	"grana/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the assembled backend and its supporting pieces.
// Notifier is nil for backends with native change streams (Firestore).
// Bridge and AMQP are nil unless a broker is configured.
type Result struct {
	Store    store.Store
	Notifier *store.Notifier
	Bridge   *amqp.Bridge
	AMQP     *amqp.Client
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Firestore specific
	FirestoreProjectID string

	// Change-event propagation (optional, sqlite and memory only)
	AMQPURL      string
	AMQPExchange string
}

// BackendType represents the type of backend
type BackendType string

const (
	FirestoreBackend BackendType = "firestore"
	SQLiteBackend    BackendType = "sqlite"
	MemoryBackend    BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case FirestoreBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
