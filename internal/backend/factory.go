// Package backend assembles a document store from configuration: Firestore
// for production, SQLite for self-hosting, memory for development and tests.
package backend

import (
	"context"
	"fmt"

	"grana/internal/amqp"
	fs "grana/internal/store/firestore"

	"grana/internal/log"
	"grana/internal/storage"
	"grana/internal/store"
	"grana/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case FirestoreBackend:
		return f.createFirestoreBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	notifier := store.NewNotifier()
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, notifier)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	result := &Result{
		Store:    repo,
		Notifier: notifier,
		Cleanup:  repo.Close,
	}
	f.attachBroker(result, config)

	f.logger.Info("initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", result.AMQP != nil)
	return result, nil
}

func (f *DefaultFactory) createFirestoreBackend(ctx context.Context, config Config) (*Result, error) {
	st, err := fs.New(ctx, config.FirestoreProjectID, f.logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firestore backend: %w", err)
	}

	f.logger.Info("initialized Firestore backend", "project_id", config.FirestoreProjectID)

	// Firestore has native snapshot listeners; no notifier or broker bridge.
	return &Result{
		Store:   st,
		Cleanup: st.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*Result, error) {
	notifier := store.NewNotifier()
	result := &Result{
		Store:    memory.New(notifier),
		Notifier: notifier,
	}
	f.attachBroker(result, config)

	f.logger.Info("initialized memory backend", "amqp_enabled", result.AMQP != nil)
	return result, nil
}

// attachBroker wires the notifier to RabbitMQ when a URL is configured. A
// broker that is down at startup is logged and skipped; the instance still
// works, it just misses remote changes.
func (f *DefaultFactory) attachBroker(result *Result, config Config) {
	if config.AMQPURL == "" {
		return
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange)
	if err != nil {
		f.logger.Warn("failed to initialize AMQP client, continuing without change propagation", "error", err)
		return
	}

	result.AMQP = client
	result.Bridge = amqp.NewBridge(client, result.Notifier, f.logger.Logger)

	prevCleanup := result.Cleanup
	result.Cleanup = func() error {
		cerr := client.Close()
		if prevCleanup != nil {
			if err := prevCleanup(); err != nil {
				return err
			}
		}
		return cerr
	}

	f.logger.Info("initialized AMQP client", "exchange", config.AMQPExchange)
}
