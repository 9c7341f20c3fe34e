package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/clinical-intake/internal/config"
	"github.com/kirillkom/clinical-intake/internal/core/ports"
	mongorepo "github.com/kirillkom/clinical-intake/internal/infrastructure/repository/mongo"
	"github.com/kirillkom/clinical-intake/internal/infrastructure/repository/postgres"
)

// Store is the configured message store plus its schema and shutdown hooks.
type Store struct {
	ports.MessageStore

	migrate func(context.Context) error
	close   func()
}

// OpenStore connects the driver selected by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case "", "postgres":
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewMessageRepository(db)
		return &Store{
			MessageStore: repo,
			migrate:      repo.EnsureSchema,
			close:        func() { _ = db.Close() },
		}, nil
	case "mongo":
		client, err := mongorepo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		repo := mongorepo.NewMessageRepository(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
		return &Store{
			MessageStore: repo,
			migrate:      repo.EnsureIndexes,
			close:        func() { _ = client.Disconnect(context.Background()) },
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// Migrate creates the table or indexes the driver needs. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate(ctx)
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}
