package main

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/api/option"

	"campusmarket/internal/adapter/api/handler"
	"campusmarket/internal/adapter/repository"
	domainrepo "campusmarket/internal/domain/repository"
	"campusmarket/internal/infrastructure/database"
	"campusmarket/internal/infrastructure/firebase"
	"campusmarket/pkg/config"
	"campusmarket/pkg/logger"
)

// store bundles the selected conversation backend with its lifecycle hooks.
type store struct {
	conversations domainrepo.ConversationRepository
	catalog       domainrepo.ListingCatalog
	ping          handler.Pinger
	close         func()
}

func openStore(ctx context.Context, cfg *config.Config, firebaseOpts []option.ClientOption) (*store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL, database.WithMaxConns(cfg.DatabaseMaxConns))
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("Using postgres conversation store")
		return &store{
			conversations: repository.NewPostgresConversationRepository(pool),
			catalog:       repository.NewPostgresListingCatalog(pool),
			ping:          pool.Ping,
			close:         pool.Close,
		}, nil

	case config.DriverFirestore:
		client, err := firebase.NewFirestoreClient(ctx, cfg, firebaseOpts)
		if err != nil {
			return nil, err
		}
		logger.Info("Using firestore conversation store for project %s", cfg.FirebaseProject)
		return &store{
			conversations: repository.NewFirestoreConversationRepository(client),
			catalog:       repository.NewFirestoreListingCatalog(client),
			ping: func(ctx context.Context) error {
				_, err := client.Collection("conversations").Limit(1).Documents(ctx).GetAll()
				return err
			},
			close: func() { _ = client.Close() },
		}, nil

	case config.DriverBadger:
		db, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, fmt.Errorf("badger: open %s: %w", cfg.BadgerPath, err)
		}
		// Listings live in another service when running embedded, so
		// references are not checked.
		logger.Info("Using embedded badger conversation store at %s", cfg.BadgerPath)
		return &store{
			conversations: repository.NewBadgerConversationRepository(db),
			ping: func(context.Context) error {
				if db.IsClosed() {
					return fmt.Errorf("badger: database closed")
				}
				return nil
			},
			close: func() { _ = db.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
