package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
)

type postgresListingCatalog struct {
	pool *pgxpool.Pool
}

func NewPostgresListingCatalog(pool *pgxpool.Pool) repository.ListingCatalog {
	return &postgresListingCatalog{pool: pool}
}

func (c *postgresListingCatalog) ProductExists(ctx context.Context, productID string) (bool, error) {
	return c.exists(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID)
}

func (c *postgresListingCatalog) ServiceExists(ctx context.Context, serviceID string) (bool, error) {
	return c.exists(ctx, `SELECT EXISTS (SELECT 1 FROM services WHERE id = $1)`, serviceID)
}

func (c *postgresListingCatalog) exists(ctx context.Context, query, id string) (bool, error) {
	var found bool
	if err := c.pool.QueryRow(ctx, query, id).Scan(&found); err != nil {
		return false, errors.StorageFailure("Failed to look up listing", err)
	}
	return found, nil
}
