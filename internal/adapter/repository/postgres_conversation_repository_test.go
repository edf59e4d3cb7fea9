package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusmarket/internal/infrastructure/database"
	"campusmarket/pkg/errors"
)

func newPostgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}

func TestPostgresConversationStoreContract(t *testing.T) {
	pool := newPostgresPool(t)
	runConversationStoreContract(t, NewPostgresConversationRepository(pool))
}

func TestPostgresFindOrCreateUnknownListing(t *testing.T) {
	pool := newPostgresPool(t)
	repo := NewPostgresConversationRepository(pool)

	_, _, err := repo.FindOrCreate(context.Background(), mustKey(t, "alice-"+uuid.NewString(), "bob", uuid.NewString(), ""))
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestPostgresListingCatalog(t *testing.T) {
	pool := newPostgresPool(t)
	ctx := context.Background()
	catalog := NewPostgresListingCatalog(pool)

	productID := uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO products (id, title) VALUES ($1, 'Calculus textbook')`, productID)
	require.NoError(t, err)

	found, err := catalog.ProductExists(ctx, productID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = catalog.ServiceExists(ctx, productID)
	require.NoError(t, err)
	assert.False(t, found)

	repo := NewPostgresConversationRepository(pool)
	conv, created, err := repo.FindOrCreate(ctx, mustKey(t, "alice-"+productID, "bob-"+productID, productID, ""))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, productID, conv.ProductID)
}

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{code: pgForeignKeyViolation, want: errors.CodeNotFound},
		{code: pgCharacterNotInRepertoire, want: errors.CodeInvalidArgument},
		{code: pgInvalidTextRepresentation, want: errors.CodeInvalidArgument},
		{code: "08006", want: errors.CodeStorageFailure},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := mapPostgresError("Failed to create message", &pgconn.PgError{Code: tt.code})
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	assert.True(t, errors.Is(mapPostgresError("Failed to get conversation", pgx.ErrNoRows), errors.CodeNotFound))
}
