package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
)

type firestoreListingCatalog struct {
	client *firestore.Client
}

// NewFirestoreListingCatalog reads the products and services collections
// maintained by the listings service.
func NewFirestoreListingCatalog(client *firestore.Client) repository.ListingCatalog {
	return &firestoreListingCatalog{client: client}
}

func (c *firestoreListingCatalog) ProductExists(ctx context.Context, productID string) (bool, error) {
	return c.exists(ctx, "products", productID)
}

func (c *firestoreListingCatalog) ServiceExists(ctx context.Context, serviceID string) (bool, error) {
	return c.exists(ctx, "services", serviceID)
}

func (c *firestoreListingCatalog) exists(ctx context.Context, collection, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	_, err := c.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, errors.StorageFailure("Failed to look up listing", err)
	}
	return true, nil
}
