package repository

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "campusmarket-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestFirestoreConversationStoreContract(t *testing.T) {
	runConversationStoreContract(t, NewFirestoreConversationRepository(newFirestoreClient(t)))
}

func TestFirestoreConversationIDIsDeterministic(t *testing.T) {
	repo := NewFirestoreConversationRepository(newFirestoreClient(t))
	ctx := context.Background()
	alice, bob := "alice-"+uuid.NewString(), "bob-"+uuid.NewString()

	first, created, err := repo.FindOrCreate(ctx, mustKey(t, alice, bob, "p1", ""))
	require.NoError(t, err)
	assert.True(t, created)

	expected := uuid.NewSHA1(conversationNamespace, []byte(mustKey(t, bob, alice, "p1", "").String())).String()
	assert.Equal(t, expected, first.ID)
}

func TestFirestoreListingCatalog(t *testing.T) {
	client := newFirestoreClient(t)
	ctx := context.Background()
	catalog := NewFirestoreListingCatalog(client)

	id := uuid.NewString()
	_, err := client.Collection("services").Doc(id).Set(ctx, map[string]interface{}{"title": "Physics tutoring"})
	require.NoError(t, err)

	found, err := catalog.ServiceExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = catalog.ProductExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)
}
