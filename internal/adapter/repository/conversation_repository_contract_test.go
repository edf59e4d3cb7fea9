package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/utils"
)

// runConversationStoreContract exercises behavior every backend must share.
// User IDs are random so the suite can run against a shared database.
func runConversationStoreContract(t *testing.T, repo repository.ConversationRepository) {
	ctx := context.Background()
	user := func(name string) string { return name + "-" + uuid.NewString()[:8] }

	t.Run("dedupes unordered pairs", func(t *testing.T) {
		alice, bob := user("alice"), user("bob")

		first, created, err := repo.FindOrCreate(ctx, mustKey(t, alice, bob, "", ""))
		require.NoError(t, err)
		assert.True(t, created)

		swapped, created, err := repo.FindOrCreate(ctx, mustKey(t, bob, alice, "", ""))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, swapped.ID)
		assert.Equal(t, alice, swapped.Participant1ID)
	})

	t.Run("concurrent creation yields one conversation", func(t *testing.T) {
		alice, bob := user("alice"), user("bob")

		ids := make([]string, 8)
		var wg sync.WaitGroup
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c, _, err := repo.FindOrCreate(ctx, mustKey(t, alice, bob, "", ""))
				if assert.NoError(t, err) {
					ids[i] = c.ID
				}
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("append stamps activity and keeps order", func(t *testing.T) {
		alice, bob, carol := user("alice"), user("bob"), user("carol")

		older, _, err := repo.FindOrCreate(ctx, mustKey(t, alice, bob, "", ""))
		require.NoError(t, err)
		_, _, err = repo.FindOrCreate(ctx, mustKey(t, alice, carol, "", ""))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := repo.AppendMessage(ctx, older.ID, bob, fmt.Sprintf("m%d", i))
			require.NoError(t, err)
		}

		messages, err := repo.ListMessages(ctx, older.ID, utils.PaginationParams{})
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "m2", messages[2].Content)

		reloaded, err := repo.GetByID(ctx, older.ID)
		require.NoError(t, err)
		assert.True(t, reloaded.LastMessageAt.Equal(messages[2].CreatedAt))

		list, err := repo.ListByUserID(ctx, alice)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, older.ID, list[0].ID)
	})

	t.Run("rejects outsiders and unknown conversations", func(t *testing.T) {
		alice, bob := user("alice"), user("bob")

		conv, _, err := repo.FindOrCreate(ctx, mustKey(t, alice, bob, "", ""))
		require.NoError(t, err)

		_, err = repo.AppendMessage(ctx, conv.ID, user("mallory"), "hi")
		assert.True(t, errors.Is(err, errors.CodeForbidden))

		messages, err := repo.ListMessages(ctx, conv.ID, utils.PaginationParams{})
		require.NoError(t, err)
		assert.Empty(t, messages)

		_, err = repo.AppendMessage(ctx, uuid.NewString(), alice, "hi")
		assert.True(t, errors.Is(err, errors.CodeNotFound))
	})
}

func TestBadgerConversationStoreContract(t *testing.T) {
	runConversationStoreContract(t, newBadgerRepo(t))
}
