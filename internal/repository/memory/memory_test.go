package memory

import (
	"context"
	"testing"
	"time"

	"advert-service/internal/domain"
	"advert-service/internal/repository"
	"advert-service/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContract_MemoryStore(t *testing.T) {
	repotest.RunStoreContract(t, func(t *testing.T) repository.Store {
		t.Helper()
		return NewStore()
	})
}

func TestStore_UsesClock(t *testing.T) {
	store := NewStore()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })

	ctx := context.Background()
	sess, err := store.Begin(ctx)
	require.NoError(t, err)
	defer sess.Close()

	ad := &domain.Advert{Title: "t", Description: "d", Owner: "o"}
	require.NoError(t, sess.Add(ctx, ad))
	assert.Equal(t, fixed, ad.CreationDate)
	assert.Equal(t, 0, store.Len(), "nothing is visible before commit")

	require.NoError(t, sess.Commit())
	assert.Equal(t, 1, store.Len())
}

func TestStore_SessionsAreIsolatedUntilCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	writer, err := store.Begin(ctx)
	require.NoError(t, err)
	defer writer.Close()

	ad := &domain.Advert{Title: "t", Description: "d", Owner: "o"}
	require.NoError(t, writer.Add(ctx, ad))

	reader, err := store.Begin(ctx)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Get(ctx, ad.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, writer.Commit())

	got, err := reader.Get(ctx, ad.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
}
