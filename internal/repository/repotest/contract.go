// Package repotest holds behaviour every repository.Store must share.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"advert-service/internal/domain"
	"advert-service/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs the shared suite. newStore must return an empty,
// schema-initialised store.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Helper()

	t.Run("InsertAssignsIDAndCreationDate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		ad := &domain.Advert{Title: "Bike", Description: "Red bike", Owner: "alice"}
		id := mustInsert(t, store, ad)

		assert.NotZero(t, id)
		assert.False(t, ad.CreationDate.IsZero())

		got := mustGet(t, store, id)
		assert.Equal(t, "Bike", got.Title)
		assert.Equal(t, "Red bike", got.Description)
		assert.Equal(t, "alice", got.Owner)
		assert.True(t, got.CreationDate.Equal(ad.CreationDate))

		second := mustInsert(t, store, &domain.Advert{Title: "Car", Description: "Blue car", Owner: "bob"})
		assert.NotEqual(t, id, second)

		require.NoError(t, store.Ping(ctx))
	})

	t.Run("InsertKeepsExplicitFields", func(t *testing.T) {
		store := newStore(t)

		created := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
		id := mustInsert(t, store, &domain.Advert{
			ID:           4242,
			Title:        "Lamp",
			Description:  "Desk lamp",
			Owner:        "carol",
			CreationDate: created,
		})
		assert.Equal(t, int64(4242), id)

		got := mustGet(t, store, id)
		assert.True(t, got.CreationDate.Equal(created), "got %v", got.CreationDate)
	})

	t.Run("InsertDuplicateIDConflicts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		mustInsert(t, store, &domain.Advert{ID: 7, Title: "a", Description: "b", Owner: "c"})

		sess, err := store.Begin(ctx)
		require.NoError(t, err)
		defer sess.Close()

		err = sess.Add(ctx, &domain.Advert{ID: 7, Title: "x", Description: "y", Owner: "z"})
		if err == nil {
			err = sess.Commit()
		}
		assert.ErrorIs(t, err, repository.ErrConflict)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sess, err := store.Begin(ctx)
		require.NoError(t, err)
		defer sess.Close()

		_, err = sess.Get(ctx, 999999)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("UpdateLoadedRecord", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id := mustInsert(t, store, &domain.Advert{Title: "Bike", Description: "Red bike", Owner: "alice"})
		before := mustGet(t, store, id)

		sess, err := store.Begin(ctx)
		require.NoError(t, err)
		defer sess.Close()

		ad, err := sess.Get(ctx, id)
		require.NoError(t, err)
		ad.Owner = "bob"
		require.NoError(t, sess.Add(ctx, ad))
		require.NoError(t, sess.Commit())

		after := mustGet(t, store, id)
		assert.Equal(t, "bob", after.Owner)
		assert.Equal(t, before.Title, after.Title)
		assert.Equal(t, before.Description, after.Description)
		assert.True(t, before.CreationDate.Equal(after.CreationDate))
	})

	t.Run("InterleavedUpdatesOfDifferentFieldsBothLand", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id := mustInsert(t, store, &domain.Advert{Title: "Bike", Description: "Red bike", Owner: "alice"})

		first, err := store.Begin(ctx)
		require.NoError(t, err)
		defer first.Close()
		second, err := store.Begin(ctx)
		require.NoError(t, err)
		defer second.Close()

		a1, err := first.Get(ctx, id)
		require.NoError(t, err)
		a2, err := second.Get(ctx, id)
		require.NoError(t, err)

		a1.Title = "Car"
		require.NoError(t, first.Add(ctx, a1))
		require.NoError(t, first.Commit())

		a2.Owner = "bob"
		require.NoError(t, second.Add(ctx, a2))
		require.NoError(t, second.Commit())

		got := mustGet(t, store, id)
		assert.Equal(t, "Car", got.Title)
		assert.Equal(t, "Red bike", got.Description)
		assert.Equal(t, "bob", got.Owner)
	})

	t.Run("UnchangedAddWritesNothing", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id := mustInsert(t, store, &domain.Advert{Title: "Bike", Description: "Red bike", Owner: "alice"})

		stale, err := store.Begin(ctx)
		require.NoError(t, err)
		defer stale.Close()
		ad, err := stale.Get(ctx, id)
		require.NoError(t, err)

		fresh, err := store.Begin(ctx)
		require.NoError(t, err)
		defer fresh.Close()
		current, err := fresh.Get(ctx, id)
		require.NoError(t, err)
		current.Title = "Car"
		require.NoError(t, fresh.Add(ctx, current))
		require.NoError(t, fresh.Commit())

		require.NoError(t, stale.Add(ctx, ad))
		require.NoError(t, stale.Commit())

		assert.Equal(t, "Car", mustGet(t, store, id).Title)
	})

	t.Run("DeleteThenGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		id := mustInsert(t, store, &domain.Advert{Title: "Bike", Description: "Red bike", Owner: "alice"})

		sess, err := store.Begin(ctx)
		require.NoError(t, err)
		defer sess.Close()

		ad, err := sess.Get(ctx, id)
		require.NoError(t, err)
		require.NoError(t, sess.Delete(ctx, ad))
		require.NoError(t, sess.Commit())

		check, err := store.Begin(ctx)
		require.NoError(t, err)
		defer check.Close()

		_, err = check.Get(ctx, id)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		err = check.Delete(ctx, ad)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("CloseWithoutCommitRollsBack", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sess, err := store.Begin(ctx)
		require.NoError(t, err)

		ad := &domain.Advert{Title: "Ghost", Description: "never committed", Owner: "dave"}
		require.NoError(t, sess.Add(ctx, ad))
		require.NoError(t, sess.Close())
		require.NoError(t, sess.Close(), "Close must be idempotent")

		check, err := store.Begin(ctx)
		require.NoError(t, err)
		defer check.Close()

		_, err = check.Get(ctx, ad.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("ClosedSessionRejectsWork", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sess, err := store.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, sess.Commit())

		assert.ErrorIs(t, sess.Commit(), repository.ErrSessionClosed)
		_, err = sess.Get(ctx, 1)
		assert.ErrorIs(t, err, repository.ErrSessionClosed)
		assert.NoError(t, sess.Close())
	})
}

func mustInsert(t *testing.T, store repository.Store, ad *domain.Advert) int64 {
	t.Helper()
	ctx := context.Background()

	sess, err := store.Begin(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Add(ctx, ad))
	require.NoError(t, sess.Commit())
	return ad.ID
}

func mustGet(t *testing.T, store repository.Store, id int64) *domain.Advert {
	t.Helper()
	ctx := context.Background()

	sess, err := store.Begin(ctx)
	require.NoError(t, err)
	defer sess.Close()

	ad, err := sess.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("advert %d not found", id)
	}
	require.NoError(t, err)
	return ad
}
