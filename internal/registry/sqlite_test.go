package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreInsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("assigns id and persists", func(t *testing.T) {
		id, err := store.Insert(ctx, Document{
			FileHash:   "hash-a",
			Filename:   "manual.pdf",
			SystemName: "erp",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		doc, err := store.FindByHash(ctx, "hash-a")
		require.NoError(t, err)
		assert.Equal(t, id, doc.ID)
		assert.Equal(t, "manual.pdf", doc.Filename)
		assert.Equal(t, "erp", doc.SystemName)
		assert.False(t, doc.CreatedAt.IsZero())
	})

	t.Run("duplicate hash rejected", func(t *testing.T) {
		_, err := store.Insert(ctx, Document{
			FileHash:   "hash-a",
			Filename:   "same-content.pdf",
			SystemName: "erp",
		})
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("different hash accepted", func(t *testing.T) {
		_, err := store.Insert(ctx, Document{
			FileHash:   "hash-b",
			Filename:   "other.pdf",
			SystemName: "erp",
		})
		assert.NoError(t, err)
	})
}

func TestSQLiteStoreFindByHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.FindByHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, hash := range []string{"h1", "h2", "h3"} {
		_, err := store.Insert(ctx, Document{
			FileHash:   hash,
			Filename:   hash + ".pdf",
			SystemName: "erp",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	t.Run("newest first", func(t *testing.T) {
		docs, err := store.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, "h3", docs[0].FileHash)
		assert.Equal(t, "h2", docs[1].FileHash)
		assert.Equal(t, "h1", docs[2].FileHash)
	})

	t.Run("limit respected", func(t *testing.T) {
		docs, err := store.List(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})
}

func TestSQLiteStoreDeleteByHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, Document{FileHash: "h1", Filename: "a.pdf", SystemName: "erp"})
	require.NoError(t, err)

	t.Run("removes the record", func(t *testing.T) {
		removed, err := store.DeleteByHash(ctx, "h1")
		require.NoError(t, err)
		assert.True(t, removed)

		_, err = store.FindByHash(ctx, "h1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("absent hash reports not removed", func(t *testing.T) {
		removed, err := store.DeleteByHash(ctx, "h1")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("hash reusable after delete", func(t *testing.T) {
		_, err := store.Insert(ctx, Document{FileHash: "h1", Filename: "again.pdf", SystemName: "erp"})
		assert.NoError(t, err)
	})
}
