package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkvault/internal/archive"
	"github.com/JakeFAU/linkvault/internal/store/memory"
)

func TestMemoryStoreRoundtrip(t *testing.T) {
	t.Parallel()

	store := memory.New()
	ctx := context.Background()
	id := archive.ArticleID("example.com_a_0123456789abcdef")

	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)

	record := archive.Record{
		URL:       "https://example.com/a",
		ScrapedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Title:     "Hello",
	}
	require.NoError(t, store.Write(ctx, id, record, archive.Assets{RawHTML: []byte("<html>")}))

	got, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, id, got.ArticleID)

	at, ok, err := store.LastScrapedAt(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.ScrapedAt, at)

	assets, ok := store.Assets(id)
	require.True(t, ok)
	assert.Equal(t, []byte("<html>"), assets.RawHTML)
}

func TestMemoryStoreWriteErr(t *testing.T) {
	t.Parallel()

	store := memory.New()
	store.WriteErr = errors.New("disk on fire")
	err := store.Write(context.Background(), "id_x_0000000000000000", archive.Record{}, archive.Assets{})
	assert.Error(t, err)
	assert.Equal(t, 0, store.Len())
}
