// Package fs_test tests the filesystem archive store.
package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkvault/internal/archive"
	"github.com/JakeFAU/linkvault/internal/store/fs"
)

func newStore(t *testing.T) (*fs.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := fs.New(fs.Config{Root: dir}, zap.NewNop())
	require.NoError(t, err)
	return store, dir
}

func sampleRecord(id archive.ArticleID) archive.Record {
	return archive.Record{
		ArticleID: id,
		URL:       "https://example.com/a",
		ScrapedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Title:     "A Title",
		BodyText:  "Body text.",
	}
}

func TestNew(t *testing.T) {
	t.Run("MissingRoot", func(t *testing.T) {
		_, err := fs.New(fs.Config{}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("RootIsAFile", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "afile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := fs.New(fs.Config{Root: file}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("CreatesMissingRoot", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "archive")
		_, err := fs.New(fs.Config{Root: root}, zap.NewNop())
		require.NoError(t, err)
		info, err := os.Stat(root)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestWriteReadRoundtrip(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()
	id := archive.ArticleID("example.com_a_0123456789abcdef")

	record := sampleRecord(id)
	assets := archive.Assets{
		RawHTML:  []byte("<html>hello</html>"),
		Image:    []byte{0xFF, 0xD8},
		ImageExt: ".jpg",
		PDF:      []byte("%PDF-1.4"),
	}
	require.NoError(t, store.Write(ctx, id, record, assets))

	got, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, record.Title, got.Title)
	assert.Equal(t, "page.html", got.RawHTMLRef)
	assert.Equal(t, "image.jpg", got.ImageRef)
	assert.Equal(t, "article.pdf", got.PDFRef)

	for _, name := range []string{"article.json", "page.html", "image.jpg", "article.pdf"} {
		_, statErr := os.Stat(filepath.Join(dir, string(id), name))
		assert.NoError(t, statErr, name)
	}

	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	at, ok, err := store.LastScrapedAt(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.ScrapedAt, at)
}

func TestReadMissing(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Read(context.Background(), "missing_id_0000000000000000")
	assert.ErrorIs(t, err, archive.ErrNotFound)

	exists, err := store.Exists(context.Background(), "missing_id_0000000000000000")
	require.NoError(t, err)
	assert.False(t, exists)

	_, ok, err := store.LastScrapedAt(context.Background(), "missing_id_0000000000000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidMetadataIsNotArchived(t *testing.T) {
	store, dir := newStore(t)
	id := archive.ArticleID("example.com_bad_0123456789abcdef")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, string(id)), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, string(id), "article.json"), []byte("{not json"), 0o600))

	exists, err := store.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, exists, "torn metadata must not count as archived")
}

func TestWriteFullReplace(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()
	id := archive.ArticleID("example.com_a_0123456789abcdef")

	first := sampleRecord(id)
	require.NoError(t, store.Write(ctx, id, first, archive.Assets{
		RawHTML: []byte("<html>v1</html>"),
		Image:   []byte{0x89}, ImageExt: ".png",
	}))

	second := sampleRecord(id)
	second.Title = "Updated Title"
	require.NoError(t, store.Write(ctx, id, second, archive.Assets{
		RawHTML: []byte("<html>v2</html>"),
	}))

	got, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", got.Title)
	assert.Empty(t, got.ImageRef, "replace is total, prior assets must not leak through")

	// The old image file must be gone along with the old directory.
	_, statErr := os.Stat(filepath.Join(dir, string(id), "image.png"))
	assert.True(t, os.IsNotExist(statErr))

	body, err := os.ReadFile(filepath.Join(dir, string(id), "page.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>v2</html>", string(body))
}

func TestWriteRequiresRawHTML(t *testing.T) {
	store, _ := newStore(t)
	id := archive.ArticleID("example.com_a_0123456789abcdef")
	err := store.Write(context.Background(), id, sampleRecord(id), archive.Assets{})
	require.Error(t, err)
	assert.True(t, archive.IsStorageError(err))
}

func TestRecoverDropsStaleStaging(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()
	id := archive.ArticleID("example.com_a_0123456789abcdef")

	require.NoError(t, store.Write(ctx, id, sampleRecord(id), archive.Assets{RawHTML: []byte("<html>v1</html>")}))

	// Simulate a crash that left a half-written staging directory behind.
	stale := filepath.Join(dir, ".staging", string(id)+".deadbeef0000")
	require.NoError(t, os.MkdirAll(stale, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "page.html"), []byte("<html>partial"), 0o600))

	require.NoError(t, store.Recover(ctx))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale staging must be swept")

	got, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A Title", got.Title, "prior committed record must survive recovery")
}

func TestRecoverRestoresTrashedVersion(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()
	id := archive.ArticleID("example.com_a_0123456789abcdef")

	require.NoError(t, store.Write(ctx, id, sampleRecord(id), archive.Assets{RawHTML: []byte("<html>v1</html>")}))

	// Simulate a crash between moving the prior version aside and swapping
	// the new version in: article dir gone, old version in trash.
	trash := filepath.Join(dir, ".trash", string(id)+".deadbeef0000")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".trash"), 0o750))
	require.NoError(t, os.Rename(filepath.Join(dir, string(id)), trash))

	_, err := store.Read(ctx, id)
	require.ErrorIs(t, err, archive.ErrNotFound)

	require.NoError(t, store.Recover(ctx))

	got, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A Title", got.Title, "trashed prior version must be restored")
}

func TestRecoverDropsSupersededTrash(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()
	id := archive.ArticleID("example.com_a_0123456789abcdef")

	require.NoError(t, store.Write(ctx, id, sampleRecord(id), archive.Assets{RawHTML: []byte("<html>v2</html>")}))

	trash := filepath.Join(dir, ".trash", string(id)+".deadbeef0000")
	require.NoError(t, os.MkdirAll(trash, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(trash, "article.json"), []byte("{}"), 0o600))

	require.NoError(t, store.Recover(ctx))

	_, err := os.Stat(trash)
	assert.True(t, os.IsNotExist(err))

	got, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A Title", got.Title, "committed version must win over trash")
}
