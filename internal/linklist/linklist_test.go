package linklist_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkvault/internal/linklist"
)

const sampleList = `
sections:
  - name: Engineering
    links:
      - url: https://example.com/a
        tags: [go, systems]
        note: worth rereading
        added_at: 2026-01-15T00:00:00Z
      - url: https://example.com/b
  - name: Essays
    links:
      - url: https://example.org/essay
        tags: [writing]
`

func TestParseOrderedRecords(t *testing.T) {
	t.Parallel()

	records, err := linklist.Parse([]byte(sampleList))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "https://example.com/a", records[0].URL)
	assert.Equal(t, []string{"go", "systems"}, records[0].Tags)
	assert.Equal(t, "worth rereading", records[0].Note)
	assert.Equal(t, "Engineering", records[0].Section)
	assert.Equal(t, 2026, records[0].AddedAt.Year())

	assert.Equal(t, "https://example.com/b", records[1].URL)
	assert.Equal(t, "Engineering", records[1].Section)

	assert.Equal(t, "https://example.org/essay", records[2].URL)
	assert.Equal(t, "Essays", records[2].Section)
}

func TestParseRejectsMissingURL(t *testing.T) {
	t.Parallel()

	_, err := linklist.Parse([]byte(`
sections:
  - name: Engineering
    links:
      - note: no url here
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no url")
}

func TestParseRejectsUnnamedSection(t *testing.T) {
	t.Parallel()

	_, err := linklist.Parse([]byte(`
sections:
  - links:
      - url: https://example.com/a
`))
	assert.Error(t, err)
}

func TestParseRejectsEmptyList(t *testing.T) {
	t.Parallel()

	_, err := linklist.Parse([]byte(`sections: []`))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "links.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleList), 0o600))

	records, err := linklist.Load(path)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = linklist.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
