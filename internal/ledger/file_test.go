package ledger_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkvault/internal/archive"
	"github.com/JakeFAU/linkvault/internal/ledger"
)

func TestFileBackendPersistsAcrossRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	id := archive.ArticleID("example.com_b_0123456789abcdef")

	backend, err := ledger.NewFileBackend(dir)
	require.NoError(t, err)
	l, err := ledger.New(ctx, backend, &fakeClock{now: start}, ledger.Options{}, zap.NewNop())
	require.NoError(t, err)

	_, err = l.RecordFailure(ctx, id, "https://example.com/b", start)
	require.NoError(t, err)

	// Simulated restart: a fresh backend and ledger over the same dir.
	backend2, err := ledger.NewFileBackend(dir)
	require.NoError(t, err)
	l2, err := ledger.New(ctx, backend2, &fakeClock{now: start.Add(time.Hour)}, ledger.Options{}, zap.NewNop())
	require.NoError(t, err)

	status := l2.Status(id)
	require.Equal(t, archive.StateCooling, status.State)
	assert.Equal(t, start.Add(7*24*time.Hour), status.CooldownUntil)
}

func TestFileBackendPermanentSetIsAppendOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clk := &fakeClock{now: start}
	id := archive.ArticleID("example.com_b_0123456789abcdef")

	backend, err := ledger.NewFileBackend(dir)
	require.NoError(t, err)
	l, err := ledger.New(ctx, backend, clk, ledger.Options{MaxFailures: 2}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = l.RecordFailure(ctx, id, "https://example.com/b", clk.now)
		require.NoError(t, err)
		clk.now = clk.now.Add(8 * 24 * time.Hour)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "permanent.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], string(id))

	// The permanent mark survives even if the failures document vanishes.
	require.NoError(t, os.Remove(filepath.Join(dir, "failures.json")))

	backend2, err := ledger.NewFileBackend(dir)
	require.NoError(t, err)
	l2, err := ledger.New(ctx, backend2, clk, ledger.Options{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, archive.StatePermanent, l2.Status(id).State)
}

func TestFileBackendEmptyDirIsFirstRun(t *testing.T) {
	t.Parallel()

	backend, err := ledger.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	records, err := backend.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileBackendRejectsEmptyDir(t *testing.T) {
	t.Parallel()

	_, err := ledger.NewFileBackend("  ")
	assert.Error(t, err)
}
