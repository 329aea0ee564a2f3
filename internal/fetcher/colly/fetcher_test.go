package collyfetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkvault/internal/archive"
	collyfetcher "github.com/JakeFAU/linkvault/internal/fetcher/colly"
)

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "linkvault-test/1.0", r.UserAgent())
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := collyfetcher.New(collyfetcher.Config{UserAgent: "linkvault-test/1.0"})
	result, err := f.Fetch(context.Background(), archive.FetchRequest{URL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, string(result.HTML), "hello")
	assert.False(t, result.UsedHeadless)
	assert.Positive(t, result.Duration)
}

func TestFetchRejectionClassified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := collyfetcher.New(collyfetcher.Config{})
	_, err := f.Fetch(context.Background(), archive.FetchRequest{URL: srv.URL})
	require.Error(t, err)

	var fe *archive.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, archive.KindRejected, fe.Kind)
	assert.Equal(t, http.StatusGone, fe.StatusCode)
}

func TestFetchConnectionRefusedIsTransient(t *testing.T) {
	t.Parallel()

	// A server that is already closed refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), archive.FetchRequest{URL: url})
	require.Error(t, err)

	var fe *archive.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, archive.KindTransient, fe.Kind)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := collyfetcher.New(collyfetcher.Config{})
	_, err := f.Fetch(ctx, archive.FetchRequest{URL: srv.URL})
	require.Error(t, err)

	var fe *archive.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, archive.KindTransient, fe.Kind)
}

func TestFetchAsset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50, 0x4E, 0x47})
	}))
	defer srv.Close()

	f := collyfetcher.New(collyfetcher.Config{})
	body, contentType, err := f.FetchAsset(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, []byte{0x89, 0x50, 0x4E, 0x47}, body)
}

func TestFetchAssetMissing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := collyfetcher.New(collyfetcher.Config{})
	_, _, err := f.FetchAsset(context.Background(), srv.URL)
	require.Error(t, err)

	var fe *archive.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, archive.KindRejected, fe.Kind)
}
