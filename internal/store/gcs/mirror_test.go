package gcs_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	gstorage "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/linkvault/internal/archive"
	"github.com/JakeFAU/linkvault/internal/store/gcs"
	"github.com/JakeFAU/linkvault/internal/store/memory"
)

type uploadRecorder struct {
	mu      sync.Mutex
	objects []string
	fail    bool
}

func (u *uploadRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if strings.Contains(r.URL.Path, "/upload/storage/v1/b/") {
		_, _ = io.ReadAll(r.Body)
		u.objects = append(u.objects, r.URL.Query().Get("name"))
		_, _ = w.Write([]byte(`{"name":"` + r.URL.Query().Get("name") + `"}`))
		return
	}
	_, _ = w.Write([]byte(`{}`))
}

func (u *uploadRecorder) names() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.objects))
	copy(out, u.objects)
	return out
}

func newTestMirror(t *testing.T, inner archive.Store, recorder *uploadRecorder) *gcs.Mirror {
	t.Helper()
	server := httptest.NewServer(recorder)
	t.Cleanup(server.Close)

	client, err := gstorage.NewClient(context.Background(),
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	return gcs.NewMirrorWithClient(inner, client, "test-bucket", zap.NewNop())
}

func sampleRecord(id archive.ArticleID) (archive.Record, archive.Assets) {
	record := archive.Record{URL: "https://example.com/a", Title: "A"}
	assets := archive.Assets{
		RawHTML:  []byte("<html><body>a</body></html>"),
		Image:    []byte{0x89, 'P', 'N', 'G'},
		ImageExt: ".png",
	}
	return record, assets
}

func TestMirrorUploadsCommittedObjects(t *testing.T) {
	inner := memory.New()
	recorder := &uploadRecorder{}
	mirror := newTestMirror(t, inner, recorder)

	id := archive.ArticleID("example_com_a_0011223344556677")
	record, assets := sampleRecord(id)
	require.NoError(t, mirror.Write(context.Background(), id, record, assets))

	stored, err := inner.Read(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "A", stored.Title)

	names := recorder.names()
	assert.Contains(t, names, string(id)+"/article.json")
}

func TestMirrorUploadFailureDoesNotFailWrite(t *testing.T) {
	inner := memory.New()
	recorder := &uploadRecorder{fail: true}
	mirror := newTestMirror(t, inner, recorder)

	id := archive.ArticleID("example_com_a_0011223344556677")
	record, assets := sampleRecord(id)
	require.NoError(t, mirror.Write(context.Background(), id, record, assets))

	exists, err := mirror.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMirrorLocalWriteFailureSkipsUpload(t *testing.T) {
	inner := memory.New()
	inner.WriteErr = assert.AnError
	recorder := &uploadRecorder{}
	mirror := newTestMirror(t, inner, recorder)

	id := archive.ArticleID("example_com_a_0011223344556677")
	record, assets := sampleRecord(id)
	require.Error(t, mirror.Write(context.Background(), id, record, assets))
	assert.Empty(t, recorder.names())
}
