// Package gcs mirrors committed archives to a Google Cloud Storage bucket.
// The local filesystem store stays authoritative; the mirror is best-effort
// and never fails a commit.
package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkvault/internal/archive"
)

// Mirror wraps an archive.Store and uploads every committed article to GCS.
type Mirror struct {
	inner  archive.Store
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewMirror initializes a GCS client and verifies bucket access before
// returning a Mirror. Authentication uses Application Default Credentials.
func NewMirror(ctx context.Context, inner archive.Store, bucketName string, logger *zap.Logger) (*Mirror, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	bkt := client.Bucket(bucketName)
	if _, err := bkt.Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucketName, err)
	}

	return NewMirrorWithClient(inner, client, bucketName, logger), nil
}

// NewMirrorWithClient wires a Mirror around an existing client. Tests use it
// to point at a fake GCS endpoint.
func NewMirrorWithClient(inner archive.Store, client *storage.Client, bucketName string, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{inner: inner, client: client, bucket: bucketName, logger: logger}
}

// Exists delegates to the local store.
func (m *Mirror) Exists(ctx context.Context, id archive.ArticleID) (bool, error) {
	return m.inner.Exists(ctx, id)
}

// Read delegates to the local store.
func (m *Mirror) Read(ctx context.Context, id archive.ArticleID) (archive.Record, error) {
	return m.inner.Read(ctx, id)
}

// LastScrapedAt delegates to the local store.
func (m *Mirror) LastScrapedAt(ctx context.Context, id archive.ArticleID) (time.Time, bool, error) {
	return m.inner.LastScrapedAt(ctx, id)
}

// Write commits to the local store first, then mirrors the committed result.
// Upload problems are logged and dropped.
func (m *Mirror) Write(ctx context.Context, id archive.ArticleID, record archive.Record, assets archive.Assets) error {
	if err := m.inner.Write(ctx, id, record, assets); err != nil {
		return err
	}
	m.mirror(ctx, id, assets)
	return nil
}

// Close releases the GCS client.
func (m *Mirror) Close() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}

func (m *Mirror) mirror(ctx context.Context, id archive.ArticleID, assets archive.Assets) {
	committed, err := m.inner.Read(ctx, id)
	if err != nil {
		m.logger.Warn("mirror skipped, committed record unreadable",
			zap.String("article_id", string(id)), zap.Error(err))
		return
	}
	metadata, err := json.MarshalIndent(committed, "", "  ")
	if err != nil {
		m.logger.Warn("mirror skipped, record marshal failed",
			zap.String("article_id", string(id)), zap.Error(err))
		return
	}

	// Refs are filenames relative to the article directory; mirror objects
	// keep the same layout under an id/ prefix.
	objects := []struct {
		name string
		data []byte
	}{
		{"article.json", metadata},
		{committed.RawHTMLRef, assets.RawHTML},
		{committed.ImageRef, assets.Image},
		{committed.PDFRef, assets.PDF},
	}
	for _, obj := range objects {
		if obj.name == "" || len(obj.data) == 0 {
			continue
		}
		obj.name = string(id) + "/" + obj.name
		if err := m.upload(ctx, obj.name, obj.data); err != nil {
			m.logger.Warn("mirror upload failed",
				zap.String("article_id", string(id)),
				zap.String("object", obj.name),
				zap.Error(err),
			)
		}
	}
}

// upload writes one object to the bucket.
func (m *Mirror) upload(ctx context.Context, objectName string, data []byte) error {
	wc := m.client.Bucket(m.bucket).Object(objectName).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			m.logger.Warn("close GCS writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write GCS object %s: %w", objectName, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close GCS writer for object %s: %w", objectName, err)
	}
	return nil
}
