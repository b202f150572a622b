package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"

	"github.com/ytakahashi/boardsync/internal/store"
)

const downloadTokenKey = "firebaseStorageDownloadTokens"

// BucketStore is a store.ObjectStore over a Firebase Storage bucket. Objects
// are tagged with a download token so the URL it hands out works without
// signing, the same way the Firebase client SDKs do.
type BucketStore struct {
	name   string
	bucket *gcs.BucketHandle
}

func NewBucketStore(ctx context.Context, app *firebase.App, bucketName string) (*BucketStore, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", bucketName, err)
	}
	return &BucketStore{name: bucketName, bucket: bucket}, nil
}

func (b *BucketStore) Upload(ctx context.Context, key, contentType string, r io.Reader) error {
	w := b.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{downloadTokenKey: uuid.NewString()}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (b *BucketStore) DownloadURL(ctx context.Context, key string) (string, error) {
	attrs, err := b.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return "", fmt.Errorf("object %s: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s attributes: %w", key, err)
	}
	token := attrs.Metadata[downloadTokenKey]
	if token == "" {
		return "", fmt.Errorf("object %s has no download token", key)
	}
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		b.name, url.PathEscape(key), url.QueryEscape(token)), nil
}

var _ store.ObjectStore = (*BucketStore)(nil)
