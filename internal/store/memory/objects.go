package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/ytakahashi/boardsync/internal/store"
)

type object struct {
	contentType string
	data        []byte
}

// Objects is an in-process ObjectStore. Download URLs are baseURL
// followed by the key with each path segment escaped.
type Objects struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]object
}

func NewObjects(baseURL string) *Objects {
	return &Objects{baseURL: strings.TrimRight(baseURL, "/"), objects: map[string]object{}}
}

func (o *Objects) Upload(ctx context.Context, key, contentType string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	o.mu.Lock()
	o.objects[key] = object{contentType: contentType, data: buf.Bytes()}
	o.mu.Unlock()
	return nil
}

func (o *Objects) DownloadURL(ctx context.Context, key string) (string, error) {
	o.mu.RLock()
	_, ok := o.objects[key]
	o.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("object %s: %w", key, store.ErrNotFound)
	}
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return o.baseURL + "/" + strings.Join(segments, "/"), nil
}

// Open returns the stored bytes and content type of key.
func (o *Objects) Open(key string) ([]byte, string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	obj, ok := o.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("object %s: %w", key, store.ErrNotFound)
	}
	return obj.data, obj.contentType, nil
}
