package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// BlobStore is an in-memory storage.BlobStore.
type BlobStore struct {
	mu      sync.Mutex
	Files   map[string][]byte
	Deleted []string
	FailDel bool
	n       int
}

func NewBlobStore() *BlobStore {
	return &BlobStore{Files: make(map[string][]byte)}
}

func (b *BlobStore) Upload(_ context.Context, r io.Reader, folder, fileName, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	url := fmt.Sprintf("https://blob.test/%s/%d-%s", folder, b.n, fileName)
	b.Files[url] = data
	return url, nil
}

func (b *BlobStore) Delete(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailDel {
		return errors.New("blob store down")
	}
	delete(b.Files, url)
	b.Deleted = append(b.Deleted, url)
	return nil
}

func (b *BlobStore) DeletedURLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.Deleted...)
}
