package utils

import (
	"context"
	"fmt"
)

// GCSObjectStore is the blob-storage adapter for receipt images. It exposes
// the narrow contract the pipeline needs: store bytes, get back a resolvable
// URL, delete by URL. Every failure is classified as ErrStorageError.
type GCSObjectStore struct{}

func NewGCSObjectStore() *GCSObjectStore {
	return &GCSObjectStore{}
}

func (s *GCSObjectStore) Put(ctx context.Context, objectKey string, data []byte, contentType string) (string, error) {
	if err := UploadBytesToGCS(ctx, objectKey, data, contentType); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return BuildObjectAccessURL(objectKey), nil
}

func (s *GCSObjectStore) Delete(ctx context.Context, accessURL string) error {
	objectKey := ExtractObjectKeyFromURL(accessURL)
	if objectKey == "" {
		return fmt.Errorf("%w: cannot resolve object key from %q", ErrStorageError, accessURL)
	}
	if err := DeleteObjectFromGCS(ctx, objectKey); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return nil
}
