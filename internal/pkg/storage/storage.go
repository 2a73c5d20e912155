// Package storage reads objects from a single configured bucket on S3, MinIO or
// Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrTooLarge is returned by ReadAll when the object exceeds the size limit.
	ErrTooLarge = errors.New("storage: object too large")
	// ErrKeyRequired is returned for an empty object key.
	ErrKeyRequired = errors.New("storage: object key is required")
)

// Storage reads objects by key.
type Storage interface {
	io.Closer

	// GetObject opens the object for reading. The caller closes the reader.
	GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// StatObject returns object metadata without reading its contents.
	StatObject(ctx context.Context, key string) (ObjectInfo, error)
}

// ObjectInfo describes object metadata.
type ObjectInfo struct {
	Bucket      string
	Key         string
	Size        int64
	ETag        string
	ContentType string
	UpdatedAt   time.Time
}

// ReadAll reads the whole object, refusing anything larger than maxBytes.
// A non-positive maxBytes disables the limit.
func ReadAll(ctx context.Context, s Storage, key string, maxBytes int64) ([]byte, ObjectInfo, error) {
	if key == "" {
		return nil, ObjectInfo{}, ErrKeyRequired
	}

	rc, info, err := s.GetObject(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	defer rc.Close()

	if maxBytes > 0 && info.Size > maxBytes {
		return nil, info, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, key, info.Size)
	}

	var r io.Reader = rc
	if maxBytes > 0 {
		r = io.LimitReader(rc, maxBytes+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, info, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, info, fmt.Errorf("%w: %s", ErrTooLarge, key)
	}

	return data, info, nil
}
