// Package storage moves post assets around object storage and issues
// time-bounded URLs for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrStorageOperationFailed = errors.New("storage operation failed")
	ErrObjectNotFound         = errors.New("object not found")
)

// ObjectStore is the subset of object storage primitives the lifecycle
// manager consumes. Keys are bucket-relative object paths.
type ObjectStore interface {
	CopyObject(ctx context.Context, srcKey, dstKey string) error
	DeleteObject(ctx context.Context, key string) error
}

// ObjectStat is implemented by stores that can check for an object. The
// lifecycle manager uses it to recognise promotions completed by an earlier,
// uncommitted attempt of the same edit.
type ObjectStat interface {
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// URLSigner issues signed URLs for a single object.
type URLSigner interface {
	SignedURL(ctx context.Context, key, method, contentType string, ttl time.Duration) (string, error)
}

// OpError records which operation failed on which key. It matches both
// ErrStorageOperationFailed and the underlying error with errors.Is.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{ErrStorageOperationFailed, e.Err}
}
