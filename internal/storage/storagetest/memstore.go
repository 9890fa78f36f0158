// Package storagetest provides an in-memory object store for tests.
package storagetest

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/emilythestrangee/posts/backend/internal/storage"
)

// MemStore implements storage.ObjectStore and storage.URLSigner in memory.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	copyErr map[string]error
	delErr  map[string]error
	delay   time.Duration
	calls   []string
}

func NewMemStore(keys ...string) *MemStore {
	s := &MemStore{
		objects: map[string][]byte{},
		copyErr: map[string]error{},
		delErr:  map[string]error{},
	}
	for _, k := range keys {
		s.objects[k] = []byte(k)
	}
	return s
}

// FailCopy makes every copy from src return err.
func (s *MemStore) FailCopy(src string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.copyErr[src] = err
}

// FailDelete makes every delete of key return err.
func (s *MemStore) FailDelete(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delErr[key] = err
}

// SetDelay makes every operation wait d or until its context is done.
func (s *MemStore) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *MemStore) wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.delay
	s.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemStore) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "copy "+srcKey+" "+dstKey)
	if err := s.copyErr[srcKey]; err != nil {
		return err
	}
	data, ok := s.objects[srcKey]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, srcKey)
	}
	s.objects[dstKey] = append([]byte(nil), data...)
	return nil
}

func (s *MemStore) DeleteObject(ctx context.Context, key string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "delete "+key)
	if err := s.delErr[key]; err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

func (s *MemStore) SignedURL(_ context.Context, key, method, _ string, ttl time.Duration) (string, error) {
	q := url.Values{}
	q.Set("method", method)
	q.Set("expires", ttl.String())
	return "https://signed.example.com/" + key + "?" + q.Encode(), nil
}

func (s *MemStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	if err := s.wait(ctx); err != nil {
		return false, err
	}
	return s.Has(key), nil
}

// Has reports whether key currently exists.
func (s *MemStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// Keys returns the stored keys in sorted order.
func (s *MemStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Calls returns the operations performed so far, in order.
func (s *MemStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
