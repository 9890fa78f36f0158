package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
)

// GCSStore is the Google Cloud Storage backend for a single bucket.
//
// When SignerEmail is set, URLs are signed through the IAM Credentials
// SignBlob API on behalf of that service account, which works on Cloud Run
// without a JSON key. Otherwise the client library detects credentials
// itself.
type GCSStore struct {
	client      *gcs.Client
	bucket      string
	signerEmail string
	iam         *iamcredentials.Service
}

func NewGCSStore(ctx context.Context, bucket, signerEmail string, opts ...option.ClientOption) (*GCSStore, error) {
	b := strings.TrimSpace(bucket)
	if b == "" {
		return nil, errors.New("gcs: bucket is empty")
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: client init failed: %w", err)
	}
	s := &GCSStore{client: client, bucket: b, signerEmail: strings.TrimSpace(signerEmail)}
	if s.signerEmail != "" {
		svc, err := iamcredentials.NewService(ctx, opts...)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs: iamcredentials init failed: %w", err)
		}
		s.iam = svc
	}
	return s, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Bucket() string {
	return s.bucket
}

func (s *GCSStore) object(key string) (*gcs.ObjectHandle, error) {
	k := strings.TrimLeft(strings.TrimSpace(key), "/")
	if k == "" {
		return nil, errors.New("gcs: object key is empty")
	}
	return s.client.Bucket(s.bucket).Object(k), nil
}

// CopyObject copies srcKey to dstKey inside the bucket, keeping metadata.
func (s *GCSStore) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	src, err := s.object(srcKey)
	if err != nil {
		return err
	}
	dst, err := s.object(dstKey)
	if err != nil {
		return err
	}
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, srcKey)
		}
		return err
	}
	return nil
}

// DeleteObject removes key. A missing object is not an error.
func (s *GCSStore) DeleteObject(ctx context.Context, key string) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (s *GCSStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	obj, err := s.object(key)
	if err != nil {
		return false, err
	}
	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SignedURL issues a V4 signed URL for method on key.
func (s *GCSStore) SignedURL(ctx context.Context, key, method, contentType string, ttl time.Duration) (string, error) {
	k := strings.TrimLeft(strings.TrimSpace(key), "/")
	if k == "" {
		return "", errors.New("gcs: object key is empty")
	}
	if method == "" {
		method = http.MethodGet
	}
	opts := &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  method,
		Expires: time.Now().UTC().Add(ttl),
	}
	if ct := strings.TrimSpace(contentType); ct != "" {
		opts.ContentType = ct
	}
	if s.iam != nil {
		opts.GoogleAccessID = s.signerEmail
		opts.SignBytes = s.signBytes(ctx)
	}
	return s.client.Bucket(s.bucket).SignedURL(k, opts)
}

func (s *GCSStore) signBytes(ctx context.Context) func([]byte) ([]byte, error) {
	name := fmt.Sprintf("projects/-/serviceAccounts/%s", s.signerEmail)
	return func(b []byte) ([]byte, error) {
		req := &iamcredentials.SignBlobRequest{
			Payload: base64.StdEncoding.EncodeToString(b),
		}
		resp, err := s.iam.Projects.ServiceAccounts.SignBlob(name, req).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(resp.SignedBlob)
	}
}
