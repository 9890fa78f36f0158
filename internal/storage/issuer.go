package storage

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/posts/backend/internal/assets"
)

// Upload is what a client needs to PUT a file into its staging area.
type Upload struct {
	UploadURL    string    `json:"uploadUrl"`
	Key          string    `json:"key"`
	CanonicalURL string    `json:"canonicalUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Issuer hands out time-bounded upload and view URLs.
type Issuer struct {
	signer URLSigner
	layout Layout
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
}

func NewIssuer(signer URLSigner, layout Layout, ttl time.Duration) *Issuer {
	if ttl <= 0 || ttl > time.Hour {
		ttl = time.Hour
	}
	return &Issuer{
		signer: signer,
		layout: layout,
		ttl:    ttl,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// IssueUploadURL reserves a fresh key in ownerID's staging area and signs a
// PUT for it.
func (i *Issuer) IssueUploadURL(ctx context.Context, fileName, contentType string, ownerID int) (Upload, error) {
	key := assets.TempKey(i.layout.TempPrefix, ownerID, i.newID(), fileName)
	signed, err := i.signer.SignedURL(ctx, key, http.MethodPut, contentType, i.ttl)
	if err != nil {
		return Upload{}, &OpError{Op: "sign upload", Key: key, Err: err}
	}
	return Upload{
		UploadURL:    signed,
		Key:          key,
		CanonicalURL: i.layout.CanonicalURL(key),
		ExpiresAt:    i.now().UTC().Add(i.ttl),
	}, nil
}

// IssueViewURL signs a GET for key.
func (i *Issuer) IssueViewURL(ctx context.Context, key string) (string, error) {
	signed, err := i.signer.SignedURL(ctx, key, http.MethodGet, "", i.ttl)
	if err != nil {
		return "", &OpError{Op: "sign view", Key: key, Err: err}
	}
	return signed, nil
}
