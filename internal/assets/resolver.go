// Package assets translates between asset URLs and object storage keys.
package assets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidAssetReference = errors.New("invalid asset reference")

// Path-style hosts put the bucket name in the first path segment.
var pathStyleHosts = map[string]bool{
	"storage.googleapis.com":   true,
	"storage.cloud.google.com": true,
}

const defaultBaseURL = "https://storage.googleapis.com"

// Resolver converts between storage keys and the URLs clients see. It knows
// the configured public base URL and bucket, so every URL it builds
// normalizes back to the key it was built from. A nil Resolver behaves like
// NewResolver("", "").
type Resolver struct {
	base   *url.URL
	bucket string
}

// NewResolver returns a Resolver for bucket served under baseURL. An empty
// or unparseable base falls back to the path-style GCS host.
func NewResolver(baseURL, bucket string) *Resolver {
	raw := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	base, err := url.Parse(raw)
	if raw == "" || err != nil || base.Host == "" {
		base, _ = url.Parse(defaultBaseURL)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawPath = ""
	base.RawQuery, base.Fragment = "", ""
	return &Resolver{base: base, bucket: strings.Trim(strings.TrimSpace(bucket), "/")}
}

var defaultResolver = NewResolver("", "")

// Normalize resolves ref with no configured base URL; see Resolver.Normalize.
func Normalize(ref string) (string, error) {
	return defaultResolver.Normalize(ref)
}

// SameObject reports whether two references normalize to the same key.
// Unparseable references never match anything.
func SameObject(a, b string) bool {
	return defaultResolver.SameObject(a, b)
}

// Normalize returns the storage key an asset reference points at. Signing
// query parameters, fragments, scheme and host are dropped, so a freshly
// signed URL and its unsigned canonical form normalize identically. On the
// configured base host the base path and the bucket segment are removed.
// A bare key (no scheme, no host) is returned as-is, which makes Normalize
// idempotent.
func (r *Resolver) Normalize(ref string) (string, error) {
	if r == nil {
		r = defaultResolver
	}
	raw := strings.TrimSpace(ref)
	if raw == "" {
		return "", fmt.Errorf("%w: empty reference", ErrInvalidAssetReference)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAssetReference, err)
	}

	var p string
	switch strings.ToLower(u.Scheme) {
	case "":
		if u.Host != "" {
			return "", fmt.Errorf("%w: %q has a host but no scheme", ErrInvalidAssetReference, raw)
		}
		p = u.Path
	case "gs":
		if u.Host == "" {
			return "", fmt.Errorf("%w: %q has no bucket", ErrInvalidAssetReference, raw)
		}
		p = u.Path
	case "http", "https":
		if u.Host == "" {
			return "", fmt.Errorf("%w: %q has no host", ErrInvalidAssetReference, raw)
		}
		host := strings.ToLower(u.Hostname())
		p = u.Path
		switch {
		case pathStyleHosts[host]:
			_, rest, ok := strings.Cut(strings.TrimLeft(p, "/"), "/")
			if !ok {
				return "", fmt.Errorf("%w: %q has no object path", ErrInvalidAssetReference, raw)
			}
			p = rest
		case host == strings.ToLower(r.base.Hostname()):
			p = r.trimBase(p)
		}
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAssetReference, u.Scheme)
	}

	key := strings.TrimLeft(p, "/")
	if key == "" {
		return "", fmt.Errorf("%w: %q has no object path", ErrInvalidAssetReference, raw)
	}
	return key, nil
}

// trimBase strips the configured base path and then the bucket segment from
// a path on the base host. Either is left alone when absent.
func (r *Resolver) trimBase(p string) string {
	if bp := r.base.Path; bp != "" {
		if p == bp {
			return ""
		}
		if rest, ok := strings.CutPrefix(p, bp+"/"); ok {
			p = rest
		}
	}
	p = strings.TrimLeft(p, "/")
	if r.bucket != "" {
		if rest, ok := strings.CutPrefix(p, r.bucket+"/"); ok {
			p = rest
		}
	}
	return p
}

func (r *Resolver) SameObject(a, b string) bool {
	ka, err := r.Normalize(a)
	if err != nil {
		return false
	}
	kb, err := r.Normalize(b)
	if err != nil {
		return false
	}
	return ka == kb
}

// CanonicalURL builds the stable, unsigned address of key:
// {base}/{bucket}/{key}. Path segments are escaped individually so "/"
// separators survive.
func (r *Resolver) CanonicalURL(key string) string {
	if r == nil {
		r = defaultResolver
	}
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	prefix := r.base.Scheme + "://" + r.base.Host + r.base.EscapedPath()
	if r.bucket == "" {
		return prefix + "/" + strings.Join(parts, "/")
	}
	return fmt.Sprintf("%s/%s/%s", prefix, url.PathEscape(r.bucket), strings.Join(parts, "/"))
}
