package posts

import (
	"strings"

	"github.com/emilythestrangee/posts/backend/internal/assets"
)

// coverInput is everything cover resolution looks at.
type coverInput struct {
	// Requested is the raw cover reference from the edit, nil when absent.
	Requested *string
	Kept      []keptImage
	// Promoted maps the temporary key of each promoted image to its
	// canonical URL.
	Promoted map[string]string
	Previous *string
	Resolver *assets.Resolver
}

// coverStrategy returns a cover URL for the normalized requested key, or
// false when it does not apply.
type coverStrategy struct {
	name    string
	resolve func(key string, in coverInput) (string, bool)
}

// coverStrategies are tried in order; the first match wins.
var coverStrategies = []coverStrategy{
	{name: "kept", resolve: coverFromKept},
	{name: "promoted", resolve: coverFromPromotion},
	{name: "promoted_canonical", resolve: coverFromPromotedCanonical},
}

const (
	coverSourcePrevious   = "previous"
	coverSourceUnresolved = "previous_unresolved"
)

func coverFromKept(key string, in coverInput) (string, bool) {
	for _, k := range in.Kept {
		if k.Incoming.Key == key {
			return k.Existing.URL, true
		}
	}
	return "", false
}

func coverFromPromotion(key string, in coverInput) (string, bool) {
	canonical, ok := in.Promoted[key]
	return canonical, ok
}

func coverFromPromotedCanonical(key string, in coverInput) (string, bool) {
	for _, canonical := range in.Promoted {
		if ck, err := in.Resolver.Normalize(canonical); err == nil && ck == key {
			return canonical, true
		}
	}
	return "", false
}

// resolveCover picks the cover for the edited post and names the rule that
// produced it. A cover that cannot be resolved falls back to the previous
// value; it is never cleared.
func resolveCover(in coverInput) (*string, string) {
	if in.Requested == nil || strings.TrimSpace(*in.Requested) == "" {
		return in.Previous, coverSourcePrevious
	}
	key, err := in.Resolver.Normalize(*in.Requested)
	if err != nil {
		return in.Previous, coverSourceUnresolved
	}
	for _, s := range coverStrategies {
		if url, ok := s.resolve(key, in); ok {
			return &url, s.name
		}
	}
	return in.Previous, coverSourceUnresolved
}
