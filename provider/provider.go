// Package provider supplies raw manifest text by slug.
package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/zackproser/portfolio-sub002/manifest"
)

var (
	// ErrNotFound is returned by Read when no manifest has the slug.
	ErrNotFound = errors.New("manifest not found")
	// ErrInvalidSlug is returned for slugs that cannot name a manifest.
	ErrInvalidSlug = errors.New("invalid slug")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidSlug reports whether slug is a well-formed manifest key.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

func checkSlug(slug string) error {
	if !ValidSlug(slug) {
		return fmt.Errorf("%w %q", ErrInvalidSlug, slug)
	}
	return nil
}

// Provider lists and reads manifest sources.
type Provider interface {
	// List returns the slugs of every manifest in category, sorted. An empty
	// category lists all manifests.
	List(ctx context.Context, category manifest.Category) ([]string, error)
	// Read returns the raw source of one manifest, or ErrNotFound.
	Read(ctx context.Context, slug string) ([]byte, error)
}

// Store is a Provider that accepts writes.
type Store interface {
	Provider
	Put(ctx context.Context, slug string, source []byte) error
	Delete(ctx context.Context, slug string) error
}

// Copy writes every manifest in src to dst and returns how many were copied.
func Copy(ctx context.Context, dst Store, src Provider) (int, error) {
	slugs, err := src.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("listing source manifests: %w", err)
	}
	for i, slug := range slugs {
		data, err := src.Read(ctx, slug)
		if err != nil {
			return i, fmt.Errorf("reading %q: %w", slug, err)
		}
		if err := dst.Put(ctx, slug, data); err != nil {
			return i, fmt.Errorf("writing %q: %w", slug, err)
		}
	}
	return len(slugs), nil
}

// PeekCategory reads the top-level category of a manifest without
// validating anything else. Text that does not parse yields "".
func PeekCategory(data []byte) manifest.Category {
	var head struct {
		Category string `yaml:"category"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return ""
	}
	return manifest.Category(head.Category)
}

// matchesCategory keeps manifests whose category cannot be read in every
// listing so they fail validation instead of disappearing from it.
func matchesCategory(got, want manifest.Category) bool {
	return want == "" || got == "" || got == want
}
