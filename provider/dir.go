package provider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zackproser/portfolio-sub002/manifest"
)

var manifestExts = []string{".yaml", ".yml"}

// Dir serves manifests stored as <slug>.yaml (or .yml) files in one
// directory.
type Dir struct {
	root string
}

// NewDir returns a provider over the files in root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the directory served.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the file a slug would be read from, preferring .yaml.
func (d *Dir) Path(slug string) (string, error) {
	if err := checkSlug(slug); err != nil {
		return "", err
	}
	for _, ext := range manifestExts {
		path := filepath.Join(d.root, slug+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, slug)
}

// SlugFor returns the slug a file in the directory serves.
func SlugFor(path string) (string, bool) {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".yaml" && ext != ".yml" {
		return "", false
	}
	slug := strings.TrimSuffix(name, filepath.Ext(name))
	return slug, ValidSlug(slug)
}

func (d *Dir) List(ctx context.Context, category manifest.Category) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("reading manifest dir %s: %w", d.root, err)
	}

	seen := make(map[string]bool, len(entries))
	slugs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		slug, ok := SlugFor(entry.Name())
		if !ok || seen[slug] {
			continue
		}
		seen[slug] = true

		if category != "" {
			data, err := d.Read(ctx, slug)
			if err != nil {
				return nil, err
			}
			if !matchesCategory(PeekCategory(data), category) {
				continue
			}
		}
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs, nil
}

func (d *Dir) Read(ctx context.Context, slug string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.Path(slug)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- slug validated, path joined under root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, slug)
		}
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}
