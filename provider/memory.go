package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zackproser/portfolio-sub002/manifest"
)

// Memory is an in-process manifest store.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates a store seeded with sources keyed by slug.
func NewMemory(sources map[string]string) *Memory {
	m := &Memory{items: make(map[string][]byte, len(sources))}
	for slug, src := range sources {
		m.items[slug] = []byte(src)
	}
	return m
}

// List returns matching slugs in sorted order.
func (m *Memory) List(ctx context.Context, category manifest.Category) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	slugs := make([]string, 0, len(m.items))
	for slug, data := range m.items {
		if matchesCategory(PeekCategory(data), category) {
			slugs = append(slugs, slug)
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}

func (m *Memory) Read(ctx context.Context, slug string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.items[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, slug)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Put(ctx context.Context, slug string, source []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkSlug(slug); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[slug] = append([]byte(nil), source...)
	return nil
}

func (m *Memory) Delete(ctx context.Context, slug string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[slug]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, slug)
	}
	delete(m.items, slug)
	return nil
}
