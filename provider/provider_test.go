package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/zackproser/portfolio-sub002/manifest"
)

const (
	llmSource    = "schema_version: \"1.0\"\nslug: openai-api\ncategory: llm_api\n"
	vectorSource = "schema_version: \"1.0\"\nslug: pinecone\ncategory: vector_db\n"
	brokenSource = "slug: [unterminated\n"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	path := filepath.Join(t.TempDir(), "manifests.sqlite")
	store, err := NewSQLite(SQLiteConfig{DSN: path})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile(%s): %v", name, err)
	}
}

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for slug, src := range map[string]string{
		"openai-api": llmSource,
		"pinecone":   vectorSource,
		"broken":     brokenSource,
	} {
		if err := s.Put(ctx, slug, []byte(src)); err != nil {
			t.Fatalf("Put(%s): %v", slug, err)
		}
	}
}

func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List(all): %v", err)
	}
	if want := []string{"broken", "openai-api", "pinecone"}; !reflect.DeepEqual(all, want) {
		t.Fatalf("List(all) = %v, want %v", all, want)
	}

	llm, err := s.List(ctx, manifest.CategoryLLMAPI)
	if err != nil {
		t.Fatalf("List(llm_api): %v", err)
	}
	if want := []string{"broken", "openai-api"}; !reflect.DeepEqual(llm, want) {
		t.Fatalf("List(llm_api) = %v, want %v", llm, want)
	}

	got, err := s.Read(ctx, "pinecone")
	if err != nil {
		t.Fatalf("Read(pinecone): %v", err)
	}
	if string(got) != vectorSource {
		t.Fatalf("Read(pinecone) = %q", got)
	}

	if _, err := s.Read(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, "pinecone", []byte(llmSource)); err != nil {
		t.Fatalf("Put(replace): %v", err)
	}
	llm, _ = s.List(ctx, manifest.CategoryLLMAPI)
	if want := []string{"broken", "openai-api", "pinecone"}; !reflect.DeepEqual(llm, want) {
		t.Fatalf("List(llm_api) after replace = %v, want %v", llm, want)
	}

	if err := s.Delete(ctx, "broken"); err != nil {
		t.Fatalf("Delete(broken): %v", err)
	}
	if err := s.Delete(ctx, "broken"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete(broken) twice error = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, "../escape", []byte(llmSource)); !errors.Is(err, ErrInvalidSlug) {
		t.Fatalf("Put(../escape) error = %v, want ErrInvalidSlug", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemory(nil))
}

func TestSQLiteStore(t *testing.T) {
	testStoreContract(t, newTestSQLite(t))
}

func TestSQLiteStore_UpdatedAt(t *testing.T) {
	store := newTestSQLite(t)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	ctx := context.Background()
	if err := store.Put(ctx, "openai-api", []byte(llmSource)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.UpdatedAt(ctx, "openai-api")
	if err != nil {
		t.Fatalf("UpdatedAt: %v", err)
	}
	if !got.Equal(fixed) {
		t.Fatalf("UpdatedAt = %v, want %v", got, fixed)
	}
	if _, err := store.UpdatedAt(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdatedAt(missing) error = %v, want ErrNotFound", err)
	}
}

func TestNewSQLite_RequiresDSN(t *testing.T) {
	if _, err := NewSQLite(SQLiteConfig{DSN: "  "}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestDir_ListAndRead(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openai-api.yaml", llmSource)
	writeFile(t, dir, "pinecone.yml", vectorSource)
	writeFile(t, dir, "broken.yaml", brokenSource)
	writeFile(t, dir, "README.md", "# manifests")
	writeFile(t, dir, "Bad Name.yaml", llmSource)
	if err := os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}

	d := NewDir(dir)
	ctx := context.Background()

	all, err := d.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"broken", "openai-api", "pinecone"}; !reflect.DeepEqual(all, want) {
		t.Fatalf("List = %v, want %v", all, want)
	}

	vec, err := d.List(ctx, manifest.CategoryVectorDB)
	if err != nil {
		t.Fatalf("List(vector_db): %v", err)
	}
	if want := []string{"broken", "pinecone"}; !reflect.DeepEqual(vec, want) {
		t.Fatalf("List(vector_db) = %v, want %v", vec, want)
	}

	got, err := d.Read(ctx, "pinecone")
	if err != nil {
		t.Fatalf("Read(pinecone): %v", err)
	}
	if string(got) != vectorSource {
		t.Fatalf("Read(pinecone) = %q", got)
	}
	if _, err := d.Read(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := d.Read(ctx, "../openai-api"); !errors.Is(err, ErrInvalidSlug) {
		t.Fatalf("Read(../openai-api) error = %v, want ErrInvalidSlug", err)
	}
}

func TestDir_PrefersYAMLExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openai-api.yaml", llmSource)
	writeFile(t, dir, "openai-api.yml", vectorSource)

	d := NewDir(dir)
	slugs, err := d.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"openai-api"}; !reflect.DeepEqual(slugs, want) {
		t.Fatalf("List = %v, want %v", slugs, want)
	}
	path, err := d.Path("openai-api")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if filepath.Ext(path) != ".yaml" {
		t.Fatalf("Path = %s, want .yaml", path)
	}
}

func TestDir_MissingRoot(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "nope"))
	if _, err := d.List(context.Background(), ""); err == nil {
		t.Fatal("expected error listing a missing directory")
	}
}

func TestDir_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openai-api.yaml", llmSource)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDir(dir).Read(ctx, "openai-api"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Read error = %v, want context.Canceled", err)
	}
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "openai-api.yaml", llmSource)
	writeFile(t, dir, "pinecone.yaml", vectorSource)

	dst := newTestSQLite(t)
	n, err := Copy(context.Background(), dst, NewDir(dir))
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != 2 {
		t.Fatalf("Copy = %d, want 2", n)
	}
	got, err := dst.Read(context.Background(), "openai-api")
	if err != nil || string(got) != llmSource {
		t.Fatalf("Read after copy = %q, %v", got, err)
	}
}

func TestSlugFor(t *testing.T) {
	tests := []struct {
		path string
		slug string
		ok   bool
	}{
		{"content/manifests/openai-api.yaml", "openai-api", true},
		{"pinecone.YML", "pinecone", true},
		{"notes.txt", "", false},
		{"Upper.yaml", "Upper", false},
		{".hidden.yaml", ".hidden", false},
	}
	for _, tt := range tests {
		slug, ok := SlugFor(tt.path)
		if ok != tt.ok || (tt.ok && slug != tt.slug) {
			t.Errorf("SlugFor(%q) = %q, %v; want %q, %v", tt.path, slug, ok, tt.slug, tt.ok)
		}
	}
}

func TestPeekCategory(t *testing.T) {
	if got := PeekCategory([]byte(llmSource)); got != manifest.CategoryLLMAPI {
		t.Fatalf("PeekCategory = %q", got)
	}
	if got := PeekCategory([]byte(brokenSource)); got != "" {
		t.Fatalf("PeekCategory(broken) = %q, want empty", got)
	}
}
