package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b17z/sage/config"
	"github.com/b17z/sage/core"
	"github.com/b17z/sage/embedding"
	"github.com/b17z/sage/embedding/mock"
	"github.com/b17z/sage/vecstore"
)

func testStore(t *testing.T, cfg *config.Config, prov embedding.Provider) *Store {
	t.Helper()
	dir := t.TempDir()
	vecs, err := vecstore.Open(dir)
	require.NoError(t, err)

	var pool *embedding.Pool
	if prov != nil {
		pool = embedding.NewPool(map[embedding.Kind]embedding.Factory{
			embedding.KindProse: func() (embedding.Provider, error) { return prov, nil },
		})
	}
	s, err := New(dir, cfg, vecs, pool, nil)
	require.NoError(t, err)
	return s
}

func TestAddAndGet(t *testing.T) {
	s := testStore(t, config.Default(), mock.New(16))
	ctx := context.Background()

	it, err := s.Add(ctx, AddParams{
		ID:       "Gopher Style Notes",
		Content:  "Accept interfaces, return structs.",
		Keywords: []string{"style", "interfaces"},
		Type:     TypePreference,
	})
	require.NoError(t, err)
	assert.Equal(t, "gopher-style-notes", it.ID, "id is slug-sanitized")
	assert.Equal(t, StatusActive, it.Status)
	assert.False(t, it.AddedAt.IsZero())

	got, err := s.Get("gopher-style-notes")
	require.NoError(t, err)
	assert.Equal(t, it.Content, got.Content)
	assert.Equal(t, TypePreference, got.Type)

	// Content file exists with the front-matter format.
	data, err := os.ReadFile(filepath.Join(s.Dir(), "gopher-style-notes.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "---\n")
	assert.Contains(t, string(data), "type: preference")
	assert.Contains(t, string(data), "Accept interfaces, return structs.")

	// Embedding row written under the item id.
	_, ok := s.Vectors().Current().Lookup("gopher-style-notes")
	assert.True(t, ok)
}

func TestAddValidation(t *testing.T) {
	s := testStore(t, config.Default(), nil)
	ctx := context.Background()

	_, err := s.Add(ctx, AddParams{ID: "../../etc/passwd", Content: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = s.Add(ctx, AddParams{ID: "a/b", Content: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = s.Add(ctx, AddParams{ID: "ok", Content: "   "})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestAddDefaultsType(t *testing.T) {
	s := testStore(t, config.Default(), nil)
	it, err := s.Add(context.Background(), AddParams{ID: "untyped", Content: "content"})
	require.NoError(t, err)
	assert.Equal(t, TypeGeneral, it.Type)
}

func TestReplacePreservesAddedAt(t *testing.T) {
	s := testStore(t, config.Default(), nil)
	ctx := context.Background()

	first, err := s.Add(ctx, AddParams{ID: "stable", Content: "v1"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	second, err := s.Add(ctx, AddParams{ID: "stable", Content: "v2"})
	require.NoError(t, err)

	assert.Equal(t, first.AddedAt.Truncate(time.Second), second.AddedAt.Truncate(time.Second),
		"re-adding must not reset item age")
	got, err := s.Get("stable")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
}

func TestUpdateReembedsOnContentChange(t *testing.T) {
	prov := mock.NewFixed(2, map[string][]float32{
		"old content": {1, 0},
		"new content": {0, 1},
	})
	s := testStore(t, config.Default(), prov)
	ctx := context.Background()

	_, err := s.Add(ctx, AddParams{ID: "item", Content: "old content"})
	require.NoError(t, err)
	vec, _ := s.Vectors().Current().Lookup("item")
	assert.Equal(t, []float32{1, 0}, vec)

	newContent := "new content"
	_, err = s.Update(ctx, "item", UpdateParams{Content: &newContent})
	require.NoError(t, err)
	vec, _ = s.Vectors().Current().Lookup("item")
	assert.Equal(t, []float32{0, 1}, vec, "content change must re-embed")

	// A metadata-only update leaves the vector alone.
	scope := "raft"
	_, err = s.Update(ctx, "item", UpdateParams{Scope: &scope})
	require.NoError(t, err)
	vec, _ = s.Vectors().Current().Lookup("item")
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestUpdateMissing(t *testing.T) {
	s := testStore(t, config.Default(), nil)
	content := "x"
	_, err := s.Update(context.Background(), "ghost", UpdateParams{Content: &content})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLifecycleTransitions(t *testing.T) {
	s := testStore(t, config.Default(), nil)
	ctx := context.Background()

	_, err := s.Add(ctx, AddParams{ID: "old-way", Content: "use the v1 api"})
	require.NoError(t, err)

	require.NoError(t, s.Deprecate(ctx, "old-way", "v2 replaced it", "new-way"))
	got, err := s.Get("old-way")
	require.NoError(t, err)
	assert.Equal(t, StatusDeprecated, got.Status)
	assert.Equal(t, "v2 replaced it", got.DeprecationReason)
	assert.Equal(t, "new-way", got.ReplacedBy)

	require.NoError(t, s.Archive(ctx, "old-way"))
	got, err = s.Get("old-way")
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, got.Status)
}

func TestRemove(t *testing.T) {
	s := testStore(t, config.Default(), mock.New(16))
	ctx := context.Background()

	_, err := s.Add(ctx, AddParams{ID: "doomed", Content: "content"})
	require.NoError(t, err)

	require.NoError(t, s.Remove("doomed"))
	_, err = s.Get("doomed")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, ok := s.Vectors().Current().Lookup("doomed")
	assert.False(t, ok)

	assert.ErrorIs(t, s.Remove("doomed"), core.ErrNotFound)
}

func TestWriteInvalidatesCache(t *testing.T) {
	cfg := config.Default()
	cfg.CacheTTLSeconds = 3600 // a long TTL must not delay visibility
	s := testStore(t, cfg, nil)
	ctx := context.Background()

	_, err := s.Add(ctx, AddParams{ID: "first", Content: "a"})
	require.NoError(t, err)
	items, err := s.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = s.Add(ctx, AddParams{ID: "second", Content: "b"})
	require.NoError(t, err)
	items, err = s.Items()
	require.NoError(t, err)
	assert.Len(t, items, 2, "a write must be visible immediately")
}

func TestExternalEditInvalidatesByMTime(t *testing.T) {
	cfg := config.Default()
	cfg.CacheTTLSeconds = 3600
	s := testStore(t, cfg, nil)
	ctx := context.Background()

	_, err := s.Add(ctx, AddParams{ID: "first", Content: "a"})
	require.NoError(t, err)
	_, err = s.Items() // populate the cache
	require.NoError(t, err)

	// Simulate another process: drop a valid item file and bump the index
	// mtime without going through this store.
	it := &Item{ID: "outside", Content: "added externally", Type: TypeGeneral, Status: StatusActive, AddedAt: time.Now().UTC()}
	data, err := encodeItem(it)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "outside.md"), data, 0o600))
	bumped := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), indexFile), bumped, bumped))

	items, err := s.Items()
	require.NoError(t, err)
	assert.Len(t, items, 2, "an index mtime change must force a reload inside the TTL")
}

func TestItemsReturnsCopies(t *testing.T) {
	s := testStore(t, config.Default(), nil)
	_, err := s.Add(context.Background(), AddParams{ID: "item", Content: "c", Keywords: []string{"k"}})
	require.NoError(t, err)

	items, err := s.Items()
	require.NoError(t, err)
	items[0].Keywords[0] = "mutated"
	items[0].Content = "mutated"

	again, err := s.Items()
	require.NoError(t, err)
	assert.Equal(t, "k", again[0].Keywords[0], "callers must not reach cached state")
	assert.Equal(t, "c", again[0].Content)
}

func TestLoadAllSkipsUnparseable(t *testing.T) {
	s := testStore(t, config.Default(), nil)
	_, err := s.Add(context.Background(), AddParams{ID: "good", Content: "fine"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "broken.md"), []byte("no front matter"), 0o600))

	items, err := s.Items()
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "good", items[0].ID)
}

func TestIndexRewrittenOnWrite(t *testing.T) {
	s := testStore(t, config.Default(), nil)
	_, err := s.Add(context.Background(), AddParams{ID: "indexed", Content: "c", Keywords: []string{"kw"}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.Dir(), indexFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": "indexed"`)
	assert.Contains(t, string(data), `"kw"`)
}
