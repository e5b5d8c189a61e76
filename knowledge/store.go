package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/b17z/sage/config"
	"github.com/b17z/sage/core"
	"github.com/b17z/sage/embedding"
	"github.com/b17z/sage/fsutil"
	"github.com/b17z/sage/vecstore"
)

const indexFile = "index.json"

// indexEntry is one row of index.json: enough to filter without opening the
// content file.
type indexEntry struct {
	ID       string   `json:"id"`
	Type     ItemType `json:"type"`
	Status   Status   `json:"status"`
	Scope    string   `json:"scope,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Added    string   `json:"added"`
}

// Store is the knowledge store: content files + index + embeddings, with an
// in-memory cache of the loaded items.
//
// The cache is valid only while BOTH hold: its TTL has not elapsed, and the
// index file's mtime still matches what was recorded at population. Any
// write through the store invalidates it before returning, so correctness
// never depends on timing. Callers always receive copies.
type Store struct {
	dir  string
	cfg  *config.Config
	vecs *vecstore.Store
	pool *embedding.Pool
	log  *zap.Logger

	mu         sync.Mutex
	cached     []Item
	cachedAt   time.Time
	indexMTime time.Time
}

// New opens (or creates) a knowledge store rooted at dir.
func New(dir string, cfg *config.Config, vecs *vecstore.Store, pool *embedding.Pool, log *zap.Logger) (*Store, error) {
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, cfg: cfg, vecs: vecs, pool: pool, log: log}, nil
}

// AddParams holds the fields of a new knowledge item.
type AddParams struct {
	ID       string // user-chosen; sanitized to a slug
	Content  string
	Keywords []string
	Scope    string
	Type     ItemType
}

// Add creates (or replaces) a knowledge item, embeds its content, and
// updates the index. The id is slug-sanitized; traversal attempts are
// rejected outright rather than rewritten.
func (s *Store) Add(ctx context.Context, p AddParams) (*Item, error) {
	id, err := sanitizeID(p.ID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, fmt.Errorf("%w: empty content", core.ErrInvalidInput)
	}

	itemType := p.Type
	if itemType == "" {
		itemType = TypeGeneral
	}

	it := &Item{
		ID:       id,
		Content:  p.Content,
		Keywords: p.Keywords,
		Scope:    p.Scope,
		Type:     itemType,
		Status:   StatusActive,
		AddedAt:  time.Now().UTC(),
	}

	// Preserve the original added date on replace: age pruning keys off
	// content-level metadata, not file times.
	if prev, err := s.load(id); err == nil {
		it.AddedAt = prev.AddedAt
	}

	if err := s.write(ctx, it, true); err != nil {
		return nil, err
	}
	s.log.Debug("knowledge saved", zap.String("id", it.ID), zap.String("type", string(it.Type)))
	return it, nil
}

// UpdateParams holds optional field changes. Nil pointers leave the field
// untouched; a nil Keywords/Links slice leaves the list untouched.
type UpdateParams struct {
	Content  *string
	Keywords []string
	Scope    *string
	Type     *ItemType
	Links    []Link
}

// Update mutates an existing item in place. A content change re-embeds;
// an active item's embedding must always match its current content.
func (s *Store) Update(ctx context.Context, id string, p UpdateParams) (*Item, error) {
	it, err := s.load(id)
	if err != nil {
		return nil, err
	}

	reembed := false
	if p.Content != nil && *p.Content != it.Content {
		it.Content = *p.Content
		reembed = true
	}
	if p.Keywords != nil {
		it.Keywords = p.Keywords
	}
	if p.Scope != nil {
		it.Scope = *p.Scope
	}
	if p.Type != nil {
		it.Type = *p.Type
	}
	if p.Links != nil {
		it.Links = p.Links
	}

	if err := s.write(ctx, it, reembed); err != nil {
		return nil, err
	}
	return it, nil
}

// Deprecate marks an item deprecated without deleting it, recording why and
// (optionally) which item replaces it.
func (s *Store) Deprecate(ctx context.Context, id, reason, replacedBy string) error {
	return s.transition(ctx, id, StatusDeprecated, reason, replacedBy)
}

// Archive marks an item archived. Archived items never surface in recall.
func (s *Store) Archive(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusArchived, "", "")
}

func (s *Store) transition(ctx context.Context, id string, status Status, reason, replacedBy string) error {
	it, err := s.load(id)
	if err != nil {
		return err
	}
	it.Status = status
	if reason != "" {
		it.DeprecationReason = reason
	}
	if replacedBy != "" {
		it.ReplacedBy = replacedBy
	}
	return s.write(ctx, it, false)
}

// Remove physically deletes an item, its index entry, and its embedding row.
func (s *Store) Remove(id string) error {
	if err := core.ValidateID(id); err != nil {
		return err
	}
	path := s.itemPath(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: knowledge item %q", core.ErrNotFound, id)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if err := s.vecs.Remove(id); err != nil {
		return err
	}
	if err := s.rewriteIndex(); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// Get returns a copy of one item.
func (s *Store) Get(id string) (*Item, error) {
	items, err := s.Items()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			out := items[i].clone()
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: knowledge item %q", core.ErrNotFound, id)
}

// Items returns copies of every item, served from the cache when valid.
func (s *Store) Items() ([]Item, error) {
	idxPath := filepath.Join(s.dir, indexFile)
	var diskMTime time.Time
	if fi, err := os.Stat(idxPath); err == nil {
		diskMTime = fi.ModTime()
	}

	s.mu.Lock()
	if s.cached != nil &&
		time.Since(s.cachedAt) < s.cfg.CacheTTL() &&
		diskMTime.Equal(s.indexMTime) {
		out := copyItems(s.cached)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	items, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = items
	s.cachedAt = time.Now()
	s.indexMTime = diskMTime
	out := copyItems(items)
	s.mu.Unlock()
	return out, nil
}

// FileIDs lists the id of every item file on disk, parseable or not.
// Maintenance judges embedding liveness with it: a corrupt item file keeps
// its embedding row until the item itself is removed, rather than having
// the row swept as an orphan.
func (s *Store) FileIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".md"))
	}
	return ids, nil
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

// Vectors exposes the paired embedding store for maintenance.
func (s *Store) Vectors() *vecstore.Store { return s.vecs }

// write persists an item, optionally re-embedding, rewrites the index, and
// invalidates the cache before returning.
func (s *Store) write(ctx context.Context, it *Item, embed bool) error {
	data, err := encodeItem(it)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.itemPath(it.ID), data, 0o600); err != nil {
		return err
	}
	if embed {
		if err := s.embedItem(ctx, it); err != nil {
			return err
		}
	}
	if err := s.rewriteIndex(); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// embedItem stores the item's content embedding. A missing model degrades
// to no embedding (keyword-only recall) instead of failing the write.
func (s *Store) embedItem(ctx context.Context, it *Item) error {
	if !s.cfg.EmbeddingsEnabled || s.pool == nil {
		return nil
	}
	prov, err := s.pool.Get(embedding.KindProse)
	if err != nil {
		s.log.Debug("embedding skipped, model unavailable", zap.String("id", it.ID))
		return nil
	}
	vec, err := prov.EmbedDocument(ctx, it.Content)
	if err != nil {
		s.log.Warn("embed knowledge content failed", zap.String("id", it.ID), zap.Error(err))
		return nil
	}
	return s.vecs.Add(it.ID, vec)
}

func (s *Store) load(id string) (*Item, error) {
	if err := core.ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.itemPath(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: knowledge item %q", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge item %q: %w", id, err)
	}
	return decodeItem(data)
}

// loadAll scans the store directory for item files. The directory, not the
// index, is the source of truth; the index is rebuilt from it.
func (s *Store) loadAll() ([]Item, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}
	var items []Item
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		it, err := decodeItem(data)
		if err != nil {
			s.log.Warn("skipping unparseable knowledge file", zap.String("file", name), zap.Error(err))
			continue
		}
		items = append(items, *it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *Store) rewriteIndex() error {
	items, err := s.loadAll()
	if err != nil {
		return err
	}
	entries := make([]indexEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, indexEntry{
			ID:       it.ID,
			Type:     it.Type,
			Status:   it.Status,
			Scope:    it.Scope,
			Keywords: it.Keywords,
			Added:    it.AddedAt.UTC().Format(time.RFC3339),
		})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return fsutil.WriteFileAtomic(filepath.Join(s.dir, indexFile), data, 0o600)
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Store) itemPath(id string) string {
	return filepath.Join(s.dir, id+".md")
}

// sanitizeID slugifies a user-chosen id, rejecting traversal attempts
// outright; a silently rewritten traversal would mask a probe.
func sanitizeID(raw string) (string, error) {
	if strings.Contains(raw, "/") || strings.Contains(raw, "\\") || strings.Contains(raw, "..") {
		return "", fmt.Errorf("%w: identifier %q contains path elements", core.ErrInvalidInput, raw)
	}
	id := core.Slugify(raw, 64)
	if err := core.ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

func copyItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i := range items {
		out[i] = items[i].clone()
	}
	return out
}
