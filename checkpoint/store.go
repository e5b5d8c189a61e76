package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/b17z/sage/config"
	"github.com/b17z/sage/core"
	"github.com/b17z/sage/embedding"
	"github.com/b17z/sage/fsutil"
	"github.com/b17z/sage/vecstore"
)

// SaveStatus distinguishes a write from the two no-op outcomes. Neither
// no-op is an error: the caller asked a reasonable question and got a
// reasonable answer.
type SaveStatus string

const (
	StatusSaved      SaveStatus = "saved"
	StatusDuplicate  SaveStatus = "skipped-duplicate"
	StatusTooShallow SaveStatus = "skipped-too-shallow"
)

// SaveResult describes what the save path did.
type SaveResult struct {
	Status      SaveStatus
	ID          string  // set when Status is StatusSaved
	DuplicateOf string  // set when Status is StatusDuplicate
	Similarity  float64 // max thesis similarity seen during dedup
	Degraded    bool    // dedup skipped because no embedding model
}

// Store persists checkpoints as one file each, with the thesis embedding
// kept in the paired vector store under the checkpoint id.
type Store struct {
	dir  string
	cfg  *config.Config
	vecs *vecstore.Store
	pool *embedding.Pool
	log  *zap.Logger

	now func() time.Time
}

// New opens (or creates) a checkpoint store rooted at dir.
func New(dir string, cfg *config.Config, vecs *vecstore.Store, pool *embedding.Pool, log *zap.Logger) (*Store, error) {
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, cfg: cfg, vecs: vecs, pool: pool, log: log, now: time.Now}, nil
}

// Save runs the full save path: depth gate, then thesis dedup against the
// most recent checkpoints, then the write plus paired embedding. The input
// is not mutated except for ID/CreatedAt assignment on success.
func (s *Store) Save(ctx context.Context, cp *Checkpoint) (*SaveResult, error) {
	if cp.Confidence < 0 || cp.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", core.ErrInvalidInput, cp.Confidence)
	}
	if strings.TrimSpace(cp.Thesis) == "" {
		return nil, fmt.Errorf("%w: empty thesis", core.ErrInvalidInput)
	}

	if tooShallow(cp, s.cfg) {
		s.log.Info("checkpoint rejected by depth gate",
			zap.String("trigger", cp.Trigger),
			zap.Int("messages", cp.MessageCount),
			zap.Int("tokens", cp.TokenEstimate))
		return &SaveResult{Status: StatusTooShallow}, nil
	}

	vec, degraded := s.thesisVector(ctx, cp.Thesis)

	if vec != nil {
		recentIDs, err := s.recentIDs(s.cfg.DedupWindow)
		if err != nil {
			return nil, err
		}
		snap := s.vecs.Current()
		var recent [][]float32
		var recentWithVec []string
		for _, id := range recentIDs {
			if rv, ok := snap.Lookup(id); ok {
				recent = append(recent, rv)
				recentWithVec = append(recentWithVec, id)
			}
		}
		dup, maxSim, closest := IsDuplicate(vec, recent, s.cfg.DedupThreshold)
		if dup {
			s.log.Info("checkpoint skipped as duplicate",
				zap.String("of", recentWithVec[closest]),
				zap.Float64("similarity", maxSim))
			return &SaveResult{
				Status:      StatusDuplicate,
				DuplicateOf: recentWithVec[closest],
				Similarity:  maxSim,
			}, nil
		}
	}

	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now().UTC()
	}
	if cp.ID == "" {
		cp.ID = s.newID(cp)
	} else if err := core.ValidateID(cp.ID); err != nil {
		return nil, err
	}

	data, err := encode(cp)
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(s.path(cp.ID), data, 0o600); err != nil {
		return nil, err
	}
	if vec != nil {
		if err := s.vecs.Add(cp.ID, vec); err != nil {
			return nil, err
		}
	}

	s.log.Info("checkpoint saved", zap.String("id", cp.ID), zap.String("trigger", cp.Trigger))
	return &SaveResult{Status: StatusSaved, ID: cp.ID, Degraded: degraded}, nil
}

// Load reads one checkpoint by id.
func (s *Store) Load(id string) (*Checkpoint, error) {
	if err := core.ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: checkpoint %q", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %q: %w", id, err)
	}
	return decode(data)
}

// Remove deletes a checkpoint file and its paired embedding row. The pair
// must never outlive each other.
func (s *Store) Remove(id string) error {
	if err := core.ValidateID(id); err != nil {
		return err
	}
	path := s.path(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: checkpoint %q", core.ErrNotFound, id)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return s.vecs.Remove(id)
}

// FileInfo is one checkpoint's on-disk metadata, used by maintenance.
type FileInfo struct {
	ID      string
	Path    string
	ModTime time.Time
}

// Files lists every checkpoint file with its modification time, oldest
// first.
func (s *Store) Files() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}
	var files []FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, FileInfo{
			ID:      strings.TrimSuffix(name, ".md"),
			Path:    filepath.Join(s.dir, name),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.Before(files[j].ModTime) })
	return files, nil
}

// IDs returns every checkpoint id, newest first. Ids sort chronologically
// because they start with the creation timestamp.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".md"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Vectors exposes the paired embedding store for maintenance.
func (s *Store) Vectors() *vecstore.Store { return s.vecs }

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

// recentIDs returns the n most recent checkpoint ids. Dedup is
// recency-scoped: a thesis resembling something from last month is still
// worth a fresh checkpoint.
func (s *Store) recentIDs(n int) ([]string, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(ids) > n {
		ids = ids[:n]
	}
	return ids, nil
}

// thesisVector embeds the thesis, degrading (dedup skipped) when no model
// is available.
func (s *Store) thesisVector(ctx context.Context, thesis string) ([]float32, bool) {
	if !s.cfg.EmbeddingsEnabled || s.pool == nil {
		return nil, true
	}
	prov, err := s.pool.Get(embedding.KindProse)
	if err != nil {
		s.log.Debug("dedup skipped, model unavailable")
		return nil, true
	}
	vec, err := prov.EmbedDocument(ctx, thesis)
	if err != nil {
		s.log.Warn("thesis embedding failed, dedup skipped", zap.Error(err))
		return nil, true
	}
	return vec, false
}

// newID derives a human-readable slug from the creation time and the core
// question (falling back to the trigger kind), with a numeric suffix on
// same-second collisions.
func (s *Store) newID(cp *Checkpoint) string {
	slug := core.Slugify(cp.CoreQuestion, 40)
	if slug == "" {
		slug = core.Slugify(cp.Trigger, 40)
	}
	if slug == "" {
		slug = "checkpoint"
	}
	base := cp.CreatedAt.Format("20060102-150405") + "-" + slug
	id := base
	for n := 2; ; n++ {
		if _, err := os.Stat(s.path(id)); os.IsNotExist(err) {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".md")
}
