// Package maintenance keeps both stores bounded. It runs synchronously at
// the end of a successful save (when enabled) or on demand: checkpoints are
// pruned by file age and then by count, knowledge by its recorded added
// date, and embedding rows whose owner no longer exists are evicted. Every
// checkpoint deletion removes its paired embedding row in the same
// operation; a checkpoint file and its embedding must never outlive each
// other.
package maintenance

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/b17z/sage/checkpoint"
	"github.com/b17z/sage/config"
	"github.com/b17z/sage/knowledge"
)

// Overrides optionally replace configured caps for one run. Nil fields keep
// the configured value.
type Overrides struct {
	CheckpointMaxAgeDays *int
	CheckpointMaxCount   *int
	KnowledgeMaxAgeDays  *int
}

// Result reports what one run pruned, per dimension, plus what remains.
type Result struct {
	CheckpointsPrunedByAge   int
	CheckpointsPrunedByCount int
	CheckpointsRemaining     int
	KnowledgePrunedByAge     int
	KnowledgeRemaining       int
	OrphanedEmbeddings       int
}

// Scheduler prunes the two stores.
type Scheduler struct {
	cfg         *config.Config
	checkpoints *checkpoint.Store
	knowledge   *knowledge.Store
	log         *zap.Logger

	now func() time.Time
}

// New creates a scheduler over the given stores.
func New(cfg *config.Config, cps *checkpoint.Store, ks *knowledge.Store, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, checkpoints: cps, knowledge: ks, log: log, now: time.Now}
}

// Run executes one maintenance pass.
func (s *Scheduler) Run(o *Overrides) (*Result, error) {
	maxAgeDays := s.cfg.CheckpointMaxAgeDays
	maxCount := s.cfg.CheckpointMaxCount
	knowledgeAgeDays := s.cfg.KnowledgeMaxAgeDays
	if o != nil {
		if o.CheckpointMaxAgeDays != nil {
			maxAgeDays = *o.CheckpointMaxAgeDays
		}
		if o.CheckpointMaxCount != nil {
			maxCount = *o.CheckpointMaxCount
		}
		if o.KnowledgeMaxAgeDays != nil {
			knowledgeAgeDays = *o.KnowledgeMaxAgeDays
		}
	}

	result := &Result{}
	if err := s.pruneCheckpoints(result, maxAgeDays, maxCount); err != nil {
		return nil, err
	}
	if err := s.pruneKnowledge(result, knowledgeAgeDays); err != nil {
		return nil, err
	}
	if err := s.sweepOrphans(result); err != nil {
		return nil, err
	}

	s.log.Info("maintenance complete",
		zap.Int("checkpoints_pruned_by_age", result.CheckpointsPrunedByAge),
		zap.Int("checkpoints_pruned_by_count", result.CheckpointsPrunedByCount),
		zap.Int("checkpoints_remaining", result.CheckpointsRemaining),
		zap.Int("knowledge_pruned_by_age", result.KnowledgePrunedByAge),
		zap.Int("orphaned_embeddings", result.OrphanedEmbeddings))
	return result, nil
}

// pruneCheckpoints removes checkpoints past the age limit (by on-disk
// modification time; 0 disables), then oldest-first past the count cap.
func (s *Scheduler) pruneCheckpoints(result *Result, maxAgeDays, maxCount int) error {
	files, err := s.checkpoints.Files()
	if err != nil {
		return err
	}

	var doomed []checkpoint.FileInfo
	var kept []checkpoint.FileInfo

	if maxAgeDays > 0 {
		cutoff := s.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
		for _, f := range files {
			if f.ModTime.Before(cutoff) {
				doomed = append(doomed, f)
			} else {
				kept = append(kept, f)
			}
		}
		result.CheckpointsPrunedByAge = len(doomed)
	} else {
		kept = files
	}

	if maxCount > 0 && len(kept) > maxCount {
		// Files() sorts oldest first, so the overflow prefix is the oldest.
		overflow := len(kept) - maxCount
		doomed = append(doomed, kept[:overflow]...)
		kept = kept[overflow:]
		result.CheckpointsPrunedByCount = overflow
	}

	ids := make([]string, 0, len(doomed))
	for _, f := range doomed {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune checkpoint %s: %w", f.ID, err)
		}
		ids = append(ids, f.ID)
	}
	if len(ids) > 0 {
		// One swap for the whole batch: files and embeddings go together.
		if err := s.checkpoints.Vectors().RemoveAll(ids); err != nil {
			return err
		}
	}

	result.CheckpointsRemaining = len(kept)
	return nil
}

// pruneKnowledge removes knowledge items whose recorded added date exceeds
// the age limit. The recorded date, not file mtime, is authoritative:
// copying files around must not reset item age. Knowledge has no count
// cap: it is explicitly curated, unlike auto-generated checkpoints.
func (s *Scheduler) pruneKnowledge(result *Result, maxAgeDays int) error {
	items, err := s.knowledge.Items()
	if err != nil {
		return err
	}

	if maxAgeDays <= 0 {
		result.KnowledgeRemaining = len(items)
		return nil
	}

	cutoff := s.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	remaining := 0
	for _, it := range items {
		if it.AddedAt.Before(cutoff) {
			if err := s.knowledge.Remove(it.ID); err != nil {
				return err
			}
			result.KnowledgePrunedByAge++
		} else {
			remaining++
		}
	}
	result.KnowledgeRemaining = remaining
	return nil
}

// sweepOrphans evicts embedding rows whose owning file no longer exists,
// e.g. after a crash between a file deletion and its embedding removal.
func (s *Scheduler) sweepOrphans(result *Result) error {
	files, err := s.checkpoints.Files()
	if err != nil {
		return err
	}
	live := make(map[string]bool, len(files))
	for _, f := range files {
		live[f.ID] = true
	}

	var orphans []string
	for _, id := range s.checkpoints.Vectors().Current().IDs() {
		if !live[id] {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		if err := s.checkpoints.Vectors().RemoveAll(orphans); err != nil {
			return err
		}
		result.OrphanedEmbeddings += len(orphans)
	}

	// Liveness comes from the directory listing, not the parsed item set:
	// an item file that fails to parse still owns its embedding row.
	fileIDs, err := s.knowledge.FileIDs()
	if err != nil {
		return err
	}
	liveItems := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		liveItems[id] = true
	}
	orphans = orphans[:0]
	for _, id := range s.knowledge.Vectors().Current().IDs() {
		if !liveItems[id] {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		if err := s.knowledge.Vectors().RemoveAll(orphans); err != nil {
			return err
		}
		result.OrphanedEmbeddings += len(orphans)
	}
	return nil
}
