package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b17z/sage/checkpoint"
	"github.com/b17z/sage/config"
	"github.com/b17z/sage/embedding"
	"github.com/b17z/sage/embedding/mock"
	"github.com/b17z/sage/knowledge"
	"github.com/b17z/sage/vecstore"
)

type fixture struct {
	cfg         *config.Config
	checkpoints *checkpoint.Store
	knowledge   *knowledge.Store
	cpDir       string
	kDir        string
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	prov := mock.New(8)
	pool := embedding.NewPool(map[embedding.Kind]embedding.Factory{
		embedding.KindProse: func() (embedding.Provider, error) { return prov, nil },
	})

	cpDir := filepath.Join(t.TempDir(), "checkpoints")
	cpVecs, err := vecstore.Open(cpDir)
	require.NoError(t, err)
	cps, err := checkpoint.New(cpDir, cfg, cpVecs, pool, nil)
	require.NoError(t, err)

	kDir := filepath.Join(t.TempDir(), "knowledge")
	kVecs, err := vecstore.Open(kDir)
	require.NoError(t, err)
	ks, err := knowledge.New(kDir, cfg, kVecs, pool, nil)
	require.NoError(t, err)

	return &fixture{cfg: cfg, checkpoints: cps, knowledge: ks, cpDir: cpDir, kDir: kDir}
}

// saveCheckpoints writes n checkpoints with distinct slugs and strictly
// increasing file mtimes, oldest first in id order.
func (f *fixture) saveCheckpoints(t *testing.T, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		res, err := f.checkpoints.Save(ctx, &checkpoint.Checkpoint{
			Trigger:      checkpoint.TriggerManual,
			CoreQuestion: fmt.Sprintf("question %03d", i),
			Thesis:       fmt.Sprintf("thesis %03d", i),
			Confidence:   0.5,
		})
		require.NoError(t, err)
		require.Equal(t, checkpoint.StatusSaved, res.Status)
		ids = append(ids, res.ID)
	}
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	for i, id := range ids {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(filepath.Join(f.cpDir, id+".md"), ts, ts))
	}
	return ids
}

func TestCountCapPrunesOldest(t *testing.T) {
	cfg := config.Default()
	cfg.DedupThreshold = 2 // similarity never reaches 2; dedup is inert here
	cfg.CheckpointMaxAgeDays = 0
	cfg.CheckpointMaxCount = 200
	f := newFixture(t, cfg)

	ids := f.saveCheckpoints(t, 250)
	require.Equal(t, 250, f.checkpoints.Vectors().Current().Len())

	sched := New(cfg, f.checkpoints, f.knowledge, nil)
	res, err := sched.Run(nil)
	require.NoError(t, err)

	assert.Equal(t, 50, res.CheckpointsPrunedByCount)
	assert.Equal(t, 0, res.CheckpointsPrunedByAge)
	assert.Equal(t, 200, res.CheckpointsRemaining)

	// Exactly the 50 oldest are gone, files and embedding rows both.
	snap := f.checkpoints.Vectors().Current()
	assert.Equal(t, 200, snap.Len())
	for _, id := range ids[:50] {
		_, err := os.Stat(filepath.Join(f.cpDir, id+".md"))
		assert.True(t, os.IsNotExist(err), "%s should be pruned", id)
		_, ok := snap.Lookup(id)
		assert.False(t, ok, "embedding row for %s should be pruned", id)
	}
	for _, id := range ids[50:] {
		_, err := os.Stat(filepath.Join(f.cpDir, id+".md"))
		assert.NoError(t, err, "%s should survive", id)
		_, ok := snap.Lookup(id)
		assert.True(t, ok)
	}
}

func TestAgePrunesByMTime(t *testing.T) {
	cfg := config.Default()
	cfg.DedupThreshold = 2
	cfg.CheckpointMaxAgeDays = 30
	cfg.CheckpointMaxCount = 0
	f := newFixture(t, cfg)

	ids := f.saveCheckpoints(t, 4)
	// Age the two oldest past the cutoff.
	old := time.Now().Add(-40 * 24 * time.Hour)
	for _, id := range ids[:2] {
		require.NoError(t, os.Chtimes(filepath.Join(f.cpDir, id+".md"), old, old))
	}

	sched := New(cfg, f.checkpoints, f.knowledge, nil)
	res, err := sched.Run(nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.CheckpointsPrunedByAge)
	assert.Equal(t, 0, res.CheckpointsPrunedByCount)
	assert.Equal(t, 2, res.CheckpointsRemaining)
}

func TestAgeDisabledByZero(t *testing.T) {
	cfg := config.Default()
	cfg.DedupThreshold = 2
	cfg.CheckpointMaxAgeDays = 0
	cfg.CheckpointMaxCount = 0
	f := newFixture(t, cfg)

	ids := f.saveCheckpoints(t, 3)
	ancient := time.Now().Add(-365 * 24 * time.Hour)
	for _, id := range ids {
		require.NoError(t, os.Chtimes(filepath.Join(f.cpDir, id+".md"), ancient, ancient))
	}

	sched := New(cfg, f.checkpoints, f.knowledge, nil)
	res, err := sched.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.CheckpointsPrunedByAge)
	assert.Equal(t, 3, res.CheckpointsRemaining)
}

func TestOverridesReplaceConfiguredCaps(t *testing.T) {
	cfg := config.Default()
	cfg.DedupThreshold = 2
	cfg.CheckpointMaxAgeDays = 0
	cfg.CheckpointMaxCount = 0
	f := newFixture(t, cfg)

	f.saveCheckpoints(t, 10)

	maxCount := 4
	sched := New(cfg, f.checkpoints, f.knowledge, nil)
	res, err := sched.Run(&Overrides{CheckpointMaxCount: &maxCount})
	require.NoError(t, err)
	assert.Equal(t, 6, res.CheckpointsPrunedByCount)
	assert.Equal(t, 4, res.CheckpointsRemaining)
}

func TestKnowledgePrunedByRecordedAge(t *testing.T) {
	cfg := config.Default()
	cfg.KnowledgeMaxAgeDays = 30
	f := newFixture(t, cfg)
	ctx := context.Background()

	_, err := f.knowledge.Add(ctx, knowledge.AddParams{ID: "fresh", Content: "recent insight"})
	require.NoError(t, err)

	// An item whose recorded added date is old, regardless of file mtime.
	stale := "---\n" +
		"id: stale\n" +
		"type: general-knowledge\n" +
		"status: active\n" +
		"added: 2026-01-01T00:00:00Z\n" +
		"---\n" +
		"an old insight\n"
	require.NoError(t, os.WriteFile(filepath.Join(f.kDir, "stale.md"), []byte(stale), 0o600))

	sched := New(cfg, f.checkpoints, f.knowledge, nil)
	res, err := sched.Run(nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.KnowledgePrunedByAge)
	assert.Equal(t, 1, res.KnowledgeRemaining)
	_, err = f.knowledge.Get("stale")
	assert.Error(t, err)
	_, err = f.knowledge.Get("fresh")
	assert.NoError(t, err)
}

func TestKnowledgeHasNoCountCap(t *testing.T) {
	cfg := config.Default()
	cfg.KnowledgeMaxAgeDays = 0
	f := newFixture(t, cfg)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := f.knowledge.Add(ctx, knowledge.AddParams{
			ID:      fmt.Sprintf("item-%02d", i),
			Content: fmt.Sprintf("insight %d", i),
		})
		require.NoError(t, err)
	}

	sched := New(cfg, f.checkpoints, f.knowledge, nil)
	res, err := sched.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.KnowledgePrunedByAge)
	assert.Equal(t, 20, res.KnowledgeRemaining)
}

func TestOrphanSweep(t *testing.T) {
	cfg := config.Default()
	cfg.DedupThreshold = 2
	f := newFixture(t, cfg)

	f.saveCheckpoints(t, 2)
	_, err := f.knowledge.Add(context.Background(), knowledge.AddParams{ID: "kept", Content: "content"})
	require.NoError(t, err)

	// Rows whose owning file no longer exists, as after a crash between a
	// file delete and its embedding removal.
	require.NoError(t, f.checkpoints.Vectors().Add("ghost-checkpoint", []float32{1, 0}))
	require.NoError(t, f.knowledge.Vectors().Add("ghost-item", []float32{0, 1}))

	sched := New(cfg, f.checkpoints, f.knowledge, nil)
	res, err := sched.Run(nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.OrphanedEmbeddings)
	_, ok := f.checkpoints.Vectors().Current().Lookup("ghost-checkpoint")
	assert.False(t, ok)
	_, ok = f.knowledge.Vectors().Current().Lookup("ghost-item")
	assert.False(t, ok)
	_, ok = f.knowledge.Vectors().Current().Lookup("kept")
	assert.True(t, ok)
}

func TestOrphanSweepKeepsCorruptItemEmbedding(t *testing.T) {
	cfg := config.Default()
	f := newFixture(t, cfg)

	_, err := f.knowledge.Add(context.Background(), knowledge.AddParams{ID: "intact", Content: "still parses"})
	require.NoError(t, err)

	// An item file damaged after the fact still exists on disk, so its
	// embedding row is live, not orphaned.
	require.NoError(t, os.WriteFile(filepath.Join(f.kDir, "damaged.md"), []byte("no front matter here\n"), 0o600))
	require.NoError(t, f.knowledge.Vectors().Add("damaged", []float32{1, 0}))

	sched := New(cfg, f.checkpoints, f.knowledge, nil)
	res, err := sched.Run(nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.OrphanedEmbeddings)
	_, ok := f.knowledge.Vectors().Current().Lookup("damaged")
	assert.True(t, ok, "a corrupt item file must keep its embedding row")
	_, ok = f.knowledge.Vectors().Current().Lookup("intact")
	assert.True(t, ok)
}
