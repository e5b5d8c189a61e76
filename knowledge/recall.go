package knowledge

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/b17z/sage/embedding"
	"github.com/b17z/sage/scoring"
)

// ScoredItem is one recall hit.
type ScoredItem struct {
	Item
	Score float64
}

// RecallResult is a ranked recall answer. Degraded reports keyword-only
// scoring (no embedding model), always surfaced, never silent.
type RecallResult struct {
	Items    []ScoredItem
	Degraded bool
}

// Recall ranks non-archived items against the query: hybrid score per item,
// per-type threshold filter, descending by score with recency breaking
// ties, capped at the configured result count. For fixed store contents the
// ranking is exactly reproducible.
func (s *Store) Recall(ctx context.Context, query, scope string) (*RecallResult, error) {
	items, err := s.Items()
	if err != nil {
		return nil, err
	}

	queryVec, degraded := s.queryVector(ctx, query)
	snap := s.vecs.Current()

	var hits []ScoredItem
	for _, it := range items {
		if it.Status == StatusArchived {
			continue
		}
		if scope != "" && it.Scope != scope {
			continue
		}
		vec, _ := snap.Lookup(it.ID)
		score := scoring.Hybrid(queryVec, query, scoring.Candidate{
			Vector:   vec,
			Text:     it.Content,
			Keywords: it.Keywords,
		}, s.weights())
		if score >= s.cfg.ThresholdFor(string(it.Type)) {
			hits = append(hits, ScoredItem{Item: it, Score: score})
		}
	}

	sortHits(hits)
	if max := s.cfg.MaxRecallResults; max > 0 && len(hits) > max {
		hits = hits[:max]
	}

	s.log.Debug("recall",
		zap.String("query", query),
		zap.Int("hits", len(hits)),
		zap.Bool("degraded", degraded))
	return &RecallResult{Items: hits, Degraded: degraded}, nil
}

// DebugEntry is one item's full score breakdown, including misses.
type DebugEntry struct {
	ID        string
	Type      ItemType
	Status    Status
	Score     float64
	Keyword   float64
	Semantic  float64
	Threshold float64
	Met       bool
	NearMiss  bool // within the debug margin below threshold
}

// DebugResult is the diagnostic view of a query: every non-archived item's
// score, which met their thresholds, which nearly did, and a threshold
// suggestion when nothing surfaced. This is a diagnostic contract, not a
// ranking contract.
type DebugResult struct {
	Entries            []DebugEntry
	Degraded           bool
	SuggestedThreshold float64 // 0 when no suggestion applies
}

// DebugQuery scores everything and hides nothing, so an operator can see
// why an item did or did not surface.
func (s *Store) DebugQuery(ctx context.Context, query string) (*DebugResult, error) {
	items, err := s.Items()
	if err != nil {
		return nil, err
	}

	queryVec, degraded := s.queryVector(ctx, query)
	snap := s.vecs.Current()

	var entries []DebugEntry
	anyMet := false
	best := 0.0
	for _, it := range items {
		if it.Status == StatusArchived {
			continue
		}
		vec, _ := snap.Lookup(it.ID)
		kw := scoring.KeywordScore(query, it.Keywords, it.Content)
		sem := 0.0
		if len(queryVec) > 0 && len(vec) > 0 {
			sem = embedding.Cosine(queryVec, vec)
			if sem < 0 {
				sem = 0
			}
		}
		score := scoring.Hybrid(queryVec, query, scoring.Candidate{
			Vector:   vec,
			Text:     it.Content,
			Keywords: it.Keywords,
		}, s.weights())
		threshold := s.cfg.ThresholdFor(string(it.Type))

		entry := DebugEntry{
			ID:        it.ID,
			Type:      it.Type,
			Status:    it.Status,
			Score:     score,
			Keyword:   kw,
			Semantic:  sem,
			Threshold: threshold,
			Met:       score >= threshold,
			NearMiss:  score < threshold && score >= threshold-s.cfg.DebugMargin,
		}
		entries = append(entries, entry)
		anyMet = anyMet || entry.Met
		if score > best {
			best = score
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ID < entries[j].ID
	})

	result := &DebugResult{Entries: entries, Degraded: degraded}
	if !anyMet && best > 0 {
		// Suggest a threshold just under the best score so the operator can
		// see what it would take for the top item to surface.
		suggested := math.Floor(best*100)/100 - 0.01
		if suggested > 0 {
			result.SuggestedThreshold = suggested
		}
	}
	return result, nil
}

// queryVector embeds the query, degrading to nil (keyword-only) when the
// model is unavailable or embedding fails.
func (s *Store) queryVector(ctx context.Context, query string) ([]float32, bool) {
	if !s.cfg.EmbeddingsEnabled || s.pool == nil {
		return nil, true
	}
	prov, err := s.pool.Get(embedding.KindProse)
	if err != nil {
		return nil, true
	}
	vec, err := prov.EmbedQuery(ctx, query)
	if err != nil {
		s.log.Warn("query embedding failed, keyword-only recall active", zap.Error(err))
		return nil, true
	}
	return vec, false
}

func (s *Store) weights() scoring.Weights {
	return scoring.Weights{Embedding: s.cfg.EmbeddingWeight, Keyword: s.cfg.KeywordWeight}
}

// sortHits orders by score descending; ties go to the newer item for
// stability, then lexical id as the final total order.
func sortHits(hits []ScoredItem) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].AddedAt.Equal(hits[j].AddedAt) {
			return hits[i].AddedAt.After(hits[j].AddedAt)
		}
		return hits[i].ID < hits[j].ID
	})
}
