package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"raft", "leader", "election"}, Tokenize("Raft leader election?"))
	assert.Equal(t, []string{"quoted", "mixed-case"}, Tokenize(`"quoted" MIXED-Case a`))
	assert.Nil(t, Tokenize("a ! ."))
}

func TestKeywordScoreTiers(t *testing.T) {
	// Exact keyword match beats substring match beats a bare text occurrence.
	exact := KeywordScore("raft", []string{"raft"}, "")
	substr := KeywordScore("raft", []string{"raft-consensus"}, "")
	text := KeywordScore("raft", nil, "notes on the raft paper")
	none := KeywordScore("raft", []string{"paxos"}, "nothing relevant")

	assert.Equal(t, 1.0, exact)
	assert.Equal(t, 0.5, substr)
	assert.Equal(t, 0.25, text)
	assert.Equal(t, 0.0, none)
	assert.Greater(t, exact, substr)
	assert.Greater(t, substr, text)
}

func TestKeywordScoreNormalized(t *testing.T) {
	// Two tokens, one exact hit: (1.0 + 0.0) / 2.
	got := KeywordScore("raft paxos", []string{"raft"}, "")
	assert.InDelta(t, 0.5, got, 1e-9)

	// Empty query scores zero rather than dividing by zero.
	assert.Equal(t, 0.0, KeywordScore("", []string{"raft"}, "text"))
}

func TestKeywordScoreCaseInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, KeywordScore("RAFT", []string{"Raft"}, ""))
}

func TestHybridConvexBound(t *testing.T) {
	w := Weights{Embedding: 0.7, Keyword: 0.3}
	query := []float32{1, 0}
	c := Candidate{
		Vector:   []float32{0.6, 0.8}, // cosine 0.6 against the query
		Keywords: []string{"cache"},
		Text:     "",
	}

	score := Hybrid(query, "cache", c, w)
	// Weights sum to 1, so the result is bounded by its two components.
	assert.InDelta(t, 0.7*0.6+0.3*1.0, score, 1e-6)
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.6)
}

func TestHybridClampsNegativeCosine(t *testing.T) {
	w := Weights{Embedding: 0.7, Keyword: 0.3}
	c := Candidate{Vector: []float32{-1, 0}, Keywords: []string{"cache"}}
	// Opposed vectors clamp to 0; only the keyword term remains.
	score := Hybrid([]float32{1, 0}, "cache", c, w)
	assert.InDelta(t, 0.3, score, 1e-6)
}

func TestHybridKeywordOnlyCollapse(t *testing.T) {
	w := Weights{Embedding: 0.7, Keyword: 0.3}

	// No query vector: the whole store is keyword-only, so the score
	// collapses to pure keyword score with the full weight on it rather
	// than scaled by 0.3.
	score := Hybrid(nil, "cache", Candidate{Vector: []float32{1, 0}, Keywords: []string{"cache"}}, w)
	assert.Equal(t, 1.0, score)
}

func TestHybridMissingCandidateVectorKeepsKeywordShare(t *testing.T) {
	w := Weights{Embedding: 0.7, Keyword: 0.3}

	// Query vector present, candidate vector missing: only this one
	// candidate degraded, so it keeps its keyword share alone and cannot
	// reach 1.0 against fully scored peers.
	missing := Hybrid([]float32{1, 0}, "cache", Candidate{Keywords: []string{"cache"}}, w)
	assert.InDelta(t, 0.3, missing, 1e-9)

	// A peer with a mediocre cosine and no keyword hit still outranks it.
	peer := Hybrid([]float32{1, 0}, "cache", Candidate{Vector: []float32{0.6, 0.8}}, w)
	assert.Greater(t, peer, missing)
}

func TestHybridDeterministic(t *testing.T) {
	w := Weights{Embedding: 0.7, Keyword: 0.3}
	q := []float32{0.3, 0.4, 0.5}
	c := Candidate{Vector: []float32{0.5, 0.1, 0.2}, Text: "stable text", Keywords: []string{"stable"}}
	first := Hybrid(q, "stable query", c, w)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Hybrid(q, "stable query", c, w))
	}
}
