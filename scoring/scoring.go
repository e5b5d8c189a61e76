// Package scoring combines semantic similarity with lexical keyword matching
// into one ranking score. Both knowledge recall and checkpoint deduplication
// rank with it. Scoring is exactly deterministic: fixed inputs always
// produce the same score, with no randomness anywhere.
package scoring

import (
	"strings"

	"github.com/b17z/sage/embedding"
)

// Weights is the hybrid split, read from config. The two weights are
// expected (but not required) to sum to 1; when they do, the hybrid score
// is a convex combination bounded by its two components.
type Weights struct {
	Embedding float64
	Keyword   float64
}

// Candidate is one scoring target: its stored vector (nil when embeddings
// are unavailable), its text, and its curated keyword list.
type Candidate struct {
	Vector   []float32
	Text     string
	Keywords []string
}

// Hybrid scores a candidate against a query.
//
// score = embedding_weight * cosine + keyword_weight * keyword
//
// Cosine is clamped to [0,1] so the output range is fixed. The two degraded
// shapes score differently on purpose. No query vector means the whole store
// is keyword-only (no model), so every candidate collapses to its
// full-weight keyword score and ranks stay comparable. A live query vector
// with a missing candidate vector means only that one candidate degraded
// (its embed failed at write time); it keeps just its keyword share, so it
// cannot outrank fully scored peers.
func Hybrid(queryVec []float32, query string, c Candidate, w Weights) float64 {
	kw := KeywordScore(query, c.Keywords, c.Text)

	if len(queryVec) == 0 {
		return kw
	}
	if len(c.Vector) == 0 {
		return w.Keyword * kw
	}

	sim := embedding.Cosine(queryVec, c.Vector)
	if sim < 0 {
		sim = 0
	} else if sim > 1 {
		sim = 1
	}
	return w.Embedding*sim + w.Keyword*kw
}

// KeywordScore rates lexical overlap between a query and a candidate's
// keywords and text, normalized to [0,1]. Per query token the best match
// wins: an exact keyword match (1.0) beats a substring keyword match (0.5),
// which beats a bare occurrence in the candidate text (0.25).
func KeywordScore(query string, keywords []string, text string) float64 {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return 0
	}

	lowerKeywords := make([]string, len(keywords))
	for i, k := range keywords {
		lowerKeywords[i] = strings.ToLower(k)
	}
	lowerText := strings.ToLower(text)

	var total float64
	for _, tok := range tokens {
		best := 0.0
		for _, kw := range lowerKeywords {
			switch {
			case tok == kw:
				best = 1.0
			case best < 0.5 && (strings.Contains(kw, tok) || strings.Contains(tok, kw)):
				best = 0.5
			}
			if best == 1.0 {
				break
			}
		}
		if best < 0.25 && strings.Contains(lowerText, tok) {
			best = 0.25
		}
		total += best
	}
	return total / float64(len(tokens))
}

// Tokenize splits text into lowercase match tokens, trimming punctuation and
// dropping fragments shorter than two characters.
func Tokenize(text string) []string {
	var tokens []string
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,!?;:\"'()[]{}`")
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
