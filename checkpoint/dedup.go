package checkpoint

import (
	"github.com/b17z/sage/config"
	"github.com/b17z/sage/embedding"
)

// IsDuplicate reports whether a new thesis embedding duplicates any of the
// given recent thesis embeddings: true when the maximum cosine similarity
// meets or exceeds threshold. Pure: no side effects, no store access.
// Returns the max similarity and the index of the closest vector (-1 when
// recent is empty).
func IsDuplicate(vec []float32, recent [][]float32, threshold float64) (bool, float64, int) {
	maxSim := 0.0
	closest := -1
	for i, r := range recent {
		sim := embedding.Cosine(vec, r)
		if sim > maxSim {
			maxSim = sim
			closest = i
		}
	}
	return closest >= 0 && maxSim >= threshold, maxSim, closest
}

// tooShallow applies the depth gate. Exempt trigger kinds always pass, and
// both counters at zero means the caller did not track depth, which also
// passes (backward compatibility with hosts that predate the counters).
// Otherwise both minimums must be met.
func tooShallow(cp *Checkpoint, cfg *config.Config) bool {
	if depthExempt[cp.Trigger] {
		return false
	}
	if cp.MessageCount == 0 && cp.TokenEstimate == 0 {
		return false // unknown depth
	}
	return cp.MessageCount < cfg.DepthMinMessages || cp.TokenEstimate < cfg.DepthMinTokens
}
