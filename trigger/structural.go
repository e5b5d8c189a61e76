package trigger

import (
	"fmt"
	"strings"

	"github.com/b17z/sage/core"
	"github.com/b17z/sage/embedding"
)

// Structural checks read conversational shape, not phrasing. They run over
// the buffered window BEFORE the new turn is appended, so the new turn is
// always compared against history, never against itself.

// driftCheck compares the new turn's embedding to the centroid of the last
// five turn embeddings. Similarity below the drift threshold means the
// conversation moved somewhere new: a topic_shift candidate with confidence
// 1 − similarity.
func (s *Session) driftCheck(rec turnRecord) *candidate {
	if rec.vec == nil {
		return nil
	}

	var recent [][]float32
	for i := len(s.window) - 1; i >= 0 && len(recent) < 5; i-- {
		if s.window[i].vec != nil {
			recent = append(recent, s.window[i].vec)
		}
	}
	if len(recent) < 5 {
		return nil
	}

	centroid := embedding.Centroid(recent)
	sim := embedding.Cosine(rec.vec, centroid)
	if sim >= s.cfg.TopicDriftThreshold {
		return nil
	}

	conf := 1 - sim
	if conf > 1 {
		conf = 1
	}
	return &candidate{
		kind:       KindTopicShift,
		confidence: conf,
		reason:     fmt.Sprintf("topic drift (similarity %.2f)", sim),
	}
}

// convergenceCheck looks for the question-to-statement shape of a
// conversation settling on an answer: the early half of the last ten user
// turns was mostly questions, the late half stopped asking, and the current
// turn is a statement. Fires a synthesis candidate at fixed moderate
// confidence. User turns only; assistant phrasing says nothing about
// whether the user converged.
func (s *Session) convergenceCheck(rec turnRecord) *candidate {
	if rec.role != core.RoleUser || rec.isQuestion {
		return nil
	}

	var userTurns []turnRecord
	for _, t := range s.window {
		if t.role == core.RoleUser {
			userTurns = append(userTurns, t)
		}
	}
	if len(userTurns) < 10 {
		return nil
	}
	userTurns = userTurns[len(userTurns)-10:]

	early, late := userTurns[:5], userTurns[5:]
	if questionRatio(early) <= 0.5 {
		return nil
	}
	if questionRatio(late) >= s.cfg.ConvergenceQuestionDrop {
		return nil
	}

	return &candidate{
		kind:       KindSynthesis,
		confidence: synthesisConfidence,
		reason:     "question convergence",
	}
}

func questionRatio(turns []turnRecord) float64 {
	if len(turns) == 0 {
		return 0
	}
	n := 0
	for _, t := range turns {
		if t.isQuestion {
			n++
		}
	}
	return float64(n) / float64(len(turns))
}

var interrogatives = map[string]bool{
	"what": true, "why": true, "how": true, "when": true, "where": true,
	"which": true, "who": true, "should": true, "could": true, "would": true,
	"can": true, "is": true, "are": true, "do": true, "does": true, "will": true,
}

// isQuestion flags a turn as a question: it ends with a question mark, or
// opens with an interrogative and contains one anywhere.
func isQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	fields := strings.Fields(strings.ToLower(trimmed))
	if len(fields) == 0 {
		return false
	}
	return interrogatives[strings.Trim(fields[0], ",.")] && strings.Contains(trimmed, "?")
}
