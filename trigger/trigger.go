// Package trigger watches a stream of conversation turns and decides when a
// moment is checkpoint-worthy. Two signal families feed the decision:
// structural signals from embedding-space drift and conversational shape,
// and linguistic signals from literal phrase matching. The two are never
// treated symmetrically: linguistic signal is confirmation-only, because
// phrasing alone is too noisy to act on.
package trigger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/b17z/sage/config"
	"github.com/b17z/sage/core"
	"github.com/b17z/sage/embedding"
)

// Kind identifies a trigger category.
type Kind string

const (
	KindTopicShift  Kind = "topic_shift"
	KindBranchPoint Kind = "branch_point"
	KindConstraint  Kind = "constraint"
	KindSynthesis   Kind = "synthesis"
)

// Combiner constants. These are fixed decision logic, not configuration:
// tuning them per project would make trigger behavior impossible to reason
// about across sessions.
const (
	maxWindow  = 50 // turn buffer hard cap; oldest evicted first
	minHistory = 5  // turns buffered before any evaluation

	soloCutoff    = 0.8  // structural fires alone at or above this
	confirmCutoff = 0.5  // structural + linguistic confirmation fires here
	confirmBoost  = 0.2  // added when linguistic confirms
	maxConfidence = 0.95 // hard ceiling for any combination

	synthesisConfidence = 0.6 // fixed confidence of the convergence check
)

// Trigger is one fired save-worthy event.
type Trigger struct {
	ID         string
	Kind       Kind
	Confidence float64
	Reason     string
	At         time.Time
}

// candidate is an unfired structural signal.
type candidate struct {
	kind       Kind
	confidence float64
	reason     string
}

// turnRecord is one buffered turn. Not persisted; lives only for the
// session.
type turnRecord struct {
	role       core.Role
	text       string
	vec        []float32
	isQuestion bool
}

// Session is the per-monitored-session trigger state machine. With fewer
// than minHistory buffered turns it only accumulates; after that every new
// turn is evaluated. Not safe for concurrent use; a session belongs to one
// conversation.
type Session struct {
	id   string
	cfg  *config.Config
	pool *embedding.Pool
	log  *zap.Logger
	now  func() time.Time

	tokens *tokenCounter

	window    []turnRecord
	lastFired map[Kind]time.Time

	messageCount  int
	tokenEstimate int
}

// NewSession creates a detector session.
func NewSession(cfg *config.Config, pool *embedding.Pool, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		id:        uuid.New().String(),
		cfg:       cfg,
		pool:      pool,
		log:       log,
		now:       time.Now,
		tokens:    newTokenCounter(),
		lastFired: make(map[Kind]time.Time),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Counters returns the running message count and token estimate, suitable
// for filling a checkpoint's depth counters.
func (s *Session) Counters() (messages, tokenEstimate int) {
	return s.messageCount, s.tokenEstimate
}

// WindowLen returns the number of buffered turns.
func (s *Session) WindowLen() int { return len(s.window) }

// AnalyzeTurn consumes one turn and returns at most one fired trigger.
//
// Decision order: structural candidates are collected first (topic drift,
// question convergence), then linguistic matches. A structural candidate at
// or above the solo cutoff fires alone; one at or above the confirmation
// cutoff fires only with a same-kind linguistic match, boosted and capped;
// a linguistic match with no structural candidate never fires. Each kind
// then respects its own cooldown, so one noisy kind cannot starve others.
func (s *Session) AnalyzeTurn(ctx context.Context, role core.Role, text string) (*Trigger, error) {
	s.messageCount++
	s.tokenEstimate += s.tokens.Count(text)

	vec := s.embedTurn(ctx, text)
	rec := turnRecord{role: role, text: text, vec: vec, isQuestion: isQuestion(text)}

	var fired *Trigger
	if len(s.window) >= minHistory {
		fired = s.evaluate(rec)
	}

	s.window = append(s.window, rec)
	if len(s.window) > maxWindow {
		s.window = s.window[len(s.window)-maxWindow:]
	}
	return fired, nil
}

func (s *Session) evaluate(rec turnRecord) *Trigger {
	var candidates []candidate
	if c := s.driftCheck(rec); c != nil {
		candidates = append(candidates, *c)
	}
	if c := s.convergenceCheck(rec); c != nil {
		candidates = append(candidates, *c)
	}

	matched := linguisticMatches(rec.text)

	var best *Trigger
	for _, c := range candidates {
		// Cooldown is per kind and filters before selection, so a kind on
		// cooldown cannot shadow a quieter kind that is free to fire.
		if s.onCooldown(c.kind) {
			s.log.Debug("trigger suppressed by cooldown", zap.String("kind", string(c.kind)))
			continue
		}
		confirmed := matched[c.kind]
		var conf float64
		var reason string
		switch {
		case confirmed && c.confidence >= confirmCutoff:
			conf = c.confidence + confirmBoost
			reason = c.reason + ", confirmed by phrasing"
		case c.confidence >= soloCutoff:
			conf = c.confidence
			reason = c.reason
		default:
			continue
		}
		if conf > maxConfidence {
			conf = maxConfidence
		}
		if floor, ok := s.cfg.TriggerMinConfidence[string(c.kind)]; ok && conf < floor {
			continue
		}
		if best == nil || conf > best.Confidence {
			best = &Trigger{
				ID:         uuid.New().String(),
				Kind:       c.kind,
				Confidence: conf,
				Reason:     reason,
				At:         s.now(),
			}
		}
	}

	if best == nil {
		return nil
	}
	s.lastFired[best.Kind] = s.now()
	s.log.Info("trigger fired",
		zap.String("kind", string(best.Kind)),
		zap.Float64("confidence", best.Confidence),
		zap.String("reason", best.Reason))
	return best
}

func (s *Session) onCooldown(kind Kind) bool {
	last, ok := s.lastFired[kind]
	if !ok {
		return false
	}
	return s.now().Sub(last) < s.cfg.TriggerCooldown()
}

// embedTurn embeds the turn text, degrading to nil (linguistic-only
// structure) when no model is available.
func (s *Session) embedTurn(ctx context.Context, text string) []float32 {
	if !s.cfg.EmbeddingsEnabled || s.pool == nil {
		return nil
	}
	prov, err := s.pool.Get(embedding.KindProse)
	if err != nil {
		return nil
	}
	vec, err := prov.EmbedDocument(ctx, text)
	if err != nil {
		s.log.Debug("turn embedding failed", zap.Error(err))
		return nil
	}
	return vec
}
