// Package checkpoint stores immutable research-state snapshots. A
// checkpoint is written once by the save path (after depth gating and
// thesis deduplication) and never mutated; only maintenance or explicit
// removal deletes it. The store exclusively owns the on-disk files; the
// embedding store holds the paired thesis embedding keyed by checkpoint id,
// deleted in lockstep with the file.
package checkpoint

import "time"

// Trigger kinds a checkpoint can record. The detector emits the first four;
// the rest come from the host (and are exempt from depth gating, because
// they mark moments worth keeping regardless of conversation depth).
const (
	TriggerTopicShift       = "topic_shift"
	TriggerBranchPoint      = "branch_point"
	TriggerConstraint       = "constraint"
	TriggerSynthesis        = "synthesis"
	TriggerManual           = "manual"
	TriggerPreCompaction    = "pre-compaction"
	TriggerContextThreshold = "context-threshold"
	TriggerResearchStart    = "research-start"
)

// depthExempt is the fixed set of trigger kinds that bypass the depth gate.
var depthExempt = map[string]bool{
	TriggerManual:           true,
	TriggerPreCompaction:    true,
	TriggerContextThreshold: true,
	TriggerResearchStart:    true,
}

// Source is one source consulted while forming the thesis.
type Source struct {
	ID       string
	Kind     string
	Take     string // one-line take
	Relation string // supports | contradicts | nuances
}

// Tension is an unresolved (or resolved) conflict between two sources.
type Tension struct {
	SourceA    string
	SourceB    string
	Nature     string
	Resolution string // empty means unresolved
}

// CodeRef points at a code location relevant to the checkpoint.
type CodeRef struct {
	File      string
	Lines     string // "12-40"
	Relevance string
}

// Checkpoint is one immutable research snapshot.
type Checkpoint struct {
	ID        string // time-derived human-readable slug; assigned on save
	CreatedAt time.Time
	Trigger   string

	CoreQuestion  string
	Thesis        string
	Confidence    float64 // 0 to 1
	OpenQuestions []string
	Sources       []Source
	Tensions      []Tension
	Contributions []string

	KeyEvidence []string
	Reasoning   string // how the thesis was reached

	FilesExplored []string
	FilesChanged  []string
	CodeRefs      []CodeRef

	// Depth counters. Both zero means the caller omitted them (unknown
	// depth), which bypasses the depth gate.
	MessageCount  int
	TokenEstimate int
}
