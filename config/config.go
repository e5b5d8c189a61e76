// Package config resolves the engine's tunable thresholds from a layered
// override cascade: built-in defaults, then the user file, then the project
// file. Resolution produces one immutable snapshot; components read from the
// snapshot for their whole lifetime, and a reload is an explicit
// re-resolution call, never in-place mutation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is one resolved, immutable snapshot of every tunable the engine
// reads. Durations are stored as whole seconds so override files stay plain
// YAML scalars.
type Config struct {
	// Recall thresholds per knowledge item type. An item surfaces only when
	// its hybrid score meets the threshold for its type.
	RecallThreshold     float64 `yaml:"recall_threshold"` // general-knowledge
	PreferenceThreshold float64 `yaml:"preference_threshold"`
	TodoThreshold       float64 `yaml:"todo_threshold"`
	ReferenceThreshold  float64 `yaml:"reference_threshold"`

	// MaxRecallResults caps the ranked result list.
	MaxRecallResults int `yaml:"max_recall_results"`

	// DebugMargin widens the debug-query view below each threshold so
	// near-misses are visible.
	DebugMargin float64 `yaml:"debug_margin"`

	// Hybrid score weight split. Expected (not required) to sum to 1.
	EmbeddingWeight float64 `yaml:"embedding_weight"`
	KeywordWeight   float64 `yaml:"keyword_weight"`

	// EmbeddingsEnabled set false forces keyword-only scoring even when a
	// model is installed.
	EmbeddingsEnabled bool `yaml:"embeddings_enabled"`

	// EmbedCacheTTLSeconds bounds the embedding memoization cache.
	EmbedCacheTTLSeconds int `yaml:"embed_cache_ttl_seconds"`

	// Checkpoint deduplication: similarity cutoff and how many recent
	// checkpoints the new thesis is compared against.
	DedupThreshold float64 `yaml:"dedup_threshold"`
	DedupWindow    int     `yaml:"dedup_window"`

	// Depth gate minimums. Checkpoints below both are rejected unless the
	// trigger kind is exempt or the caller omitted both counters.
	DepthMinMessages int `yaml:"depth_min_messages"`
	DepthMinTokens   int `yaml:"depth_min_tokens"`

	// Trigger detection.
	TopicDriftThreshold     float64            `yaml:"topic_drift_threshold"`
	ConvergenceQuestionDrop float64            `yaml:"convergence_question_drop"`
	TriggerCooldownSeconds  int                `yaml:"trigger_cooldown_seconds"`
	TriggerMinConfidence    map[string]float64 `yaml:"trigger_min_confidence"`

	// Maintenance caps. Zero disables an age dimension.
	CheckpointMaxAgeDays int  `yaml:"checkpoint_max_age_days"`
	CheckpointMaxCount   int  `yaml:"checkpoint_max_count"`
	KnowledgeMaxAgeDays  int  `yaml:"knowledge_max_age_days"`
	MaintenanceOnSave    bool `yaml:"maintenance_on_save"`

	// CacheTTLSeconds bounds the knowledge index cache.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// Default returns the built-in base layer of the cascade.
func Default() *Config {
	return &Config{
		RecallThreshold:     0.35,
		PreferenceThreshold: 0.30,
		TodoThreshold:       0.30,
		ReferenceThreshold:  0.40,
		MaxRecallResults:    5,
		DebugMargin:         0.15,

		EmbeddingWeight:      0.7,
		KeywordWeight:        0.3,
		EmbeddingsEnabled:    true,
		EmbedCacheTTLSeconds: 300,

		DedupThreshold: 0.90,
		DedupWindow:    10,

		DepthMinMessages: 10,
		DepthMinTokens:   2000,

		TopicDriftThreshold:     0.55,
		ConvergenceQuestionDrop: 0.25,
		TriggerCooldownSeconds:  600,
		TriggerMinConfidence: map[string]float64{
			"topic_shift":  0.5,
			"branch_point": 0.5,
			"constraint":   0.6,
			"synthesis":    0.5,
		},

		CheckpointMaxAgeDays: 30,
		CheckpointMaxCount:   200,
		KnowledgeMaxAgeDays:  0, // knowledge is curated; age pruning is opt-in
		MaintenanceOnSave:    true,

		CacheTTLSeconds: 30,
	}
}

// CacheTTL returns the knowledge cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// EmbedCacheTTL returns the embedding memoization TTL as a duration.
func (c *Config) EmbedCacheTTL() time.Duration {
	return time.Duration(c.EmbedCacheTTLSeconds) * time.Second
}

// TriggerCooldown returns the per-kind trigger suppression interval.
func (c *Config) TriggerCooldown() time.Duration {
	return time.Duration(c.TriggerCooldownSeconds) * time.Second
}

// ThresholdFor returns the recall threshold for a knowledge item type name.
// Unknown types fall back to the general recall threshold.
func (c *Config) ThresholdFor(itemType string) float64 {
	switch itemType {
	case "preference":
		return c.PreferenceThreshold
	case "todo":
		return c.TodoThreshold
	case "reference":
		return c.ReferenceThreshold
	default:
		return c.RecallThreshold
	}
}

// Paths names the override files of the cascade. Either may be empty or
// missing; a missing file contributes nothing.
type Paths struct {
	UserFile    string
	ProjectFile string
}

// Resolve builds one immutable Config from the cascade:
// defaults, then the user file, then the project file (highest precedence).
// Call Resolve again to pick up edited files; snapshots are never mutated.
func Resolve(paths Paths) (*Config, error) {
	cfg := Default()
	for _, path := range []string{paths.UserFile, paths.ProjectFile} {
		if path == "" {
			continue
		}
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// overlay mirrors Config with pointer fields so absent keys in an override
// file leave the lower layer's value intact.
type overlay struct {
	RecallThreshold     *float64 `yaml:"recall_threshold"`
	PreferenceThreshold *float64 `yaml:"preference_threshold"`
	TodoThreshold       *float64 `yaml:"todo_threshold"`
	ReferenceThreshold  *float64 `yaml:"reference_threshold"`
	MaxRecallResults    *int     `yaml:"max_recall_results"`
	DebugMargin         *float64 `yaml:"debug_margin"`

	EmbeddingWeight      *float64 `yaml:"embedding_weight"`
	KeywordWeight        *float64 `yaml:"keyword_weight"`
	EmbeddingsEnabled    *bool    `yaml:"embeddings_enabled"`
	EmbedCacheTTLSeconds *int     `yaml:"embed_cache_ttl_seconds"`

	DedupThreshold *float64 `yaml:"dedup_threshold"`
	DedupWindow    *int     `yaml:"dedup_window"`

	DepthMinMessages *int `yaml:"depth_min_messages"`
	DepthMinTokens   *int `yaml:"depth_min_tokens"`

	TopicDriftThreshold     *float64           `yaml:"topic_drift_threshold"`
	ConvergenceQuestionDrop *float64           `yaml:"convergence_question_drop"`
	TriggerCooldownSeconds  *int               `yaml:"trigger_cooldown_seconds"`
	TriggerMinConfidence    map[string]float64 `yaml:"trigger_min_confidence"`

	CheckpointMaxAgeDays *int  `yaml:"checkpoint_max_age_days"`
	CheckpointMaxCount   *int  `yaml:"checkpoint_max_count"`
	KnowledgeMaxAgeDays  *int  `yaml:"knowledge_max_age_days"`
	MaintenanceOnSave    *bool `yaml:"maintenance_on_save"`

	CacheTTLSeconds *int `yaml:"cache_ttl_seconds"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setI := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setB := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}

	setF(&cfg.RecallThreshold, o.RecallThreshold)
	setF(&cfg.PreferenceThreshold, o.PreferenceThreshold)
	setF(&cfg.TodoThreshold, o.TodoThreshold)
	setF(&cfg.ReferenceThreshold, o.ReferenceThreshold)
	setI(&cfg.MaxRecallResults, o.MaxRecallResults)
	setF(&cfg.DebugMargin, o.DebugMargin)

	setF(&cfg.EmbeddingWeight, o.EmbeddingWeight)
	setF(&cfg.KeywordWeight, o.KeywordWeight)
	setB(&cfg.EmbeddingsEnabled, o.EmbeddingsEnabled)
	setI(&cfg.EmbedCacheTTLSeconds, o.EmbedCacheTTLSeconds)

	setF(&cfg.DedupThreshold, o.DedupThreshold)
	setI(&cfg.DedupWindow, o.DedupWindow)

	setI(&cfg.DepthMinMessages, o.DepthMinMessages)
	setI(&cfg.DepthMinTokens, o.DepthMinTokens)

	setF(&cfg.TopicDriftThreshold, o.TopicDriftThreshold)
	setF(&cfg.ConvergenceQuestionDrop, o.ConvergenceQuestionDrop)
	setI(&cfg.TriggerCooldownSeconds, o.TriggerCooldownSeconds)
	for kind, floor := range o.TriggerMinConfidence {
		if cfg.TriggerMinConfidence == nil {
			cfg.TriggerMinConfidence = make(map[string]float64)
		}
		cfg.TriggerMinConfidence[kind] = floor
	}

	setI(&cfg.CheckpointMaxAgeDays, o.CheckpointMaxAgeDays)
	setI(&cfg.CheckpointMaxCount, o.CheckpointMaxCount)
	setI(&cfg.KnowledgeMaxAgeDays, o.KnowledgeMaxAgeDays)
	setB(&cfg.MaintenanceOnSave, o.MaintenanceOnSave)

	setI(&cfg.CacheTTLSeconds, o.CacheTTLSeconds)

	return nil
}
