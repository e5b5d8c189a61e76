// Package engine wires the memory subsystems into one façade: the save
// paths (checkpoint and knowledge), the recall paths, trigger analysis, and
// maintenance. A host calls one method in and gets one result out; the
// engine owns no goroutines and no global state.
package engine

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/b17z/sage/checkpoint"
	"github.com/b17z/sage/config"
	"github.com/b17z/sage/core"
	"github.com/b17z/sage/embedding"
	"github.com/b17z/sage/knowledge"
	"github.com/b17z/sage/maintenance"
	"github.com/b17z/sage/trigger"
	"github.com/b17z/sage/vecstore"
)

// Engine is the memory engine façade.
type Engine struct {
	root string
	cfg  *config.Config
	pool *embedding.Pool
	log  *zap.Logger

	checkpoints *checkpoint.Store
	knowledge   *knowledge.Store
	scheduler   *maintenance.Scheduler

	session *trigger.Session
}

type options struct {
	cfg         *config.Config
	configPaths config.Paths
	factories   map[embedding.Kind]embedding.Factory
	log         *zap.Logger
}

// Option configures the engine.
type Option func(*options)

// WithConfig supplies an already-resolved config snapshot, bypassing the
// file cascade.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigPaths names the cascade override files to resolve at startup.
func WithConfigPaths(paths config.Paths) Option {
	return func(o *options) { o.configPaths = paths }
}

// WithProseModel sets the factory for the prose embedding model. Without
// one, recall degrades to keyword-only scoring and dedup is skipped.
func WithProseModel(f embedding.Factory) Option {
	return func(o *options) { o.factories[embedding.KindProse] = f }
}

// WithCodeModel sets the factory for the code embedding model.
func WithCodeModel(f embedding.Factory) Option {
	return func(o *options) { o.factories[embedding.KindCode] = f }
}

// WithLogger sets the logger. Default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// New opens (or creates) a memory engine rooted at dir. Each store keeps
// its own embedding files under its own subdirectory, so the
// file-and-embedding pairing invariant holds per store.
func New(root string, opts ...Option) (*Engine, error) {
	o := &options{factories: make(map[embedding.Kind]embedding.Factory)}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		var err error
		cfg, err = config.Resolve(o.configPaths)
		if err != nil {
			return nil, err
		}
	}
	log := o.log
	if log == nil {
		log = zap.NewNop()
	}

	// Wrap every model factory with memoization; providers are
	// deterministic, so caching never changes results.
	factories := make(map[embedding.Kind]embedding.Factory, len(o.factories))
	for kind, factory := range o.factories {
		factory := factory
		factories[kind] = func() (embedding.Provider, error) {
			prov, err := factory()
			if err != nil {
				return nil, err
			}
			return embedding.Cached(prov, cfg.EmbedCacheTTL()), nil
		}
	}
	pool := embedding.NewPool(factories)

	cpVecs, err := vecstore.Open(filepath.Join(root, "checkpoints"))
	if err != nil {
		return nil, err
	}
	cps, err := checkpoint.New(filepath.Join(root, "checkpoints"), cfg, cpVecs, pool, log.Named("checkpoint"))
	if err != nil {
		return nil, err
	}

	kVecs, err := vecstore.Open(filepath.Join(root, "knowledge"))
	if err != nil {
		return nil, err
	}
	ks, err := knowledge.New(filepath.Join(root, "knowledge"), cfg, kVecs, pool, log.Named("knowledge"))
	if err != nil {
		return nil, err
	}

	return &Engine{
		root:        root,
		cfg:         cfg,
		pool:        pool,
		log:         log,
		checkpoints: cps,
		knowledge:   ks,
		scheduler:   maintenance.New(cfg, cps, ks, log.Named("maintenance")),
	}, nil
}

// Config returns the resolved config snapshot.
func (e *Engine) Config() *config.Config { return e.cfg }

// Checkpoints returns the checkpoint store.
func (e *Engine) Checkpoints() *checkpoint.Store { return e.checkpoints }

// Knowledge returns the knowledge store.
func (e *Engine) Knowledge() *knowledge.Store { return e.knowledge }

// SaveCheckpoint runs the checkpoint save path. A successful write runs
// maintenance synchronously when configured; a no-op result (duplicate or
// too-shallow) does not.
func (e *Engine) SaveCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) (*checkpoint.SaveResult, error) {
	res, err := e.checkpoints.Save(ctx, cp)
	if err != nil {
		return nil, err
	}
	if res.Status == checkpoint.StatusSaved && e.cfg.MaintenanceOnSave {
		if _, err := e.scheduler.Run(nil); err != nil {
			e.log.Warn("post-save maintenance failed", zap.Error(err))
		}
	}
	return res, nil
}

// SaveKnowledge creates (or replaces) a knowledge item, then runs
// maintenance when configured.
func (e *Engine) SaveKnowledge(ctx context.Context, p knowledge.AddParams) (*knowledge.Item, error) {
	it, err := e.knowledge.Add(ctx, p)
	if err != nil {
		return nil, err
	}
	if e.cfg.MaintenanceOnSave {
		if _, err := e.scheduler.Run(nil); err != nil {
			e.log.Warn("post-save maintenance failed", zap.Error(err))
		}
	}
	return it, nil
}

// UpdateKnowledge mutates an existing item; content changes re-embed.
func (e *Engine) UpdateKnowledge(ctx context.Context, id string, p knowledge.UpdateParams) (*knowledge.Item, error) {
	return e.knowledge.Update(ctx, id, p)
}

// DeprecateKnowledge marks an item deprecated without deleting it.
func (e *Engine) DeprecateKnowledge(ctx context.Context, id, reason, replacedBy string) error {
	return e.knowledge.Deprecate(ctx, id, reason, replacedBy)
}

// ArchiveKnowledge marks an item archived.
func (e *Engine) ArchiveKnowledge(ctx context.Context, id string) error {
	return e.knowledge.Archive(ctx, id)
}

// RemoveKnowledge physically deletes an item and its embedding.
func (e *Engine) RemoveKnowledge(id string) error {
	return e.knowledge.Remove(id)
}

// GetKnowledge returns one item by id.
func (e *Engine) GetKnowledge(id string) (*knowledge.Item, error) {
	return e.knowledge.Get(id)
}

// Recall ranks knowledge against a query, optionally scoped.
func (e *Engine) Recall(ctx context.Context, query, scope string) (*knowledge.RecallResult, error) {
	return e.knowledge.Recall(ctx, query, scope)
}

// DebugQuery returns the full score breakdown for a query.
func (e *Engine) DebugQuery(ctx context.Context, query string) (*knowledge.DebugResult, error) {
	return e.knowledge.DebugQuery(ctx, query)
}

// RunMaintenance prunes both stores, with optional per-run cap overrides.
func (e *Engine) RunMaintenance(o *maintenance.Overrides) (*maintenance.Result, error) {
	return e.scheduler.Run(o)
}

// NewSession creates a fresh trigger-detector session.
func (e *Engine) NewSession() *trigger.Session {
	return trigger.NewSession(e.cfg, e.pool, e.log.Named("trigger"))
}

// AnalyzeTurn feeds one turn to the engine's default session, creating it
// on first use, and returns at most one fired trigger.
func (e *Engine) AnalyzeTurn(ctx context.Context, role core.Role, text string) (*trigger.Trigger, error) {
	return e.Session().AnalyzeTurn(ctx, role, text)
}

// Session returns the engine's default trigger session, creating it on
// first use. Its counters can fill checkpoint depth fields.
func (e *Engine) Session() *trigger.Session {
	if e.session == nil {
		e.session = e.NewSession()
	}
	return e.session
}
