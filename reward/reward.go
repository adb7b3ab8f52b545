package reward

import (
	"context"

	mem "rewardkit/adapters/memory"
	"rewardkit/core"
	"rewardkit/engine"
	"rewardkit/leaderboard"
	"rewardkit/realtime"
)

// Option configures the reward engine builder.
type Option func(*config)

type config struct {
	storage engine.Storage
	mode    engine.DispatchMode
	rules   core.Ruleset
	hub     *realtime.Hub
	board   leaderboard.Board
	engOpts []engine.Option
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithRuleset replaces the built-in rule table, badge and quest catalogs.
func WithRuleset(r core.Ruleset) Option { return func(c *config) { c.rules = r } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLeaderboard keeps a board in sync with awarded points.
func WithLeaderboard(b leaderboard.Board) Option { return func(c *config) { c.board = b } }

// WithEngineOptions forwards options to the underlying service (clock,
// retries, logger).
func WithEngineOptions(opts ...engine.Option) Option {
	return func(c *config) { c.engOpts = append(c.engOpts, opts...) }
}

// New builds a configured IngestService. If not provided, defaults are used:
//   - storage: in-memory
//   - rules: DefaultRuleset
//   - dispatch: async
func New(opts ...Option) *engine.IngestService {
	cfg := &config{mode: engine.DispatchAsync, rules: core.DefaultRuleset()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	bus := engine.NewEventBus(cfg.mode)
	svc := engine.NewIngestService(cfg.storage, bus, cfg.rules, cfg.engOpts...)
	if cfg.hub != nil {
		forward := func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) }
		for _, typ := range []core.EventType{
			core.EventActivityRecorded,
			core.EventPointsAwarded,
			core.EventBadgeUnlocked,
			core.EventLevelUp,
			core.EventQuestProgressed,
		} {
			bus.Subscribe(typ, forward)
		}
	}
	if cfg.board != nil {
		leaderboard.Follow(cfg.board, bus)
	}
	return svc
}
