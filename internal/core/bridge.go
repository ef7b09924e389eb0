// Package core wires the sync engine behind the message surface the
// host environment (the CLI, or any future extension-host embedder)
// drives: get/set bridge config, trigger a manual sync, get/clear
// debug events, get the session summary. It owns no business logic of
// its own — every decision lives in the component package it
// delegates to.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/bmbridge/bmbridge/internal/apply"
	"github.com/bmbridge/bmbridge/internal/bridgeconfig"
	"github.com/bmbridge/bmbridge/internal/capability"
	"github.com/bmbridge/bmbridge/internal/capture"
	"github.com/bmbridge/bmbridge/internal/debugtimeline"
	"github.com/bmbridge/bmbridge/internal/httpfallback"
	"github.com/bmbridge/bmbridge/internal/index"
	"github.com/bmbridge/bmbridge/internal/metrics"
	"github.com/bmbridge/bmbridge/internal/queue"
	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/internal/wsession"
)

// collectorInterval is the metrics sampling cadence for gauges that
// can't be updated incrementally at their mutation site.
const collectorInterval = 10 * time.Second

// Deps is every host-environment capability the bridge is built
// against. Notifier and Status may be nil; a nil Notifier/Status is
// always a valid no-op.
type Deps struct {
	KV         capability.KVStore
	Bookmarks  capability.BookmarkStore
	Events     capability.BookmarkEvents
	Timers     capability.Timers
	Status     capability.StatusSurface
	Notifier   capability.Notifier
	Filesystem bridgeconfig.Filesystem
	Watcher    capability.FileWatcher

	BootstrapConfigPath string
	Registry            *prometheus.Registry
	Logger              zerolog.Logger
}

// Bridge is the assembled sync core, wired together end to end, plus
// the narrow surface the host drives.
type Bridge struct {
	shared    *state.Shared
	config    *bridgeconfig.Store
	timeline  *debugtimeline.Timeline
	metrics   *metrics.Collectors
	collector *metrics.Collector
	manager   *queue.Manager
	session   *wsession.Session
	capture   *capture.Handlers
	events    capability.BookmarkEvents
	logger    zerolog.Logger
}

// New assembles every component and returns a Bridge ready for Run.
func New(ctx context.Context, deps Deps) (*Bridge, error) {
	store, err := state.NewStore(deps.KV, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("init state store: %w", err)
	}
	st, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if _, ok := index.KeyForID(&st.Index, capability.RootID); !ok {
		index.RecordMapping(&st.Index, capability.RootID, state.RootKey)
	}
	shared := state.NewShared(st, store)

	cfgStore := bridgeconfig.New(deps.KV, deps.Filesystem, deps.Watcher, deps.BootstrapConfigPath, deps.Logger)

	timeline := debugtimeline.New(knownTokens(ctx, cfgStore)...)

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	mcol := metrics.InitMetrics(registry)

	applier := apply.NewApplier(deps.Bookmarks)

	b := &Bridge{
		shared:   shared,
		config:   cfgStore,
		timeline: timeline,
		metrics:  mcol,
		events:   deps.Events,
		logger:   deps.Logger.With().Str("component", "core.bridge").Logger(),
	}

	log := &eventLog{timeline: timeline, metrics: mcol}
	ack := &ackSink{shared: shared, log: log, metrics: mcol}
	session := wsession.New(shared, applier, ack, &profileResolver{config: cfgStore, logger: deps.Logger},
		deps.Timers, &sessionObserver{notifier: deps.Notifier, status: deps.Status, metrics: mcol, timeline: timeline}, deps.Logger)

	sender := &reverseSender{
		ws:     session,
		http:   httpfallback.New(deps.Logger),
		config: cfgStore,
		shared: shared,
		ack:    ack,
	}
	manager := queue.NewManager(shared, sender, deps.Timers, log, deps.Logger)
	ack.manager = manager

	b.session = session
	b.manager = manager
	b.capture = capture.New(shared, deps.Bookmarks, manager, log, deps.Logger)
	b.collector = metrics.NewCollector(mcol, shared)

	if deps.Watcher != nil {
		go func() {
			if err := cfgStore.WatchForReload(ctx); err != nil {
				b.logger.Warn().Err(err).Msg("bridge config hot-reload watcher ended")
			}
		}()
	}

	return b, nil
}

// knownTokens returns the raw token values currently configured, so the
// debug timeline can scrub them from the very first recorded event.
func knownTokens(ctx context.Context, cfgStore *bridgeconfig.Store) []string {
	cfg, err := cfgStore.Get(ctx)
	if err != nil {
		return nil
	}
	tokens := make([]string, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		if p.Token != "" {
			tokens = append(tokens, p.Token)
		}
	}
	return tokens
}

// Run starts the queue's durability alarm and the WebSocket session
// (its reconnect alarm plus a first Ensure), then the capture
// subscription (when a bookmark-event source is configured) and the
// periodic metrics sampler. It blocks until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	b.manager.Start(ctx)
	b.session.Start(ctx)
	b.session.Ensure(ctx, "startup")

	if b.events != nil {
		go func() {
			if err := b.capture.Run(ctx, b.events); err != nil {
				b.logger.Warn().Err(err).Msg("capture subscription ended")
			}
		}()
	}
	go b.collector.Run(ctx, collectorInterval)

	<-ctx.Done()
	b.session.Stop()
	b.manager.Stop()
	return nil
}

// Handle dispatches a single local bookmark-store event, for host
// environments that call into the bridge directly rather than handing
// it a capability.BookmarkEvents subscription.
func (b *Bridge) Handle(ctx context.Context, evt capability.BookmarkEvent) {
	b.capture.Handle(ctx, evt)
}

// TriggerSync forces a manual flush of the reverse queue and an Ensure
// call on the session, for a host-initiated "sync now" request.
func (b *Bridge) TriggerSync(ctx context.Context) error {
	b.session.Ensure(ctx, "manual")
	return b.manager.Flush(ctx)
}

// GetConfig returns the current bridge config.
func (b *Bridge) GetConfig(ctx context.Context) (bridgeconfig.BridgeConfig, error) {
	return b.config.Get(ctx)
}

// SetConfig persists a new bridge config and re-evaluates the active
// connection profile.
func (b *Bridge) SetConfig(ctx context.Context, cfg bridgeconfig.BridgeConfig) error {
	if err := b.config.Set(ctx, cfg); err != nil {
		return err
	}
	b.session.Ensure(ctx, "config_changed")
	return nil
}

// DebugEvents returns the retained debug timeline, oldest first.
func (b *Bridge) DebugEvents() []debugtimeline.Event {
	return b.timeline.Snapshot()
}

// ClearDebugEvents discards the retained debug timeline.
func (b *Bridge) ClearDebugEvents() {
	b.timeline.Clear()
}

// SessionSummary returns the persisted session summary.
func (b *Bridge) SessionSummary() state.Session {
	var sess state.Session
	b.shared.View(func(st *state.State) { sess = st.Session })
	return sess
}

// QueueDepth returns the current number of items awaiting delivery.
func (b *Bridge) QueueDepth() int {
	var n int
	b.shared.View(func(st *state.State) { n = len(st.Queue) })
	return n
}
