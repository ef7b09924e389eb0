// Package capture implements the capture handlers: one
// handler per local bookmark-store event kind, gating outbound capture
// through the suppression engine and the import-in-progress flag before
// enqueuing a ReverseEvent onto the reverse queue.
package capture

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bmbridge/bmbridge/internal/capability"
	"github.com/bmbridge/bmbridge/internal/index"
	"github.com/bmbridge/bmbridge/internal/queue"
	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/internal/suppress"
)

const schemaVersion = "1"

const (
	typeBookmarkCreated = "bookmark_created"
	typeBookmarkUpdated = "bookmark_updated"
	typeBookmarkDeleted = "bookmark_deleted"
	typeFolderRenamed   = "folder_renamed"
)

// Handlers wires the host's bookmark-event stream into the reverse
// queue, one method per event kind.
type Handlers struct {
	shared  *state.Shared
	stores  capability.BookmarkStore
	manager *queue.Manager
	log     queue.EventLog
	logger  zerolog.Logger
	now     func() time.Time
}

// New builds Handlers over the shared state record, the host bookmark
// store (needed only to compute a moved link's sibling position), and
// the reverse queue manager that owns debounced flush.
func New(shared *state.Shared, stores capability.BookmarkStore, manager *queue.Manager, log queue.EventLog, logger zerolog.Logger) *Handlers {
	return &Handlers{
		shared:  shared,
		stores:  stores,
		manager: manager,
		log:     log,
		logger:  logger.With().Str("component", "capture").Logger(),
		now:     time.Now,
	}
}

// Run subscribes to the host's bookmark event stream and dispatches
// every event to Handle until ctx is done.
func (h *Handlers) Run(ctx context.Context, events capability.BookmarkEvents) error {
	ch, err := events.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			h.Handle(ctx, evt)
		}
	}
}

// Handle dispatches a single captured event by kind.
func (h *Handlers) Handle(ctx context.Context, evt capability.BookmarkEvent) {
	switch evt.Kind {
	case capability.EventImportBegan:
		h.setImportInProgress(ctx, true)
		return
	case capability.EventImportEnded:
		h.setImportInProgress(ctx, false)
		return
	}

	// moveIndex for a same-parent move requires a bookmark-store read;
	// do it before taking the state lock, per the I/O-outside-the-lock
	// discipline the rest of the core follows.
	var precomputedMoveIndex *int
	if evt.Kind == capability.EventMoved && evt.OldParentID == evt.Node.ParentID {
		if idx, err := h.linkOnlyPosition(ctx, evt.Node.ParentID, evt.ID); err == nil {
			precomputedMoveIndex = &idx
		}
	}

	var skipReason string
	var built *state.ReverseEvent

	err := h.shared.Mutate(ctx, func(st *state.State) error {
		if st.ImportInProgress {
			skipReason = "import_in_progress"
			return nil
		}
		if suppress.IsSuppressed(&st.Suppression, h.now()) {
			skipReason = "suppressed"
			return nil
		}

		switch evt.Kind {
		case capability.EventCreated:
			built = h.buildCreated(st, evt)
		case capability.EventChanged:
			built = h.buildChanged(st, evt)
		case capability.EventRemoved:
			built = h.buildRemoved(st, evt)
		case capability.EventMoved:
			built = h.buildMoved(st, evt, precomputedMoveIndex)
		}
		return nil
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("kind", string(evt.Kind)).Msg("failed to persist captured event")
		return
	}

	if skipReason != "" {
		if h.log != nil {
			h.log.CaptureSkip(evt.ID, skipReason)
		}
		return
	}
	if built == nil {
		return
	}

	if h.manager != nil {
		if err := h.manager.Enqueue(ctx, *built); err != nil {
			h.logger.Warn().Err(err).Str("kind", string(evt.Kind)).Msg("failed to enqueue captured event")
		}
		return
	}
	h.shared.Mutate(ctx, func(st *state.State) error { //nolint:errcheck
		queue.Enqueue(st, *built, h.now(), h.log)
		return nil
	})
}

func (h *Handlers) setImportInProgress(ctx context.Context, active bool) {
	h.shared.Mutate(ctx, func(st *state.State) error { //nolint:errcheck
		st.ImportInProgress = active
		return nil
	})
}

func (h *Handlers) buildCreated(st *state.State, evt capability.BookmarkEvent) *state.ReverseEvent {
	parent := index.ParentInfo{}
	if key, ok := index.FolderKeyForID(&st.Index, evt.Node.ParentID); ok {
		parent.Key = key
	} else if parentNode, err := h.stores.Get(context.Background(), evt.Node.ParentID); err == nil {
		parent.Title = parentNode.Title
	}

	key := index.DeriveCreateKey(&st.Index, evt.ID, parent, evt.Node.Index)
	index.RecordMapping(&st.Index, evt.ID, key)

	return &state.ReverseEvent{
		SchemaVersion: schemaVersion,
		BatchID:       uuid.NewString(),
		EventID:       uuid.NewString(),
		Type:          typeBookmarkCreated,
		BookmarkID:    evt.ID,
		ManagedKey:    key,
		Title:         evt.Node.Title,
		URL:           evt.Node.URL,
		ParentID:      evt.Node.ParentID,
		OccurredAt:    state.NowISO(h.now()),
	}
}

func (h *Handlers) buildChanged(st *state.State, evt capability.BookmarkEvent) *state.ReverseEvent {
	key, ok := index.KeyForID(&st.Index, evt.ID)
	if !ok {
		return nil
	}

	evtType := typeBookmarkUpdated
	url := evt.Node.URL
	if index.IsManagedFolder(&st.Index, evt.ID) {
		evtType = typeFolderRenamed
		url = ""
	}

	return &state.ReverseEvent{
		SchemaVersion: schemaVersion,
		BatchID:       uuid.NewString(),
		EventID:       uuid.NewString(),
		Type:          evtType,
		BookmarkID:    evt.ID,
		ManagedKey:    key,
		Title:         evt.Node.Title,
		URL:           url,
		OccurredAt:    state.NowISO(h.now()),
	}
}

func (h *Handlers) buildRemoved(st *state.State, evt capability.BookmarkEvent) *state.ReverseEvent {
	if index.IsManagedFolder(&st.Index, evt.ID) {
		return nil // folder removal is ignored in V1
	}
	key, ok := index.KeyForID(&st.Index, evt.ID)
	if !ok {
		return nil
	}

	return &state.ReverseEvent{
		SchemaVersion: schemaVersion,
		BatchID:       uuid.NewString(),
		EventID:       uuid.NewString(),
		Type:          typeBookmarkDeleted,
		BookmarkID:    evt.ID,
		ManagedKey:    key,
		OccurredAt:    state.NowISO(h.now()),
	}
}

func (h *Handlers) buildMoved(st *state.State, evt capability.BookmarkEvent, moveIndex *int) *state.ReverseEvent {
	key, ok := index.KeyForID(&st.Index, evt.ID)
	if !ok {
		return nil
	}

	return &state.ReverseEvent{
		SchemaVersion: schemaVersion,
		BatchID:       uuid.NewString(),
		EventID:       uuid.NewString(),
		Type:          typeBookmarkUpdated,
		BookmarkID:    evt.ID,
		ManagedKey:    key,
		Title:         evt.Node.Title,
		URL:           evt.Node.URL,
		ParentID:      evt.Node.ParentID,
		MoveIndex:     moveIndex,
		OccurredAt:    state.NowISO(h.now()),
	}
}

// linkOnlyPosition returns id's position among parentID's children that
// are links (non-empty URL) — folders don't count toward moveIndex.
func (h *Handlers) linkOnlyPosition(ctx context.Context, parentID, id string) (int, error) {
	children, err := h.stores.GetChildren(ctx, parentID)
	if err != nil {
		return 0, err
	}
	pos := 0
	for _, c := range children {
		if c.URL == "" {
			continue
		}
		if c.ID == id {
			return pos, nil
		}
		pos++
	}
	return 0, nil
}
