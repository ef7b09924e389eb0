// Package apply implements the inbound applier: turning a
// validated, deduped `action` envelope into a bookmark-store mutation
// and the ack status/reason/resolvedKey triple that reports the outcome.
package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bmbridge/bmbridge/internal/apperrors"
	"github.com/bmbridge/bmbridge/internal/capability"
	"github.com/bmbridge/bmbridge/internal/index"
	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/pkg/wire"
)

const (
	opBookmarkCreated = "bookmark_created"
	opBookmarkUpdated = "bookmark_updated"
	opBookmarkDeleted = "bookmark_deleted"
	opFolderRenamed   = "folder_renamed"
	opBookmarkMoved   = "bookmark_moved"
	opSnapshot        = "snapshot"
)

// Result is the outcome of applying a single inbound action, shaped for
// direct translation into an `ack` envelope via envelope.StatusToLegacy.
type Result struct {
	Status      wire.AckStatus
	Reason      string
	ResolvedKey string
}

// Applier applies inbound action envelopes against the local bookmark
// store, updating the managed-node index as a side effect of resolving
// targets and of recording newly-created mappings.
type Applier struct {
	store capability.BookmarkStore
}

// NewApplier builds an Applier over the host's bookmark store.
func NewApplier(store capability.BookmarkStore) *Applier {
	return &Applier{store: store}
}

// Apply dispatches env by its op per the action-to-apply table. idx is
// mutated in place for create/resolve bookkeeping; the caller is
// responsible for wrapping the whole batch in the suppression engine's
// apply epoch so local observer events produced here do not echo back.
func (a *Applier) Apply(ctx context.Context, idx *state.Index, env wire.Envelope) Result {
	var payload wire.ActionPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return rejected("invalid_payload")
		}
	}

	switch env.Op {
	case opBookmarkCreated:
		return a.applyCreated(ctx, idx, env.Target, payload)
	case opBookmarkUpdated:
		return a.applyUpdated(ctx, idx, env.Target, payload)
	case opBookmarkDeleted:
		return a.applyDeleted(ctx, idx, env.Target)
	case opFolderRenamed:
		return a.applyFolderRenamed(ctx, idx, env.Target, payload)
	case opBookmarkMoved:
		return a.applyMoved(ctx, idx, env.Target, payload)
	case opSnapshot:
		return a.applySnapshot(ctx, idx, env.Payload)
	default:
		return rejected(apperrors.Reason(apperrors.UnsupportedAction(env.Op)))
	}
}

func (a *Applier) applyCreated(ctx context.Context, idx *state.Index, target string, p wire.ActionPayload) Result {
	if strings.TrimSpace(p.ParentID) == "" {
		return rejected("missing_parentId")
	}
	node, err := a.store.Create(ctx, capability.CreateInput{ParentID: p.ParentID, Title: p.Title, URL: p.URL})
	if err != nil {
		return skippedAmbiguous(err)
	}

	resolvedKey := firstNonEmpty(p.ManagedKey, target, node.ID)
	index.RecordMapping(idx, node.ID, resolvedKey)
	return Result{Status: wire.AckApplied, ResolvedKey: resolvedKey}
}

func (a *Applier) applyUpdated(ctx context.Context, idx *state.Index, target string, p wire.ActionPayload) Result {
	id, ok := resolveTarget(idx, target, p.BookmarkID)
	if !ok {
		return rejected("missing_bookmarkId")
	}

	in := capability.UpdateInput{}
	if p.Title != "" {
		in.Title = &p.Title
	}
	if p.URL != "" {
		in.URL = &p.URL
	}
	if err := a.store.Update(ctx, id, in); err != nil {
		return skippedAmbiguous(err)
	}

	resolvedKey := firstNonEmpty(p.ManagedKey, target)
	if resolvedKey == "" {
		resolvedKey, _ = index.KeyForID(idx, id)
	}
	return Result{Status: wire.AckApplied, ResolvedKey: resolvedKey}
}

func (a *Applier) applyDeleted(ctx context.Context, idx *state.Index, target string) Result {
	id, ok := resolveTarget(idx, target, "")
	if !ok {
		return rejected("missing_bookmarkId")
	}
	if err := a.store.Remove(ctx, id); err != nil {
		return skippedAmbiguous(err)
	}
	return Result{Status: wire.AckApplied}
}

func (a *Applier) applyFolderRenamed(ctx context.Context, idx *state.Index, target string, p wire.ActionPayload) Result {
	id, ok := resolveTarget(idx, target, p.BookmarkID)
	if !ok {
		return rejected("missing_bookmarkId")
	}
	if err := a.store.Update(ctx, id, capability.UpdateInput{Title: &p.Title}); err != nil {
		return skippedAmbiguous(err)
	}
	return Result{Status: wire.AckApplied}
}

func (a *Applier) applyMoved(ctx context.Context, idx *state.Index, target string, p wire.ActionPayload) Result {
	id, ok := resolveTarget(idx, target, p.BookmarkID)
	if !ok || strings.TrimSpace(p.ParentID) == "" {
		return rejected("missing_bookmarkId_or_parentId")
	}
	in := capability.MoveInput{ParentID: p.ParentID, Index: p.MoveIndex}
	if in.Index == nil {
		in.Index = p.Index
	}
	if err := a.store.Move(ctx, id, in); err != nil {
		return skippedAmbiguous(err)
	}
	return Result{Status: wire.AckApplied}
}

// applySnapshot wholesale-re-applies the bridge's desired tree: every
// node in the payload is created if its managedKey is unmapped, or
// updated/moved into place if it already resolves to a local id. It is
// deliberately conservative about deletion — nodes the snapshot omits
// are left alone rather than reconciling offline divergence beyond
// what the bridge explicitly re-sends.
func (a *Applier) applySnapshot(ctx context.Context, idx *state.Index, raw json.RawMessage) Result {
	var snap wire.SnapshotPayload
	if err := json.Unmarshal(raw, &snap); err != nil {
		return rejected("invalid_payload")
	}

	for _, n := range snap.Nodes {
		if strings.TrimSpace(n.ManagedKey) == "" {
			return rejected("missing_managedKey")
		}
	}

	for _, n := range snap.Nodes {
		if err := a.applySnapshotNode(ctx, idx, n); err != nil {
			return skippedAmbiguous(err)
		}
	}
	return Result{Status: wire.AckApplied}
}

func (a *Applier) applySnapshotNode(ctx context.Context, idx *state.Index, n wire.SnapshotNode) error {
	if n.ManagedKey == state.RootKey {
		// The root entry is the host's implicit root folder: never
		// created or mutated, only (re)bound if the mapping was lost.
		if _, known := lookupByKey(idx, state.RootKey); !known {
			index.RecordMapping(idx, capability.RootID, state.RootKey)
		}
		return nil
	}

	if strings.TrimSpace(n.ParentKey) == "" {
		return fmt.Errorf("snapshot node %s: missing parentKey", n.ManagedKey)
	}
	parentID, ok := lookupByKey(idx, n.ParentKey)
	if !ok {
		return fmt.Errorf("snapshot node %s: unresolved parentKey %s", n.ManagedKey, n.ParentKey)
	}

	localID, known := lookupByKey(idx, n.ManagedKey)
	if !known {
		node, err := a.store.Create(ctx, capability.CreateInput{ParentID: parentID, Title: n.Title, URL: n.URL})
		if err != nil {
			return err
		}
		index.RecordMapping(idx, node.ID, n.ManagedKey)
		return nil
	}

	title := n.Title
	url := n.URL
	if err := a.store.Update(ctx, localID, capability.UpdateInput{Title: &title, URL: &url}); err != nil {
		return err
	}
	idxCopy := n.Index
	return a.store.Move(ctx, localID, capability.MoveInput{ParentID: parentID, Index: &idxCopy})
}

func lookupByKey(idx *state.Index, key string) (string, bool) {
	if id, ok := idx.Folders[key]; ok {
		return id, true
	}
	if id, ok := idx.Bookmarks[key]; ok {
		return id, true
	}
	return "", false
}

// resolveTarget prefers the payload's explicit bookmarkId, falling
// back to resolving the envelope's target as a managed key.
func resolveTarget(idx *state.Index, target, bookmarkID string) (string, bool) {
	if strings.TrimSpace(bookmarkID) != "" {
		return bookmarkID, true
	}
	return lookupByKey(idx, target)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func rejected(reason string) Result {
	return Result{Status: wire.AckRejected, Reason: reason}
}

func skippedAmbiguous(err error) Result {
	return Result{Status: wire.AckSkipped, Reason: fmt.Sprintf("skipped_ambiguous: %v", err)}
}
