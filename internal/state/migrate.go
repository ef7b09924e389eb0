package state

import (
	"fmt"
)

// Migrate runs the schema migration policy on
// whatever was read from storage: nil, a non-object JSON value (array,
// string, number, bool), or a partial/legacy object. It always returns
// a fully-defaulted record and never panics or errors.
func Migrate(raw any) *State {
	obj, ok := raw.(map[string]any)
	if !ok {
		return New()
	}

	st := New()

	if v, ok := obj["schemaVersion"].(float64); ok && int(v) > 0 {
		st.SchemaVersion = int(v)
	}

	if idx, ok := obj["index"].(map[string]any); ok {
		migrateIndex(&st.Index, idx)
	}

	if rawQueue, ok := obj["queue"].([]any); ok {
		st.Queue = migrateQueue(rawQueue)
	}

	if ded, ok := obj["dedupe"].(map[string]any); ok {
		migrateDedupe(&st.Dedupe, ded)
	}

	if sup, ok := obj["suppression"].(map[string]any); ok {
		migrateSuppression(&st.Suppression, sup)
	}

	if sess, ok := obj["session"].(map[string]any); ok {
		migrateSession(&st.Session, sess)
	}

	if imp, ok := obj["importInProgress"].(bool); ok {
		st.ImportInProgress = imp
	}

	rebuildIDToKey(st)

	return st
}

func migrateIndex(idx *Index, raw map[string]any) {
	if m, ok := raw["folders"].(map[string]any); ok {
		for k, v := range m {
			if s, ok := v.(string); ok && s != "" {
				idx.Folders[k] = s
			}
		}
	}
	if m, ok := raw["bookmarks"].(map[string]any); ok {
		for k, v := range m {
			if s, ok := v.(string); ok && s != "" {
				idx.Bookmarks[k] = s
			}
		}
	}
	// idToKey is always rebuilt from folders/bookmarks (rebuildIDToKey),
	// since it is a derived inverse map and must never drift from them.
}

// rebuildIDToKey repairs the inverse map from the authoritative forward
// maps: any resulting staleness is repaired during the next apply.
func rebuildIDToKey(st *State) {
	st.Index.IDToKey = make(map[string]string, len(st.Index.Folders)+len(st.Index.Bookmarks))
	for k, id := range st.Index.Folders {
		st.Index.IDToKey[id] = k
	}
	for k, id := range st.Index.Bookmarks {
		st.Index.IDToKey[id] = k
	}
}

func migrateQueue(raw []any) []QueueItem {
	items := make([]QueueItem, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			// Never silently drop queue items: a malformed entry is
			// preserved as a zero-value reconstruction rather than
			// discarded outright.
			items = append(items, QueueItem{})
			continue
		}
		item := QueueItem{}
		if ev, ok := m["event"].(map[string]any); ok {
			item.Event = migrateReverseEvent(ev)
		}
		if rc, ok := m["retryCount"].(float64); ok {
			item.RetryCount = int(rc)
		}
		if ea, ok := m["enqueuedAt"].(string); ok {
			item.EnqueuedAt = ea
		}
		items = append(items, item)
	}
	return items
}

func migrateReverseEvent(m map[string]any) ReverseEvent {
	ev := ReverseEvent{SchemaVersion: "1"}
	getStr := func(key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	if sv := getStr("schemaVersion"); sv != "" {
		ev.SchemaVersion = sv
	}
	ev.BatchID = getStr("batchId")
	ev.EventID = getStr("eventId")
	ev.Type = getStr("type")
	ev.BookmarkID = getStr("bookmarkId")
	ev.ManagedKey = getStr("managedKey")
	ev.Title = getStr("title")
	ev.URL = getStr("url")
	ev.ParentID = getStr("parentId")
	ev.OccurredAt = getStr("occurredAt")
	if mi, ok := m["moveIndex"].(float64); ok {
		v := int(mi)
		ev.MoveIndex = &v
	}
	return ev
}

func migrateDedupe(d *Dedupe, raw map[string]any) {
	// Save writes the ledger as {"buckets": {clientId: {...}}}; a record
	// without that wrapper is read with its clientIds at the top level.
	if wrapped, ok := raw["buckets"].(map[string]any); ok {
		raw = wrapped
	}
	for clientID, v := range raw {
		bucket, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out := make(map[string]int64, len(bucket))
		for key, ts := range bucket {
			if f, ok := ts.(float64); ok {
				out[key] = int64(f)
			}
		}
		d.Buckets[clientID] = out
	}
}

func migrateSuppression(s *Suppression, raw map[string]any) {
	if b, ok := raw["applyEpoch"].(bool); ok {
		s.ApplyEpoch = b
	}
	if v, ok := raw["epochStartedAt"].(string); ok {
		s.EpochStartedAt = v
	}
	// cooldownUntil may be a legacy ISO-8601 string; coerce to epoch ms.
	switch v := raw["cooldownUntil"].(type) {
	case float64:
		s.CooldownUntil = int64(v)
	case string:
		if ms, err := parseLegacyTimestamp(v); err == nil {
			s.CooldownUntil = ms
		}
	}
}

func migrateSession(sess *Session, raw map[string]any) {
	if v, ok := raw["status"].(string); ok {
		switch SessionStatus(v) {
		case StatusDisconnected, StatusConnecting, StatusConnected, StatusReconnecting:
			sess.Status = SessionStatus(v)
		}
	}
	if v, ok := raw["activeClientId"].(string); ok {
		sess.ActiveClientID = v
	}
	if v, ok := raw["wsUrl"].(string); ok {
		sess.WSURL = v
	}
	if v, ok := raw["reconnectAttempt"].(float64); ok && v >= 0 {
		sess.ReconnectAttempt = int(v)
	}
	if v, ok := raw["heartbeatMs"].(float64); ok {
		ms := int(v)
		if ms < 1000 {
			ms = 1000
		}
		if ms > 120000 {
			ms = 120000
		}
		sess.HeartbeatMs = ms
	}
	if v, ok := raw["lastConnectedAt"].(string); ok {
		sess.LastConnectedAt = v
	}
	if v, ok := raw["lastError"].(string); ok {
		sess.LastError = v
	}
	if v, ok := raw["queuedInbound"].(float64); ok && v >= 0 {
		sess.QueuedInbound = int(v)
	}
	if v, ok := raw["queuedOutbound"].(float64); ok && v >= 0 {
		sess.QueuedOutbound = int(v)
	}
}

func parseLegacyTimestamp(v string) (int64, error) {
	t, err := parseISO(v)
	if err != nil {
		return 0, fmt.Errorf("parse legacy timestamp %q: %w", v, err)
	}
	return t.UnixMilli(), nil
}
