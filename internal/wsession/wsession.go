// Package wsession implements the WebSocket session manager (component
// I): connect/handshake/heartbeat/reconnect-with-backoff against the
// note-bridge, plus the in-process outbound/inbound queues that carry
// traffic between the transport and the durable core.
package wsession

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bmbridge/bmbridge/internal/apperrors"
	"github.com/bmbridge/bmbridge/internal/apply"
	"github.com/bmbridge/bmbridge/internal/capability"
	"github.com/bmbridge/bmbridge/internal/dedupe"
	"github.com/bmbridge/bmbridge/internal/envelope"
	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/internal/suppress"
	"github.com/bmbridge/bmbridge/pkg/wire"
)

const (
	defaultHeartbeatCapMs = 25000
	maxBackoff            = 30 * time.Second
	baseBackoff           = 500 * time.Millisecond
	maxBackoffShift       = 6
)

// ReconnectAlarmPeriod is the durability alarm period for the session:
// Ensure is re-invoked on this cadence regardless of the in-process
// backoff timer, so reconnection continues to make progress after a
// process restart drops that timer — the same belt-and-braces pattern
// the reverse queue's durability alarm uses.
const ReconnectAlarmPeriod = 5 * time.Second

// Profile is the resolved active bridge profile a session connects
// with, as produced by the bridge config store.
type Profile struct {
	Enabled  bool
	WSURL    string
	Token    string
	ClientID string
}

// ProfileResolver resolves the currently active connection profile.
type ProfileResolver interface {
	ActiveProfile() Profile
}

// AckSink reconciles a batch ack response against the reverse queue and
// index.
type AckSink interface {
	Reconcile(resp wire.BatchAckResponse)
}

// Observer receives session lifecycle and traffic events for the debug
// timeline and metrics. Every method must tolerate a nil Observer
// gracefully by never being called on one.
type Observer interface {
	StatusChanged(status state.SessionStatus, reason string)
	ActionApplied(status wire.AckStatus)
	HeartbeatRTT(d time.Duration)
}

// Session is the WebSocket session manager. It owns exactly one
// *websocket.Conn at a time, guarded by mu, and mutates the shared
// durable state record through the ordinary Shared.View/Mutate
// discipline used by every other component.
type Session struct {
	shared   *state.Shared
	applier  *apply.Applier
	ackSink  AckSink
	profiles ProfileResolver
	dialer   *websocket.Dialer
	timers   capability.Timers
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time

	mu              sync.Mutex
	conn            *websocket.Conn
	connecting      bool
	outbound        []wire.Envelope
	lastPingEventID string
	cancelHeartbeat capability.CancelFunc
	cancelReconnect capability.CancelFunc
	cancelAlarm     capability.CancelFunc
	heartbeatSentAt time.Time
}

// New builds a Session. observer may be nil.
func New(shared *state.Shared, applier *apply.Applier, ackSink AckSink, profiles ProfileResolver, timers capability.Timers, observer Observer, logger zerolog.Logger) *Session {
	return &Session{
		shared:   shared,
		applier:  applier,
		ackSink:  ackSink,
		profiles: profiles,
		dialer:   &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		timers:   timers,
		logger:   logger.With().Str("component", "wsession").Logger(),
		observer: observer,
		now:      time.Now,
	}
}

// Start arms the reconnect durability alarm. Call once after
// construction, alongside Ensure's initial startup call.
func (s *Session) Start(ctx context.Context) {
	if s.timers == nil {
		return
	}
	s.mu.Lock()
	s.cancelAlarm = s.timers.Repeating(ReconnectAlarmPeriod, func() {
		s.Ensure(ctx, "reconnect_alarm")
	})
	s.mu.Unlock()
}

// Stop cancels the reconnect alarm and any pending backoff timer.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelAlarm != nil {
		s.cancelAlarm()
		s.cancelAlarm = nil
	}
	if s.cancelReconnect != nil {
		s.cancelReconnect()
		s.cancelReconnect = nil
	}
}

// Ensure opens the connection if it is not already open or opening,
// honoring the active profile's enabled flag. reason is logged only.
func (s *Session) Ensure(ctx context.Context, reason string) {
	profile := s.profiles.ActiveProfile()
	if !profile.Enabled {
		s.shared.Mutate(ctx, func(st *state.State) error { //nolint:errcheck
			st.Session.Status = state.StatusDisconnected
			st.Session.LastError = string(apperrors.KindProfileDisabled)
			return nil
		})
		s.notifyStatus(state.StatusDisconnected, "active_profile_disabled")
		return
	}

	s.mu.Lock()
	if s.conn != nil || s.connecting {
		s.mu.Unlock()
		return
	}
	s.connecting = true
	if s.cancelReconnect != nil {
		s.cancelReconnect()
		s.cancelReconnect = nil
	}
	s.mu.Unlock()

	sessionID := uuid.NewString()

	var reconnectAttempt int
	s.shared.View(func(st *state.State) { reconnectAttempt = st.Session.ReconnectAttempt })
	status := state.StatusConnecting
	if reconnectAttempt > 0 {
		status = state.StatusReconnecting
	}
	s.shared.Mutate(ctx, func(st *state.State) error { //nolint:errcheck
		st.Session.Status = status
		st.Session.ActiveClientID = profile.ClientID
		st.Session.WSURL = profile.WSURL
		return nil
	})
	s.notifyStatus(status, reason)

	headers := http.Header{}
	conn, _, err := s.dialer.DialContext(ctx, profile.WSURL, headers)

	s.mu.Lock()
	s.connecting = false
	s.mu.Unlock()

	if err != nil {
		s.markDisconnected(ctx, "constructor_error", err.Error(), true)
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.handleOpen(ctx, sessionID, profile)
	go s.readLoop(ctx, conn)
}

func (s *Session) handleOpen(ctx context.Context, sessionID string, profile Profile) {
	now := s.now()
	s.shared.Mutate(ctx, func(st *state.State) error { //nolint:errcheck
		st.Session.Status = state.StatusConnected
		st.Session.ReconnectAttempt = 0
		st.Session.LastConnectedAt = state.NowISO(now)
		return nil
	})
	s.notifyStatus(state.StatusConnected, "open")

	s.Send(ctx, wire.Envelope{
		Type:          wire.TypeHandshake,
		EventID:       uuid.NewString(),
		ClientID:      profile.ClientID,
		OccurredAt:    state.NowISO(now),
		SchemaVersion: "1",
		SessionID:     sessionID,
		Token:         profile.Token,
		Capabilities:  []string{"action", "ack", "heartbeat"},
	})

	s.armHeartbeat(ctx, profile, defaultHeartbeatCapMs)
	s.drainOutbound(ctx)
}

func (s *Session) armHeartbeat(ctx context.Context, profile Profile, heartbeatMs int) {
	s.mu.Lock()
	if s.cancelHeartbeat != nil {
		s.cancelHeartbeat()
	}
	s.mu.Unlock()
	if s.timers == nil {
		return
	}

	interval := time.Duration(heartbeatMs) * time.Millisecond
	if interval > defaultHeartbeatCapMs*time.Millisecond {
		interval = defaultHeartbeatCapMs * time.Millisecond
	}

	cancel := s.timers.Repeating(interval, func() {
		if !s.isOpen() {
			return
		}
		pingID := uuid.NewString()
		s.mu.Lock()
		s.lastPingEventID = pingID
		s.heartbeatSentAt = s.now()
		s.mu.Unlock()
		s.Send(ctx, wire.Envelope{
			Type:          wire.TypeHeartbeatPing,
			EventID:       pingID,
			ClientID:      profile.ClientID,
			OccurredAt:    state.NowISO(s.now()),
			SchemaVersion: "1",
		})
	})
	s.mu.Lock()
	s.cancelHeartbeat = cancel
	s.mu.Unlock()
}

func (s *Session) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send serializes and writes env if the socket is open; otherwise (or
// on a write failure) it is pushed onto the in-memory outbound queue.
func (s *Session) Send(ctx context.Context, env wire.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(env.Type)).Msg("failed to marshal outbound envelope")
		return
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		if err := conn.WriteMessage(websocket.TextMessage, b); err == nil {
			return
		}
	}

	s.mu.Lock()
	s.outbound = append(s.outbound, env)
	s.mu.Unlock()
	s.shared.Mutate(ctx, func(st *state.State) error { //nolint:errcheck
		st.Session.QueuedOutbound++
		return nil
	})
}

func (s *Session) drainOutbound(ctx context.Context) {
	s.mu.Lock()
	pending := s.outbound
	s.outbound = nil
	s.mu.Unlock()

	for _, env := range pending {
		s.Send(ctx, env)
	}
	if len(pending) > 0 {
		s.shared.Mutate(ctx, func(st *state.State) error { //nolint:errcheck
			st.Session.QueuedOutbound = len(s.outbound)
			return nil
		})
	}
}

// SendReverseBatch implements queue.Sender: it sends one `action`
// envelope per coalesced item over the WebSocket, per the
// flushReverseOverWebSocket. It never mutates the queue itself —
// drainage happens exclusively through ack reconciliation.
func (s *Session) SendReverseBatch(ctx context.Context, items []state.QueueItem) (map[string]string, error) {
	var clientID string
	s.shared.View(func(st *state.State) { clientID = st.Session.ActiveClientID })

	for _, it := range items {
		target := it.Event.ManagedKey
		if target == "" {
			target = it.Event.BookmarkID
		}
		payload, err := json.Marshal(wire.ActionPayload{
			BookmarkID: it.Event.BookmarkID,
			ManagedKey: it.Event.ManagedKey,
			ParentID:   it.Event.ParentID,
			MoveIndex:  it.Event.MoveIndex,
			Title:      it.Event.Title,
			URL:        it.Event.URL,
		})
		if err != nil {
			continue
		}
		s.Send(ctx, wire.Envelope{
			Type:           wire.TypeAction,
			EventID:        it.Event.EventID,
			ClientID:       clientID,
			OccurredAt:     it.Event.OccurredAt,
			SchemaVersion:  it.Event.SchemaVersion,
			IdempotencyKey: it.Event.BatchID,
			Op:             it.Event.Type,
			Target:         target,
			Payload:        payload,
		})
	}
	return nil, nil
}

// handleMessage parses and dispatches one inbound wire frame, per the
// on-message dispatch table.
func (s *Session) handleMessage(ctx context.Context, raw []byte) {
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.logger.Warn().Err(err).Msg("inbound frame is not valid JSON")
		return
	}
	env, ok, err := envelope.Parse(decoded)
	if !ok {
		s.logger.Warn().Err(err).Msg("inbound frame failed envelope validation")
		return
	}

	switch env.Type {
	case wire.TypeHandshakeAck:
		hb := defaultHeartbeatCapMs
		if env.HeartbeatMs != nil {
			hb = clampInt(*env.HeartbeatMs, 1000, 120000)
		}
		s.shared.Mutate(ctx, func(st *state.State) error { //nolint:errcheck
			st.Session.HeartbeatMs = hb
			return nil
		})
		s.armHeartbeat(ctx, s.profiles.ActiveProfile(), hb)

	case wire.TypeHeartbeatPing:
		s.Send(ctx, wire.Envelope{
			Type:          wire.TypeHeartbeatPong,
			EventID:       uuid.NewString(),
			ClientID:      env.ClientID,
			OccurredAt:    state.NowISO(s.now()),
			SchemaVersion: "1",
			CorrelationID: env.EventID,
		})

	case wire.TypeHeartbeatPong:
		s.mu.Lock()
		sentAt := s.heartbeatSentAt
		matches := env.CorrelationID == s.lastPingEventID
		s.mu.Unlock()
		if matches && !sentAt.IsZero() && s.observer != nil {
			s.observer.HeartbeatRTT(s.now().Sub(sentAt))
		}

	case wire.TypeAck:
		batchID := firstNonEmpty(env.IdempotencyKey, env.CorrelationID, "ws")
		resp := wire.BatchAckResponse{
			BatchID: batchID,
			Results: []wire.AckResult{{
				EventID:      env.CorrelationID,
				Status:       string(env.Status),
				Reason:       env.Reason,
				ResolvedKey:  env.ResolvedKey,
				ResolvedPath: env.ResolvedPath,
			}},
		}
		if s.ackSink != nil {
			s.ackSink.Reconcile(resp)
		}

	case wire.TypeError:
		s.logger.Warn().Str("code", env.Code).Str("message", env.Message).Msg("bridge reported error")

	case wire.TypeAction:
		s.handleInboundAction(ctx, env)
	}
}

func (s *Session) handleInboundAction(ctx context.Context, env wire.Envelope) {
	key := firstNonEmpty(env.IdempotencyKey, env.EventID)

	var accepted bool
	s.shared.Mutate(ctx, func(st *state.State) error { //nolint:errcheck
		accepted = dedupe.RecordAndCheck(&st.Dedupe, env.ClientID, key, s.now())
		return nil
	})
	if !accepted {
		return
	}

	var result apply.Result
	s.shared.Mutate(ctx, func(st *state.State) error {
		return suppress.RunApplyCycle(&st.Suppression, s.now, func() error {
			result = s.applier.Apply(ctx, &st.Index, env)
			return nil
		})
	})

	if s.observer != nil {
		s.observer.ActionApplied(result.Status)
	}

	s.Send(ctx, wire.Envelope{
		Type:          wire.TypeAck,
		EventID:       uuid.NewString(),
		ClientID:      env.ClientID,
		OccurredAt:    state.NowISO(s.now()),
		SchemaVersion: "1",
		CorrelationID: env.EventID,
		Status:        result.Status,
		Reason:        result.Reason,
		ResolvedKey:   result.ResolvedKey,
		LegacyStatus:  envelope.StatusToLegacy(result.Status),
	})
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseNoStatusReceived
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			s.onClose(ctx, code, err.Error())
			return
		}
		s.handleMessage(ctx, data)
	}
}

func (s *Session) onClose(ctx context.Context, code int, reason string) {
	s.mu.Lock()
	if s.cancelHeartbeat != nil {
		s.cancelHeartbeat()
		s.cancelHeartbeat = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	s.markDisconnected(ctx, fmt.Sprintf("close_%d", code), reason, true)
}

// markDisconnected records the disconnection and, if reschedule is set,
// arms the reconnect backoff.
func (s *Session) markDisconnected(ctx context.Context, statusReason, detail string, reschedule bool) {
	var attempt int
	s.shared.Mutate(ctx, func(st *state.State) error { //nolint:errcheck
		st.Session.ReconnectAttempt++
		st.Session.LastError = statusReason + ":" + detail
		st.Session.Status = state.StatusDisconnected
		attempt = st.Session.ReconnectAttempt
		return nil
	})
	s.notifyStatus(state.StatusDisconnected, statusReason)

	if !reschedule || s.timers == nil {
		return
	}

	backoff := backoffFor(attempt)
	cancel := s.timers.After(backoff, func() {
		s.Ensure(ctx, "reconnect_backoff")
	})
	s.mu.Lock()
	s.cancelReconnect = cancel
	s.mu.Unlock()
}

// backoffFor computes min(30s, 500ms * 2^min(attempt,6)).
func backoffFor(attempt int) time.Duration {
	shift := attempt
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	d := time.Duration(float64(baseBackoff) * math.Pow(2, float64(shift)))
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (s *Session) notifyStatus(status state.SessionStatus, reason string) {
	if s.observer != nil {
		s.observer.StatusChanged(status, reason)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
