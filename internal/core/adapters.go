package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bmbridge/bmbridge/internal/ack"
	"github.com/bmbridge/bmbridge/internal/bridgeconfig"
	"github.com/bmbridge/bmbridge/internal/capability"
	"github.com/bmbridge/bmbridge/internal/debugtimeline"
	"github.com/bmbridge/bmbridge/internal/httpfallback"
	"github.com/bmbridge/bmbridge/internal/metrics"
	"github.com/bmbridge/bmbridge/internal/queue"
	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/internal/wsession"
	"github.com/bmbridge/bmbridge/pkg/wire"
)

// profileResolver adapts the bridge config store's resolution rule into
// wsession.ProfileResolver. A failure to load config, or no resolvable
// profile, yields a disabled profile: the session simply stays closed.
type profileResolver struct {
	config *bridgeconfig.Store
	logger zerolog.Logger
}

func (r *profileResolver) ActiveProfile() wsession.Profile {
	cfg, err := r.config.Get(context.Background())
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to load bridge config for active profile")
		return wsession.Profile{}
	}
	p, ok := bridgeconfig.Resolve(cfg)
	if !ok {
		return wsession.Profile{}
	}
	return wsession.Profile{
		Enabled:  p.Enabled && p.WSURL != "",
		WSURL:    p.WSURL,
		Token:    p.Token,
		ClientID: p.ClientID,
	}
}

// eventLog fans a queue.EventLog/ack.Log disposition out to both the
// debug timeline and the matching metrics counters, so every component
// can keep taking the single narrow logging interface it already
// depends on.
type eventLog struct {
	timeline *debugtimeline.Timeline
	metrics  *metrics.Collectors
}

func (l *eventLog) CaptureSkip(eventID, reason string) {
	l.timeline.CaptureSkip(eventID, reason)
	if reason == "suppressed" {
		l.metrics.SuppressionSkips.Inc()
	}
}

func (l *eventLog) Quarantine(eventID, bookmarkID string, retryCount int, reason string) {
	l.timeline.Quarantine(eventID, bookmarkID, retryCount, reason)
	l.metrics.QueueQuarantines.Inc()
}

func (l *eventLog) Warn(summary string) {
	l.timeline.Warn(summary)
	if strings.Contains(summary, "failed transport") {
		l.metrics.QueueRetries.Inc()
	}
}

// ackSink adapts ack.Reconcile into wsession.AckSink, and doubles as the
// landing point for the HTTP fallback client's batch responses so both
// producers feed the exact same reconciliation path.
type ackSink struct {
	shared  *state.Shared
	log     *eventLog
	metrics *metrics.Collectors
	manager *queue.Manager
}

func (a *ackSink) Reconcile(resp wire.BatchAckResponse) {
	var coalesced []state.QueueItem
	a.shared.View(func(st *state.State) { coalesced = queue.Coalesce(st.Queue) })

	err := a.shared.Mutate(context.Background(), func(st *state.State) error {
		ack.Reconcile(st, resp, a.log)
		return nil
	})
	if err != nil {
		a.log.Warn(fmt.Sprintf("ack reconcile failed to persist: %v", err))
		return
	}

	for _, r := range resp.Results {
		a.metrics.AckStatusTotal.WithLabelValues(r.Status).Inc()
	}
	if a.manager != nil {
		if err := a.manager.SweepAfterAck(context.Background(), coalesced); err != nil {
			a.log.Warn(fmt.Sprintf("ack sweep failed to persist: %v", err))
		}
	}
}

// reverseSender implements queue.Sender, choosing between the live
// WebSocket session and the legacy HTTP fallback: the session is used
// while it's connected or still within its reconnect budget; past
// that, or when no wsUrl is configured at all, the fallback client
// sends the batch directly and feeds its response into the same
// ackSink the session uses.
type reverseSender struct {
	ws     *wsession.Session
	http   *httpfallback.Client
	config *bridgeconfig.Store
	shared *state.Shared
	ack    *ackSink
}

func (s *reverseSender) SendReverseBatch(ctx context.Context, items []state.QueueItem) (map[string]string, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bridge config: %w", err)
	}
	profile, ok := bridgeconfig.Resolve(cfg)
	if !ok {
		return nil, fmt.Errorf("no bridge profile resolved")
	}

	var reconnectAttempt int
	s.shared.View(func(st *state.State) { reconnectAttempt = st.Session.ReconnectAttempt })

	if profile.Enabled && profile.WSURL != "" && reconnectAttempt < httpfallback.MaxReconnectAttemptsBeforeFallback {
		return s.ws.SendReverseBatch(ctx, items)
	}
	if profile.URL == "" {
		return nil, fmt.Errorf("no fallback url configured for profile %s", profile.ClientID)
	}

	resp, err := s.http.SendReverseBatch(ctx, profile.URL, profile.Token, uuid.NewString(), items)
	if err != nil {
		return nil, fmt.Errorf("http fallback send: %w", err)
	}
	s.ack.Reconcile(resp)
	return nil, nil
}

// sessionObserver adapts WS session lifecycle events into metrics, the
// debug timeline, and the optional status/notification surface,
// tolerating nil Notifier/Status.
type sessionObserver struct {
	notifier capability.Notifier
	status   capability.StatusSurface
	metrics  *metrics.Collectors
	timeline *debugtimeline.Timeline

	prevStatus state.SessionStatus
}

func (o *sessionObserver) StatusChanged(status state.SessionStatus, reason string) {
	o.metrics.SetSessionStatus(string(status))
	o.timeline.Info("wsession", "status changed to %s (%s)", status, reason)

	if status == state.StatusReconnecting {
		o.metrics.ReconnectAttempts.Inc()
	}

	if o.status != nil {
		o.status.SetBadgeText(badgeFor(status))
		o.status.SetTitle(fmt.Sprintf("bmbridge: %s", status))
	}

	if o.notifier != nil {
		if status == state.StatusDisconnected && reason != "" {
			_ = o.notifier.Notify("bmbridge disconnected", reason)
		} else if status == state.StatusConnected && o.prevStatus == state.StatusReconnecting {
			_ = o.notifier.Notify("bmbridge reconnected", "sync resumed")
		}
	}
	o.prevStatus = status
}

func (o *sessionObserver) ActionApplied(status wire.AckStatus) {
	o.metrics.ApplyOutcomeTotal.WithLabelValues(string(status)).Inc()
}

func (o *sessionObserver) HeartbeatRTT(d time.Duration) {
	o.metrics.HeartbeatRTTSeconds.Observe(d.Seconds())
}

func badgeFor(status state.SessionStatus) string {
	switch status {
	case state.StatusConnected:
		return ""
	case state.StatusConnecting, state.StatusReconnecting:
		return "..."
	default:
		return "!"
	}
}
