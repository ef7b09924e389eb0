package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bmbridge/bmbridge/internal/apperrors"
	"github.com/bmbridge/bmbridge/internal/capability"
	"github.com/bmbridge/bmbridge/internal/state"
)

// DebounceDelay is the deferred-flush delay after an enqueue.
const DebounceDelay = 2 * time.Second

// AlarmPeriod is the durability alarm period: flush runs on this cadence
// regardless of in-process timers, so progress continues after a
// process restart drops the debounce timer.
const AlarmPeriod = 3 * time.Second

// Sender transmits the coalesced reverse-sync batch. A non-nil err
// fails every item in items; a non-nil but empty failed map (with nil
// err) means every item succeeded. A populated failed map reports a
// per-event reason for the items that specifically failed.
type Sender interface {
	SendReverseBatch(ctx context.Context, items []state.QueueItem) (failed map[string]string, err error)
}

// Manager drives the reverse queue's flush lifecycle: debounce on
// enqueue, a durability alarm, and a single in-flight flush guard,
// built on the host's Timers capability and an atomic in-flight flag.
type Manager struct {
	shared   *state.Shared
	sender   Sender
	timers   capability.Timers
	log      EventLog
	logger   zerolog.Logger
	nowFn    func() time.Time
	inFlight atomic.Bool

	cancelDebounce capability.CancelFunc
	cancelAlarm    capability.CancelFunc
}

// NewManager builds a Manager whose clock is time.Now.
func NewManager(shared *state.Shared, sender Sender, timers capability.Timers, log EventLog, logger zerolog.Logger) *Manager {
	return &Manager{
		shared: shared,
		sender: sender,
		timers: timers,
		log:    log,
		logger: logger.With().Str("component", "queue.manager").Logger(),
		nowFn:  time.Now,
	}
}

// Start arms the durability alarm. Call once after construction.
func (m *Manager) Start(ctx context.Context) {
	if m.timers == nil {
		return
	}
	m.cancelAlarm = m.timers.Repeating(AlarmPeriod, func() {
		if err := m.Flush(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("alarm-triggered flush failed")
		}
	})
}

// Stop cancels the alarm and any pending debounce timer.
func (m *Manager) Stop() {
	if m.cancelAlarm != nil {
		m.cancelAlarm()
		m.cancelAlarm = nil
	}
	if m.cancelDebounce != nil {
		m.cancelDebounce()
		m.cancelDebounce = nil
	}
}

// Enqueue appends evt under the shared state lock, then arms (or
// re-arms) the debounce timer for a deferred flush.
func (m *Manager) Enqueue(ctx context.Context, evt state.ReverseEvent) error {
	err := m.shared.Mutate(ctx, func(st *state.State) error {
		Enqueue(st, evt, m.nowFn(), m.log)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue reverse event: %w", err)
	}

	if m.timers != nil {
		if m.cancelDebounce != nil {
			m.cancelDebounce()
		}
		m.cancelDebounce = m.timers.After(DebounceDelay, func() {
			if err := m.Flush(ctx); err != nil {
				m.logger.Warn().Err(err).Msg("debounced flush failed")
			}
		})
	}
	return nil
}

// Flush runs the coalesce-send-mark-failures cycle once; the
// superseded-duplicates sweep is done separately by SweepAfterAck. It is
// a no-op if another flush is already in flight, or if the coalesced
// view is empty.
func (m *Manager) Flush(ctx context.Context) error {
	if !m.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer m.inFlight.Store(false)

	var coalesced []state.QueueItem
	m.shared.View(func(st *state.State) {
		coalesced = Coalesce(st.Queue)
	})
	if len(coalesced) == 0 {
		return nil
	}

	failed, sendErr := m.sender.SendReverseBatch(ctx, coalesced)
	if sendErr != nil {
		reason := sendErr.Error()
		failed = make(map[string]string, len(coalesced))
		for _, it := range coalesced {
			failed[it.Event.EventID] = reason
		}
	}

	return m.shared.Mutate(ctx, func(st *state.State) error {
		if len(failed) > 0 {
			st.Queue = MarkFailures(st.Queue, failed, m.log)
			if m.log != nil {
				m.log.Warn(fmt.Sprintf("%v: %d of %d reverse-sync events failed transport", apperrors.ErrTransportFailure, len(failed), len(coalesced)))
			}
		}
		return nil
	})
}

// SweepAfterAck removes queue items superseded by a just-acked
// coalesced batch. Call this immediately after reconciling an ack
// batch that resulted from a flush of coalesced.
func (m *Manager) SweepAfterAck(ctx context.Context, coalesced []state.QueueItem) error {
	return m.shared.Mutate(ctx, func(st *state.State) error {
		st.Queue = SweepSuperseded(st.Queue, coalesced)
		return nil
	})
}
