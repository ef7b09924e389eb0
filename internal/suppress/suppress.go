// Package suppress implements the echo-suppression engine:
// an apply-epoch + cooldown-window gate on outbound capture.
package suppress

import (
	"time"

	"github.com/bmbridge/bmbridge/internal/state"
)

// CooldownMs is the post-apply tail during which newly-arriving local
// mutations are assumed to be echoes of the apply just performed.
const CooldownMs = 3000

// IsSuppressed reports whether outbound capture should be dropped right
// now: either the apply epoch is active, or the cooldown window has not
// yet elapsed.
func IsSuppressed(s *state.Suppression, now time.Time) bool {
	if s.ApplyEpoch {
		return true
	}
	return s.CooldownUntil > now.UnixMilli()
}

// SetApplyEpoch flips the apply-epoch flag. Entering the epoch stamps
// epochStartedAt; leaving it clears epochStartedAt and cooldownUntil —
// the caller is expected to call SetCooldown immediately after to open
// the cooldown tail: on exit, sets cooldown(3000).
func SetApplyEpoch(s *state.Suppression, active bool, now time.Time) {
	s.ApplyEpoch = active
	if active {
		s.EpochStartedAt = state.NowISO(now)
		return
	}
	s.EpochStartedAt = ""
	s.CooldownUntil = 0
}

// SetCooldown opens a cooldown window of ms milliseconds from now.
func SetCooldown(s *state.Suppression, ms int, now time.Time) {
	s.CooldownUntil = now.Add(time.Duration(ms) * time.Millisecond).UnixMilli()
}

// RunApplyCycle wraps fn with the apply-epoch-then-cooldown protocol
// required around every inbound apply cycle: applyEpoch=true
// before fn runs, then applyEpoch=false and a 3s cooldown on exit,
// success or failure.
func RunApplyCycle(s *state.Suppression, now func() time.Time, fn func() error) error {
	SetApplyEpoch(s, true, now())
	err := fn()
	SetApplyEpoch(s, false, now())
	SetCooldown(s, CooldownMs, now())
	return err
}
