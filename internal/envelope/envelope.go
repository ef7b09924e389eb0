// Package envelope implements the wire codec: it turns an
// already-decoded JSON record into a typed wire.Envelope, or rejects it.
// Nothing here throws — rejection is always a returned error wrapping
// apperrors.ErrEnvelopeInvalid.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bmbridge/bmbridge/internal/apperrors"
	"github.com/bmbridge/bmbridge/pkg/wire"
)

// Parse validates raw (a single decoded JSON object) against the shared
// envelope contract plus the type-specific contract for its "type", and
// returns the typed envelope. On any violation it returns
// (wire.Envelope{}, false, err) with err wrapping apperrors.ErrEnvelopeInvalid.
func Parse(raw map[string]any) (wire.Envelope, bool, error) {
	typ, err := requiredString(raw, "type")
	if err != nil {
		return wire.Envelope{}, false, invalid("type", err)
	}
	if _, err := requiredString(raw, "eventId"); err != nil {
		return wire.Envelope{}, false, invalid("eventId", err)
	}
	if _, err := requiredString(raw, "clientId"); err != nil {
		return wire.Envelope{}, false, invalid("clientId", err)
	}
	if _, err := requiredString(raw, "occurredAt"); err != nil {
		return wire.Envelope{}, false, invalid("occurredAt", err)
	}
	if _, err := requiredString(raw, "schemaVersion"); err != nil {
		return wire.Envelope{}, false, invalid("schemaVersion", err)
	}

	if !isKnownType(typ) {
		return wire.Envelope{}, false, invalid("type", fmt.Errorf("unknown envelope type %q", typ))
	}

	if err := validateShape(typ, raw); err != nil {
		return wire.Envelope{}, false, invalid(typ, err)
	}

	env, err := decode(raw)
	if err != nil {
		return wire.Envelope{}, false, invalid(typ, err)
	}

	if err := validateTyped(env); err != nil {
		return wire.Envelope{}, false, invalid(typ, err)
	}

	return env, true, nil
}

func invalid(field string, cause error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrEnvelopeInvalid, field, cause)
}

func isKnownType(typ string) bool {
	switch wire.Type(typ) {
	case wire.TypeHandshake, wire.TypeHandshakeAck, wire.TypeAction, wire.TypeAck,
		wire.TypeError, wire.TypeHeartbeatPing, wire.TypeHeartbeatPong:
		return true
	default:
		return false
	}
}

func decode(raw map[string]any) (wire.Envelope, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return wire.Envelope{}, err
	}
	var env wire.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return wire.Envelope{}, err
	}
	return env, nil
}

// validateTyped applies the per-type contracts that the
// coarse schema pass cannot express precisely (trimmed non-emptiness,
// cross-field enum checks already folded into the envelope by decode).
func validateTyped(env wire.Envelope) error {
	switch env.Type {
	case wire.TypeHandshake:
		if strings.TrimSpace(env.SessionID) == "" {
			return fmt.Errorf("missing sessionId")
		}
		if strings.TrimSpace(env.Token) == "" {
			return fmt.Errorf("missing token")
		}
		for _, c := range env.Capabilities {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("empty capability entry")
			}
		}
	case wire.TypeHandshakeAck:
		if strings.TrimSpace(env.SessionID) == "" {
			return fmt.Errorf("missing sessionId")
		}
		if env.Accepted == nil {
			return fmt.Errorf("missing accepted")
		}
		if env.HeartbeatMs == nil || *env.HeartbeatMs < 1000 || *env.HeartbeatMs > 120000 {
			return fmt.Errorf("heartbeatMs out of range")
		}
	case wire.TypeAction:
		if strings.TrimSpace(env.Op) == "" {
			return fmt.Errorf("missing op")
		}
		if strings.TrimSpace(env.Target) == "" {
			return fmt.Errorf("missing target")
		}
		if len(env.Payload) == 0 {
			return fmt.Errorf("missing payload")
		}
		if strings.TrimSpace(env.IdempotencyKey) == "" {
			return fmt.Errorf("missing idempotencyKey")
		}
	case wire.TypeAck:
		if strings.TrimSpace(env.CorrelationID) == "" {
			return fmt.Errorf("missing correlationId")
		}
		switch env.Status {
		case wire.AckReceived, wire.AckApplied, wire.AckDuplicate, wire.AckSkipped, wire.AckRejected:
		default:
			return fmt.Errorf("invalid status %q", env.Status)
		}
		if env.LegacyStatus != "" {
			switch env.LegacyStatus {
			case wire.LegacyApplied, wire.LegacyDuplicate, wire.LegacySkippedAmbiguous,
				wire.LegacySkippedUnmanaged, wire.LegacyRejectedInvalid:
			default:
				return fmt.Errorf("invalid legacyStatus %q", env.LegacyStatus)
			}
		}
	case wire.TypeError:
		if strings.TrimSpace(env.Code) == "" {
			return fmt.Errorf("missing code")
		}
		if strings.TrimSpace(env.Message) == "" {
			return fmt.Errorf("missing message")
		}
		if env.Retryable == nil {
			return fmt.Errorf("missing retryable")
		}
	case wire.TypeHeartbeatPing:
		// no extra required fields
	case wire.TypeHeartbeatPong:
		if strings.TrimSpace(env.CorrelationID) == "" {
			return fmt.Errorf("missing correlationId")
		}
	}
	return nil
}

func requiredString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%s must not be blank", key)
	}
	return s, nil
}

// StatusToLegacy maps a current-vocabulary ack status to its legacy
// counterpart, per the bidirectional type table.
func StatusToLegacy(status wire.AckStatus) wire.LegacyAckStatus {
	switch status {
	case wire.AckApplied:
		return wire.LegacyApplied
	case wire.AckDuplicate:
		return wire.LegacyDuplicate
	case wire.AckSkipped:
		return wire.LegacySkippedAmbiguous
	default:
		return wire.LegacyRejectedInvalid
	}
}

// LegacyToStatus maps a legacy-vocabulary ack status to its current
// counterpart, per the bidirectional type table.
func LegacyToStatus(legacy wire.LegacyAckStatus) wire.AckStatus {
	switch legacy {
	case wire.LegacyApplied:
		return wire.AckApplied
	case wire.LegacyDuplicate:
		return wire.AckDuplicate
	case wire.LegacySkippedAmbiguous, wire.LegacySkippedUnmanaged:
		return wire.AckSkipped
	default:
		return wire.AckRejected
	}
}
