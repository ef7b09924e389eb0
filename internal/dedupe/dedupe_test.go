package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bmbridge/bmbridge/internal/state"
)

func TestRecordAndCheck_FirstAcceptsSecondRejects(t *testing.T) {
	d := state.Dedupe{Buckets: map[string]map[string]int64{}}
	now := time.Now()

	assert.True(t, RecordAndCheck(&d, "outbound", "e1", now))
	assert.False(t, RecordAndCheck(&d, "outbound", "e1", now))
}

func TestRecordAndCheck_SegregatesByClientID(t *testing.T) {
	d := state.Dedupe{Buckets: map[string]map[string]int64{}}
	now := time.Now()

	assert.True(t, RecordAndCheck(&d, "peer-a", "k1", now))
	assert.True(t, RecordAndCheck(&d, "peer-b", "k1", now))
}

func TestRecordAndCheck_EvictsAfterTTL(t *testing.T) {
	d := state.Dedupe{Buckets: map[string]map[string]int64{}}
	t0 := time.Now()

	assert.True(t, RecordAndCheck(&d, "outbound", "e1", t0))
	later := t0.Add(TTL + time.Second)
	assert.True(t, RecordAndCheck(&d, "outbound", "e1", later))
}
