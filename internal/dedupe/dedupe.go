// Package dedupe implements the per-direction, per-client TTL idempotency
// ledger.
package dedupe

import (
	"time"

	"github.com/bmbridge/bmbridge/internal/state"
)

// TTL is the window after which a recorded key is eligible for eviction.
const TTL = 5 * time.Minute

// OutboundClientID is the synthetic bucket used to dedupe locally-
// generated eventIds before enqueue.
const OutboundClientID = "outbound"

// RecordAndCheck evicts stale entries in clientID's bucket, then checks
// whether key is still present. If present, it returns false (a
// duplicate) without refreshing the timestamp. Otherwise it records now
// under key and returns true.
func RecordAndCheck(d *state.Dedupe, clientID, key string, now time.Time) bool {
	bucket, ok := d.Buckets[clientID]
	if !ok {
		bucket = map[string]int64{}
		d.Buckets[clientID] = bucket
	}

	evict(bucket, now)

	if _, dup := bucket[key]; dup {
		return false
	}
	bucket[key] = now.UnixMilli()
	return true
}

func evict(bucket map[string]int64, now time.Time) {
	cutoff := now.Add(-TTL).UnixMilli()
	for k, ts := range bucket {
		if ts < cutoff {
			delete(bucket, k)
		}
	}
}
