package state

import "time"

// parseISO parses an ISO-8601 timestamp, accepting both the RFC3339
// form this module writes and a couple of legacy variants it may read
// back during migration.
func parseISO(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errInvalidTimestamp
}

var errInvalidTimestamp = errTimestamp{}

type errTimestamp struct{}

func (errTimestamp) Error() string { return "invalid ISO-8601 timestamp" }
