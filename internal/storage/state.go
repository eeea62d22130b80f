package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

const CurrentStateVersion = 1

const (
	// maxSinceMillis is 9999-12-31T23:59:59.999Z.
	maxSinceMillis      = 253402300799999
	maxConsecutiveFails = math.MaxInt32
)

// AlertState is the confirmed, debounced alert state of the monitored service.
//
// Persisted as JSON:
//
//	{"version":1,"alerting":true,"since":1700000000000,"consecutiveFails":3}
//
// where since is epoch milliseconds.
type AlertState struct {
	Alerting         bool
	Since            time.Time
	ConsecutiveFails int
}

// DefaultState is the state assumed when nothing usable is stored.
func DefaultState(now time.Time) AlertState {
	return AlertState{Since: now.Truncate(time.Millisecond)}
}

type stateRecord struct {
	Version          int   `json:"version"`
	Alerting         bool  `json:"alerting"`
	Since            int64 `json:"since"`
	ConsecutiveFails int   `json:"consecutiveFails"`
}

// EncodeState serializes s in the current schema version.
func EncodeState(s AlertState) ([]byte, error) {
	fails := s.ConsecutiveFails
	if fails < 0 {
		fails = 0
	}
	return json.Marshal(stateRecord{
		Version:          CurrentStateVersion,
		Alerting:         s.Alerting,
		Since:            s.Since.UnixMilli(),
		ConsecutiveFails: fails,
	})
}

// DecodeState parses a stored record. Each known field is read on its own:
// a missing or mistyped field takes its default instead of failing the whole
// record, and unknown fields are ignored. Only a value that is not a JSON
// object is rejected.
func DecodeState(data []byte, now time.Time) (AlertState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return DefaultState(now), fmt.Errorf("parse alert state: %w", err)
	}
	if raw == nil {
		return DefaultState(now), errors.New("parse alert state: null record")
	}

	s := DefaultState(now)

	if v, ok := raw["alerting"]; ok {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			s.Alerting = b
		}
	}
	if v, ok := raw["since"]; ok {
		var ms float64
		// Timestamps past year 9999 are treated as mistyped.
		if json.Unmarshal(v, &ms) == nil && ms > 0 && ms <= maxSinceMillis {
			s.Since = time.UnixMilli(int64(ms))
		}
	}
	if v, ok := raw["consecutiveFails"]; ok {
		var n float64
		if json.Unmarshal(v, &n) == nil && n > 0 {
			s.ConsecutiveFails = int(min(n, maxConsecutiveFails))
		}
	}

	return s, nil
}
