package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Snapshot is the AlertState as read at the start of a tick, along with what
// is needed to write it back conditionally.
type Snapshot struct {
	State AlertState
	// Found is false when no usable record was stored (absent, unparsable or unreadable).
	Found bool

	raw    []byte
	readOK bool
}

// StateRepository reads and writes the singleton AlertState record.
type StateRepository struct {
	store Store
	key   string
}

// NewStateRepository creates a repository for the record stored under key.
func NewStateRepository(store Store, key string) *StateRepository {
	return &StateRepository{store: store, key: key}
}

// Key returns the record key.
func (r *StateRepository) Key() string { return r.key }

// Load reads the current state. Absent and unparsable records yield the
// default state without error; a backend failure yields the default state
// and the error, which callers log and otherwise treat as absent.
func (r *StateRepository) Load(ctx context.Context, now time.Time) (Snapshot, error) {
	data, err := r.store.Get(ctx, r.key)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{State: DefaultState(now), readOK: true}, nil
	}
	if err != nil {
		return Snapshot{State: DefaultState(now)}, fmt.Errorf("read %s: %w", r.key, err)
	}

	state, err := DecodeState(data, now)
	if err != nil {
		slog.Warn("stored alert state is unparsable, starting fresh", "key", r.key, "error", err)
		return Snapshot{State: state, raw: data, readOK: true}, nil
	}
	return Snapshot{State: state, Found: true, raw: data, readOK: true}, nil
}

// Save writes next. When the backend supports conditional writes and prev
// was read successfully, the write only succeeds if the stored value is still
// the one prev observed; otherwise ErrConflict is returned.
func (r *StateRepository) Save(ctx context.Context, prev Snapshot, next AlertState) error {
	data, err := EncodeState(next)
	if err != nil {
		return fmt.Errorf("encode alert state: %w", err)
	}

	if cs, ok := r.store.(ConditionalStore); ok && prev.readOK {
		if err := cs.PutIf(ctx, r.key, prev.raw, data); err != nil {
			return fmt.Errorf("write %s: %w", r.key, err)
		}
		return nil
	}

	if err := r.store.Put(ctx, r.key, data); err != nil {
		return fmt.Errorf("write %s: %w", r.key, err)
	}
	return nil
}
