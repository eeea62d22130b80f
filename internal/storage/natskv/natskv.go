package natskv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/makt28/tgwatch/internal/storage"
)

// Config holds the NATS connection and bucket settings.
type Config struct {
	URL    string
	Bucket string
}

// Store keeps records in a JetStream key-value bucket. Conditional writes
// map onto the bucket's revision checks.
type Store struct {
	nc     *nats.Conn
	bucket jetstream.KeyValue
}

// New connects and opens the bucket, creating it when missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("tgwatch"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	bucket, err := openBucket(ctx, js, cfg.Bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Store{nc: nc, bucket: bucket}, nil
}

// NewFromBucket wraps an already opened bucket. Close is then a no-op.
func NewFromBucket(bucket jetstream.KeyValue) *Store {
	return &Store{bucket: bucket}
}

func openBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bucket, err := js.KeyValue(ctx, name)
	if err == nil {
		return bucket, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("open kv bucket %s: %w", name, err)
	}

	bucket, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "tgwatch alert state",
		History:     1,
	})
	if err != nil {
		// Another instance may have created it concurrently.
		if existing, getErr := js.KeyValue(ctx, name); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create kv bucket %s: %w", name, err)
	}
	return bucket, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.bucket.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.bucket.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// PutIf compares against the current entry and then writes with Create or
// Update pinned to the entry's revision, so a write racing in between is
// rejected by the server.
func (s *Store) PutIf(ctx context.Context, key string, prev, value []byte) error {
	entry, err := s.bucket.Get(ctx, key)
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound):
		if prev != nil {
			return storage.ErrConflict
		}
		if _, err := s.bucket.Create(ctx, key, value); err != nil {
			if isConflict(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("kv create %s: %w", key, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("kv get %s: %w", key, err)
	}

	if prev == nil || !bytes.Equal(entry.Value(), prev) {
		return storage.ErrConflict
	}
	if _, err := s.bucket.Update(ctx, key, value, entry.Revision()); err != nil {
		if isConflict(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("kv update %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.nc != nil {
		return s.nc.Drain()
	}
	return nil
}

// isConflict reports whether err means the key exists or the revision moved.
func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "10058")
}
