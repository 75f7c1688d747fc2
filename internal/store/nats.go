package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/triggers/internal/errs"
	"github.com/c360studio/triggers/internal/trigger"
)

// Bucket is the JetStream Key/Value bucket name triggers are stored under.
const Bucket = "TRIGGERS"

// NATSStore is a Store backed by a single JetStream Key/Value bucket keyed
// by trigger_id, adapted from storage.Store's bucket-per-entity pattern.
// Scan has no native index to work with, so it lists every key and filters
// in-process; this is acceptable because a single process only ever owns
// the triggers it is actively polling.
type NATSStore struct {
	kv jetstream.KeyValue
}

// NewNATSStore creates a NATSStore, creating the backing bucket if it does
// not already exist. An empty bucket name falls back to Bucket.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, bucket string) (*NATSStore, error) {
	if bucket == "" {
		bucket = Bucket
	}
	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "trigger registrations",
			History:     5,
		})
		if err != nil {
			return nil, fmt.Errorf("create triggers bucket: %w", err)
		}
	}
	return &NATSStore{kv: kv}, nil
}

func (s *NATSStore) Get(ctx context.Context, triggerID string) (*trigger.Trigger, error) {
	entry, err := s.kv.Get(ctx, triggerID)
	if err != nil {
		if isNotFound(err) {
			return nil, &errs.NotFound{Msg: fmt.Sprintf("trigger %q not found", triggerID)}
		}
		return nil, fmt.Errorf("get trigger: %w", err)
	}

	var t trigger.Trigger
	if err := json.Unmarshal(entry.Value(), &t); err != nil {
		return nil, fmt.Errorf("unmarshal trigger: %w", err)
	}
	return &t, nil
}

func (s *NATSStore) Put(ctx context.Context, t *trigger.Trigger) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}
	if _, err := s.kv.Put(ctx, t.TriggerID, data); err != nil {
		return fmt.Errorf("put trigger: %w", err)
	}
	return nil
}

func (s *NATSStore) Delete(ctx context.Context, triggerID string) (*trigger.Trigger, error) {
	t, err := s.Get(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Delete(ctx, triggerID); err != nil {
		return nil, fmt.Errorf("delete trigger: %w", err)
	}
	return t, nil
}

func (s *NATSStore) Scan(ctx context.Context, clauses []Clause) ([]*trigger.Trigger, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list trigger keys: %w", err)
	}

	out := make([]*trigger.Trigger, 0, len(keys))
	for _, key := range keys {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var t trigger.Trigger
		if err := json.Unmarshal(entry.Value(), &t); err != nil {
			continue
		}
		if Matches(&t, clauses) {
			out = append(out, &t)
		}
	}
	return out, nil
}

func isNotFound(err error) bool {
	return err != nil && (errors.Is(err, jetstream.ErrKeyNotFound) || strings.Contains(err.Error(), "key not found"))
}
