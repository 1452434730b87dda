package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"

	"github.com/jackzampolin/picturebook/internal/types"
)

const casAttempts = 5

// kvRecord is the stored value: a narrative with its illustrations.
type kvRecord struct {
	Narrative     Narrative      `json:"narrative"`
	Illustrations []Illustration `json:"illustrations"`
}

// KVRecords stores records in a NATS JetStream key-value bucket, one key
// per narrative. Updates use compare-and-set on the key revision.
type KVRecords struct {
	kv nats.KeyValue
}

// NewKVRecords wraps an existing key-value bucket.
func NewKVRecords(kv nats.KeyValue) *KVRecords {
	return &KVRecords{kv: kv}
}

func narrativeKey(id string) string {
	return "narrative." + id
}

func (s *KVRecords) CreateNarrative(_ context.Context, n *Narrative) error {
	if err := validateNarrative(n); err != nil {
		return err
	}
	rec := kvRecord{Narrative: *n}
	now := time.Now().UTC()
	if rec.Narrative.CreatedAt.IsZero() {
		rec.Narrative.CreatedAt = now
	}
	rec.Narrative.UpdatedAt = now
	if rec.Narrative.State == "" {
		rec.Narrative.State = types.StateNarrativeOnly
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal narrative: %w", err)
	}
	if _, err := s.kv.Create(narrativeKey(n.ID), data); err != nil {
		return fmt.Errorf("failed to create narrative %s: %w", n.ID, err)
	}
	return nil
}

func (s *KVRecords) GetNarrative(_ context.Context, ownerID, id string) (*Narrative, error) {
	rec, _, err := s.load(ownerID, id)
	if err != nil {
		return nil, err
	}
	return &rec.Narrative, nil
}

func (s *KVRecords) SetState(ctx context.Context, ownerID, id string, to types.NarrativeState) error {
	return s.update(ctx, ownerID, id, func(rec *kvRecord) error {
		return transition(&rec.Narrative, to)
	})
}

func (s *KVRecords) AddIllustrations(ctx context.Context, ownerID, narrativeID string, ills []Illustration) error {
	now := time.Now().UTC()
	return s.update(ctx, ownerID, narrativeID, func(rec *kvRecord) error {
		for _, ill := range ills {
			ill.NarrativeID = narrativeID
			if ill.CreatedAt.IsZero() {
				ill.CreatedAt = now
			}
			rec.Illustrations = append(rec.Illustrations, ill)
		}
		return nil
	})
}

func (s *KVRecords) ListIllustrations(_ context.Context, ownerID, narrativeID string) ([]Illustration, error) {
	rec, _, err := s.load(ownerID, narrativeID)
	if err != nil {
		return nil, err
	}
	out := rec.Illustrations
	sortByPage(out)
	return out, nil
}

func (s *KVRecords) DeleteNarrative(_ context.Context, ownerID, id string) error {
	if _, _, err := s.load(ownerID, id); err != nil {
		return err
	}
	if err := s.kv.Delete(narrativeKey(id)); err != nil {
		return fmt.Errorf("failed to delete narrative %s: %w", id, err)
	}
	return nil
}

func (s *KVRecords) load(ownerID, id string) (*kvRecord, uint64, error) {
	entry, err := s.kv.Get(narrativeKey(id))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("failed to get narrative %s: %w", id, err)
	}
	var rec kvRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal narrative %s: %w", id, err)
	}
	if rec.Narrative.OwnerID != ownerID {
		return nil, 0, ErrNotFound
	}
	return &rec, entry.Revision(), nil
}

// update applies fn with optimistic concurrency, retrying on revision conflicts.
func (s *KVRecords) update(ctx context.Context, ownerID, id string, fn func(*kvRecord) error) error {
	return retry.Do(
		func() error {
			rec, rev, err := s.load(ownerID, id)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if err := fn(rec); err != nil {
				return retry.Unrecoverable(err)
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to marshal narrative: %w", err))
			}
			if _, err := s.kv.Update(narrativeKey(id), data, rev); err != nil {
				return fmt.Errorf("failed to update narrative %s: %w", id, err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(casAttempts),
		retry.Delay(10*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

var _ Records = (*KVRecords)(nil)
