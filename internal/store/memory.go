package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackzampolin/picturebook/internal/types"
)

// MemoryRecords is an in-process Records implementation.
type MemoryRecords struct {
	mu            sync.RWMutex
	narratives    map[string]*Narrative
	illustrations map[string][]Illustration
}

// NewMemoryRecords creates an empty record store.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{
		narratives:    make(map[string]*Narrative),
		illustrations: make(map[string][]Illustration),
	}
}

func (m *MemoryRecords) CreateNarrative(_ context.Context, n *Narrative) error {
	if err := validateNarrative(n); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.narratives[n.ID]; exists {
		return fmt.Errorf("narrative %s already exists", n.ID)
	}
	cp := *n
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.State == "" {
		cp.State = types.StateNarrativeOnly
	}
	cp.ImageURLs = append([]string(nil), n.ImageURLs...)
	m.narratives[n.ID] = &cp
	return nil
}

func (m *MemoryRecords) GetNarrative(_ context.Context, ownerID, id string) (*Narrative, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	cp := *n
	cp.ImageURLs = append([]string(nil), n.ImageURLs...)
	return &cp, nil
}

func (m *MemoryRecords) SetState(_ context.Context, ownerID, id string, to types.NarrativeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.owned(ownerID, id)
	if err != nil {
		return err
	}
	return transition(n, to)
}

func (m *MemoryRecords) AddIllustrations(_ context.Context, ownerID, narrativeID string, ills []Illustration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.owned(ownerID, narrativeID); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, ill := range ills {
		ill.NarrativeID = narrativeID
		if ill.CreatedAt.IsZero() {
			ill.CreatedAt = now
		}
		m.illustrations[narrativeID] = append(m.illustrations[narrativeID], ill)
	}
	return nil
}

func (m *MemoryRecords) ListIllustrations(_ context.Context, ownerID, narrativeID string) ([]Illustration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := m.owned(ownerID, narrativeID); err != nil {
		return nil, err
	}
	out := append([]Illustration(nil), m.illustrations[narrativeID]...)
	sortByPage(out)
	return out, nil
}

func (m *MemoryRecords) DeleteNarrative(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.owned(ownerID, id); err != nil {
		return err
	}
	delete(m.narratives, id)
	delete(m.illustrations, id)
	return nil
}

// owned must be called with the lock held.
func (m *MemoryRecords) owned(ownerID, id string) (*Narrative, error) {
	n, ok := m.narratives[id]
	if !ok || n.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return n, nil
}

var _ Records = (*MemoryRecords)(nil)
