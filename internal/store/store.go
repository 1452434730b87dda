// Package store persists narratives and illustrations (Records) and the
// generated image bytes (Blobs).
//
// Every record read or write is scoped by owner. A record that exists but
// belongs to someone else is reported as ErrNotFound, the same as a record
// that does not exist.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackzampolin/picturebook/internal/story"
	"github.com/jackzampolin/picturebook/internal/types"
)

var (
	// ErrNotFound is returned for missing records, records owned by another
	// caller, and missing blobs.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a state change would move a
	// narrative backwards or skip a state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidKey is returned for blob keys that are empty or escape their namespace.
	ErrInvalidKey = errors.New("invalid blob key")
)

// Narrative is a persisted story.
type Narrative struct {
	ID            string               `json:"id"`
	OwnerID       string               `json:"owner_id"`
	Title         string               `json:"title"`
	Body          string               `json:"body"`
	Fallback      bool                 `json:"fallback"`
	ImageURLs     []string             `json:"image_urls"`
	Customization story.Customization  `json:"customization"`
	State         types.NarrativeState `json:"state"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Illustration is a persisted page image, real or placeholder.
type Illustration struct {
	ID          string    `json:"id"`
	NarrativeID string    `json:"narrative_id"`
	PageNumber  int       `json:"page_number"`
	ImageURL    string    `json:"image_url"`
	Prompt      string    `json:"prompt"`
	Placeholder bool      `json:"placeholder"`
	CreatedAt   time.Time `json:"created_at"`
}

// Records stores narratives and their illustrations.
type Records interface {
	// CreateNarrative inserts a new narrative. ID and OwnerID must be set.
	CreateNarrative(ctx context.Context, n *Narrative) error

	// GetNarrative returns the narrative if it exists and is owned by ownerID.
	GetNarrative(ctx context.Context, ownerID, id string) (*Narrative, error)

	// SetState moves a narrative to a new state. Only forward transitions are allowed.
	SetState(ctx context.Context, ownerID, id string, to types.NarrativeState) error

	// AddIllustrations appends illustration records to a narrative.
	AddIllustrations(ctx context.Context, ownerID, narrativeID string, ills []Illustration) error

	// ListIllustrations returns a narrative's illustrations ordered by page number.
	ListIllustrations(ctx context.Context, ownerID, narrativeID string) ([]Illustration, error)

	// DeleteNarrative removes a narrative and its illustrations.
	DeleteNarrative(ctx context.Context, ownerID, id string) error
}

// Blob is a stored payload.
type Blob struct {
	Data        []byte
	ContentType string
}

// Blobs stores image bytes and returns publicly fetchable URLs.
type Blobs interface {
	// Put stores data under key and returns its public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get returns the payload stored under key.
	Get(ctx context.Context, key string) (*Blob, error)
}

// ValidateKey rejects keys that are empty, absolute, or contain "." or ".." segments.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// publicURL joins a base URL and a key.
func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

func validateNarrative(n *Narrative) error {
	if n == nil || n.ID == "" || n.OwnerID == "" {
		return errors.New("narrative id and owner id are required")
	}
	return nil
}

func sortByPage(ills []Illustration) {
	sort.SliceStable(ills, func(i, j int) bool {
		return ills[i].PageNumber < ills[j].PageNumber
	})
}

func transition(n *Narrative, to types.NarrativeState) error {
	from := n.State
	if from == "" {
		from = types.StateNarrativeOnly
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	n.State = to
	n.UpdatedAt = time.Now().UTC()
	return nil
}
