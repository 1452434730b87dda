package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/picturebook/internal/story"
	"github.com/jackzampolin/picturebook/internal/types"
)

func newNarrative(id, owner string) *Narrative {
	return &Narrative{
		ID:            id,
		OwnerID:       owner,
		Title:         "The Magical Adventure",
		Body:          "Page one.\n---PAGE BREAK---\nPage two.",
		ImageURLs:     []string{"https://example.com/1.jpg"},
		Customization: story.Customization{Theme: story.ThemeAdventure},
	}
}

// testRecords runs the Records contract against any implementation.
func testRecords(t *testing.T, recs Records) {
	ctx := context.Background()

	if err := recs.CreateNarrative(ctx, newNarrative("n1", "alice")); err != nil {
		t.Fatalf("CreateNarrative() error = %v", err)
	}

	t.Run("duplicate create fails", func(t *testing.T) {
		if err := recs.CreateNarrative(ctx, newNarrative("n1", "alice")); err == nil {
			t.Error("expected error for duplicate id")
		}
	})

	t.Run("missing ids rejected", func(t *testing.T) {
		if err := recs.CreateNarrative(ctx, &Narrative{ID: "x"}); err == nil {
			t.Error("expected error without owner")
		}
	})

	t.Run("get owned", func(t *testing.T) {
		n, err := recs.GetNarrative(ctx, "alice", "n1")
		if err != nil {
			t.Fatalf("GetNarrative() error = %v", err)
		}
		if n.Title != "The Magical Adventure" || n.State != types.StateNarrativeOnly {
			t.Errorf("narrative = %+v", n)
		}
		if n.CreatedAt.IsZero() {
			t.Error("CreatedAt not set")
		}
	})

	t.Run("other owner sees not found", func(t *testing.T) {
		if _, err := recs.GetNarrative(ctx, "mallory", "n1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
		if _, err := recs.GetNarrative(ctx, "alice", "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
		if err := recs.AddIllustrations(ctx, "mallory", "n1", []Illustration{{PageNumber: 1}}); !errors.Is(err, ErrNotFound) {
			t.Errorf("AddIllustrations err = %v, want ErrNotFound", err)
		}
	})

	t.Run("state moves forward only", func(t *testing.T) {
		if err := recs.SetState(ctx, "alice", "n1", types.StateIllustrationsSettled); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("skip err = %v, want ErrInvalidTransition", err)
		}
		if err := recs.SetState(ctx, "alice", "n1", types.StateIllustrationsInFlight); err != nil {
			t.Fatalf("SetState(in flight) error = %v", err)
		}
		if err := recs.SetState(ctx, "alice", "n1", types.StateIllustrationsSettled); err != nil {
			t.Fatalf("SetState(settled) error = %v", err)
		}
		if err := recs.SetState(ctx, "alice", "n1", types.StateIllustrationsInFlight); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("backwards err = %v, want ErrInvalidTransition", err)
		}
		n, _ := recs.GetNarrative(ctx, "alice", "n1")
		if n.State != types.StateIllustrationsSettled {
			t.Errorf("State = %s", n.State)
		}
	})

	t.Run("illustrations ordered by page", func(t *testing.T) {
		err := recs.AddIllustrations(ctx, "alice", "n1", []Illustration{
			{ID: "i3", PageNumber: 3, ImageURL: "/static/placeholder-illustration.png", Prompt: "p3", Placeholder: true},
			{ID: "i1", PageNumber: 1, ImageURL: "/blobs/n1/page-1.png", Prompt: "p1"},
			{ID: "i2", PageNumber: 2, ImageURL: "/blobs/n1/page-2.png", Prompt: "p2"},
		})
		if err != nil {
			t.Fatalf("AddIllustrations() error = %v", err)
		}
		ills, err := recs.ListIllustrations(ctx, "alice", "n1")
		if err != nil {
			t.Fatalf("ListIllustrations() error = %v", err)
		}
		if len(ills) != 3 {
			t.Fatalf("len = %d, want 3", len(ills))
		}
		for i, ill := range ills {
			if ill.PageNumber != i+1 {
				t.Errorf("ills[%d].PageNumber = %d", i, ill.PageNumber)
			}
			if ill.NarrativeID != "n1" {
				t.Errorf("ills[%d].NarrativeID = %q", i, ill.NarrativeID)
			}
		}
		if !ills[2].Placeholder {
			t.Error("page 3 should be a placeholder")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := recs.DeleteNarrative(ctx, "mallory", "n1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("foreign delete err = %v, want ErrNotFound", err)
		}
		if err := recs.DeleteNarrative(ctx, "alice", "n1"); err != nil {
			t.Fatalf("DeleteNarrative() error = %v", err)
		}
		if _, err := recs.GetNarrative(ctx, "alice", "n1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestMemoryRecords(t *testing.T) {
	testRecords(t, NewMemoryRecords())
}

// testBlobs runs the Blobs contract against any implementation.
func testBlobs(t *testing.T, blobs Blobs, wantPrefix string) {
	ctx := context.Background()
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}

	url, err := blobs.Put(ctx, "n1/page-1-abcd1234.png", png, "image/png")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if url != wantPrefix+"/n1/page-1-abcd1234.png" {
		t.Errorf("url = %q", url)
	}

	blob, err := blobs.Get(ctx, "n1/page-1-abcd1234.png")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(blob.Data) != string(png) {
		t.Error("round-tripped data differs")
	}
	if blob.ContentType != "image/png" {
		t.Errorf("ContentType = %q", blob.ContentType)
	}

	if _, err := blobs.Get(ctx, "n1/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
	if _, err := blobs.Put(ctx, "../escape.png", png, "image/png"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("escape err = %v, want ErrInvalidKey", err)
	}
}

func TestFSBlobs(t *testing.T) {
	root := t.TempDir()
	blobs, err := NewFSBlobs(filepath.Join(root, "blobs"), "http://localhost:8080/blobs/")
	if err != nil {
		t.Fatalf("NewFSBlobs() error = %v", err)
	}
	testBlobs(t, blobs, "http://localhost:8080/blobs")

	if _, err := os.Stat(filepath.Join(root, "blobs", "n1", "page-1-abcd1234.png")); err != nil {
		t.Errorf("blob file missing: %v", err)
	}
}

func TestValidateKey(t *testing.T) {
	valid := []string{"a.png", "n1/page-1.png", "x/y/z"}
	invalid := []string{"", "/abs", "a/../b", "./a", "a//b", "a\\b", ".."}

	for _, k := range valid {
		if err := ValidateKey(k); err != nil {
			t.Errorf("ValidateKey(%q) = %v", k, err)
		}
	}
	for _, k := range invalid {
		if err := ValidateKey(k); err == nil {
			t.Errorf("ValidateKey(%q) should fail", k)
		}
	}
}

func TestGCSBlobs_DefaultURL(t *testing.T) {
	if os.Getenv("STORAGE_EMULATOR_HOST") == "" {
		t.Skip("STORAGE_EMULATOR_HOST not set - skipping GCS test")
	}
	ctx := context.Background()
	blobs, err := NewGCSBlobs(ctx, nil, "picturebook-test", "")
	if err != nil {
		t.Fatalf("NewGCSBlobs() error = %v", err)
	}
	defer blobs.Close()
	if !strings.HasPrefix(blobs.baseURL, "https://storage.googleapis.com/picturebook-test") {
		t.Errorf("baseURL = %q", blobs.baseURL)
	}
	testBlobs(t, blobs, blobs.baseURL)
}

func TestNewGCSBlobs_RequiresBucket(t *testing.T) {
	if _, err := NewGCSBlobs(context.Background(), nil, "", ""); err == nil {
		t.Error("expected error without bucket")
	}
}
