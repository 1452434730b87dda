package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackzampolin/picturebook/internal/illustrate"
	"github.com/jackzampolin/picturebook/internal/jobs"
	"github.com/jackzampolin/picturebook/internal/pages"
	"github.com/jackzampolin/picturebook/internal/providers"
	"github.com/jackzampolin/picturebook/internal/store"
	"github.com/jackzampolin/picturebook/internal/story"
	"github.com/jackzampolin/picturebook/internal/types"
)

var photos = []string{"https://example.com/a.jpg", "https://example.com/b.jpg"}

type fixture struct {
	pipeline  *Pipeline
	records   *store.MemoryRecords
	scheduler *jobs.Scheduler
	images    *providers.MockImageProvider
}

// newFixture builds a pipeline with no text provider, a mock image provider
// serving a real image, and a running scheduler.
func newFixture(t *testing.T, imagesEnabled bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	}))
	t.Cleanup(imageServer.Close)

	blobs, err := store.NewFSBlobs(t.TempDir(), "/blobs")
	if err != nil {
		t.Fatalf("NewFSBlobs() error = %v", err)
	}
	images := providers.NewMockImageProvider(imageServer.URL + "/image.png")
	records := store.NewMemoryRecords()
	scheduler := jobs.NewScheduler(jobs.SchedulerConfig{Workers: 2, Logger: logger})

	p, err := New(Config{
		Records: records,
		Stories: story.NewGenerator(story.Config{Logger: logger}),
		Illustrator: illustrate.NewGenerator(illustrate.Config{
			Provider:     images,
			Blobs:        blobs,
			PollInterval: time.Millisecond,
			PollTimeout:  time.Second,
			Logger:       logger,
		}),
		Scheduler:     scheduler,
		ImagesEnabled: func() bool { return imagesEnabled },
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &fixture{pipeline: p, records: records, scheduler: scheduler, images: images}
}

func waitForState(t *testing.T, p *Pipeline, owner, id string, want types.NarrativeState) *View {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		v, err := p.Get(context.Background(), owner, id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if v.State == want {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("narrative %s did not reach %s", id, want)
	return nil
}

func TestEndToEnd_FallbackStoryIllustrated(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	created, err := f.pipeline.CreateNarrative(ctx, "owner-1", photos, &story.Customization{Theme: story.ThemeAdventure})
	if err != nil {
		t.Fatalf("CreateNarrative() error = %v", err)
	}
	if created.Title != "The Magical Adventure" {
		t.Errorf("Title = %q, want The Magical Adventure", created.Title)
	}
	if !created.Fallback {
		t.Error("expected fallback story without a text provider")
	}
	if created.State != types.StateIllustrationsInFlight || created.TaskID == "" {
		t.Errorf("created = %+v, want in-flight with a task", created)
	}

	view := waitForState(t, f.pipeline, "owner-1", created.NarrativeID, types.StateIllustrationsSettled)
	if got := len(pages.Split(view.Body)); got != 4 {
		t.Errorf("fallback body splits into %d pages, want 4", got)
	}
	if len(view.Illustrations) != 4 {
		t.Fatalf("illustrations = %d, want 4", len(view.Illustrations))
	}
	for i, ill := range view.Illustrations {
		if ill.PageNumber != i+1 {
			t.Errorf("illustration %d PageNumber = %d", i, ill.PageNumber)
		}
		if ill.Placeholder || ill.Prompt == "" {
			t.Errorf("illustration %d = %+v", i, ill)
		}
	}

	rec, err := f.scheduler.Manager().Get(ctx, created.TaskID)
	if err != nil {
		t.Fatalf("task Get() error = %v", err)
	}
	if rec.Status != jobs.StatusCompleted || rec.Key != created.NarrativeID {
		t.Errorf("task record = %+v", rec)
	}
}

func TestCreateNarrative_NoImageProvider(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.pipeline.CreateNarrative(ctx, "owner-1", photos, nil)
	if err != nil {
		t.Fatalf("CreateNarrative() error = %v", err)
	}
	if created.State != types.StateNarrativeOnly || created.TaskID != "" {
		t.Errorf("created = %+v, want narrative_only without a task", created)
	}

	time.Sleep(20 * time.Millisecond)
	view, err := f.pipeline.Get(ctx, "owner-1", created.NarrativeID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.State != types.StateNarrativeOnly || len(view.Illustrations) != 0 {
		t.Errorf("view = %+v", view)
	}
	if len(f.images.Prompts()) != 0 {
		t.Error("image provider should not be called")
	}
	if view.Customization.Theme != story.DefaultTheme || view.Customization.AgeGroup != story.DefaultAgeGroup {
		t.Errorf("Customization = %+v, want defaults", view.Customization)
	}
}

func TestCreateNarrative_EveryThemeSplits(t *testing.T) {
	f := newFixture(t, false)
	for _, theme := range story.Themes {
		t.Run(string(theme), func(t *testing.T) {
			created, err := f.pipeline.CreateNarrative(context.Background(), "owner", photos, &story.Customization{Theme: theme})
			if err != nil {
				t.Fatalf("CreateNarrative() error = %v", err)
			}
			view, err := f.pipeline.Get(context.Background(), "owner", created.NarrativeID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if len(pages.Split(view.Body)) < 1 {
				t.Errorf("body has no pages: %q", view.Body)
			}
		})
	}
}

func TestCreateNarrative_Validation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	tests := []struct {
		name   string
		owner  string
		urls   []string
		custom *story.Customization
		want   error
	}{
		{"missing owner", "", photos, nil, ErrMissingOwner},
		{"no images", "owner", nil, nil, story.ErrNoImages},
		{"unknown theme", "owner", photos, &story.Customization{Theme: "horror"}, story.ErrInvalidCustomization},
		{"unknown length", "owner", photos, &story.Customization{Length: "epic"}, story.ErrInvalidCustomization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipeline.CreateNarrative(ctx, tt.owner, tt.urls, tt.custom)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGet_OwnerScoped(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.pipeline.CreateNarrative(ctx, "owner-1", photos, nil)
	if err != nil {
		t.Fatalf("CreateNarrative() error = %v", err)
	}
	if _, err := f.pipeline.Get(ctx, "owner-2", created.NarrativeID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() other owner error = %v, want ErrNotFound", err)
	}
	if _, err := f.pipeline.Get(ctx, "owner-1", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() missing error = %v, want ErrNotFound", err)
	}
	if _, err := f.pipeline.GenerateIllustrations(ctx, "owner-2", created.NarrativeID, "body", "title"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GenerateIllustrations() other owner error = %v, want ErrNotFound", err)
	}
}

func TestGenerateIllustrations(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.pipeline.CreateNarrative(ctx, "owner", photos, &story.Customization{Theme: story.ThemeFriendship})
	if err != nil {
		t.Fatalf("CreateNarrative() error = %v", err)
	}
	view, _ := f.pipeline.Get(ctx, "owner", created.NarrativeID)

	set, err := f.pipeline.GenerateIllustrations(ctx, "owner", created.NarrativeID, view.Body, view.Title)
	if err != nil {
		t.Fatalf("GenerateIllustrations() error = %v", err)
	}
	want := len(pages.Split(view.Body))
	if set.Count != want || len(set.Illustrations) != want {
		t.Errorf("Count = %d, want %d", set.Count, want)
	}

	view = waitForState(t, f.pipeline, "owner", created.NarrativeID, types.StateIllustrationsSettled)
	if len(view.Illustrations) != want {
		t.Errorf("stored = %d, want %d", len(view.Illustrations), want)
	}

	t.Run("not deduplicated", func(t *testing.T) {
		if _, err := f.pipeline.GenerateIllustrations(ctx, "owner", created.NarrativeID, view.Body, view.Title); err != nil {
			t.Fatalf("second GenerateIllustrations() error = %v", err)
		}
		again, _ := f.pipeline.Get(ctx, "owner", created.NarrativeID)
		if len(again.Illustrations) != 2*want {
			t.Errorf("stored = %d, want %d", len(again.Illustrations), 2*want)
		}
	})

	t.Run("queue refuses illustrated narrative", func(t *testing.T) {
		if _, err := f.pipeline.QueueIllustrations(ctx, "owner", created.NarrativeID); !errors.Is(err, ErrAlreadyIllustrated) {
			t.Errorf("QueueIllustrations() error = %v, want ErrAlreadyIllustrated", err)
		}
	})
}

func TestQueueIllustrations_NarrativeOnly(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.pipeline.CreateNarrative(ctx, "owner", photos, nil)
	if err != nil {
		t.Fatalf("CreateNarrative() error = %v", err)
	}
	taskID, err := f.pipeline.QueueIllustrations(ctx, "owner", created.NarrativeID)
	if err != nil {
		t.Fatalf("QueueIllustrations() error = %v", err)
	}
	if taskID == "" {
		t.Error("expected a task id")
	}
	view := waitForState(t, f.pipeline, "owner", created.NarrativeID, types.StateIllustrationsSettled)
	if len(view.Illustrations) == 0 {
		t.Error("expected illustrations after manual queue")
	}
}

func TestHandleTask_MissingNarrative(t *testing.T) {
	f := newFixture(t, true)
	err := f.pipeline.HandleTask(context.Background(), jobs.NewTask(TaskIllustrate, "missing", "owner"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("HandleTask() error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, _ := f.pipeline.CreateNarrative(ctx, "owner", photos, nil)
	if err := f.pipeline.Delete(ctx, "other", created.NarrativeID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete() other owner error = %v", err)
	}
	if err := f.pipeline.Delete(ctx, "owner", created.NarrativeID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.pipeline.Get(ctx, "owner", created.NarrativeID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
}

func TestHandleTask_RedeliveryKeepsSingleSet(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.pipeline.CreateNarrative(ctx, "owner", photos, nil)
	if err != nil {
		t.Fatalf("CreateNarrative() error = %v", err)
	}
	id := created.NarrativeID
	n, _ := f.records.GetNarrative(ctx, "owner", id)
	pageCount := len(pages.Split(n.Body))

	// A worker stored the illustrations and stopped before settling.
	if err := f.records.SetState(ctx, "owner", id, types.StateIllustrationsInFlight); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	stored := make([]store.Illustration, pageCount)
	for i := range stored {
		stored[i] = store.Illustration{
			ID:          "ill-" + string(rune('a'+i)),
			NarrativeID: id,
			PageNumber:  i + 1,
			ImageURL:    "/blobs/" + id + "/page.png",
		}
	}
	if err := f.records.AddIllustrations(ctx, "owner", id, stored); err != nil {
		t.Fatalf("AddIllustrations() error = %v", err)
	}

	if err := f.pipeline.HandleTask(ctx, jobs.NewTask(TaskIllustrate, id, "owner")); err != nil {
		t.Fatalf("HandleTask() error = %v", err)
	}

	view, err := f.pipeline.Get(ctx, "owner", id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(view.Illustrations) != pageCount {
		t.Errorf("illustrations after redelivery = %d, want %d", len(view.Illustrations), pageCount)
	}
	if view.State != types.StateIllustrationsSettled {
		t.Errorf("state = %s, want settled", view.State)
	}
	if got := len(f.images.Requests()); got != 0 {
		t.Errorf("image submissions = %d, want none", got)
	}
}

func TestHandleTask_RunsOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, err := f.pipeline.CreateNarrative(ctx, "owner", photos, nil)
	if err != nil {
		t.Fatalf("CreateNarrative() error = %v", err)
	}
	task := jobs.NewTask(TaskIllustrate, created.NarrativeID, "owner")
	for i := 0; i < 2; i++ {
		if err := f.pipeline.HandleTask(ctx, task); err != nil {
			t.Fatalf("HandleTask() #%d error = %v", i+1, err)
		}
	}

	view, _ := f.pipeline.Get(ctx, "owner", created.NarrativeID)
	if want := len(pages.Split(view.Body)); len(view.Illustrations) != want {
		t.Errorf("illustrations = %d, want %d", len(view.Illustrations), want)
	}
}

func TestCreateNarrative_QueueFullStaysNarrativeOnly(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := store.NewMemoryRecords()
	// No workers run, so the single slot stays taken.
	scheduler := jobs.NewScheduler(jobs.SchedulerConfig{Queue: jobs.NewMemoryQueue(1), Logger: logger})
	p, err := New(Config{
		Records:       records,
		Stories:       story.NewGenerator(story.Config{Logger: logger}),
		Illustrator:   illustrate.NewGenerator(illustrate.Config{Logger: logger}),
		Scheduler:     scheduler,
		ImagesEnabled: func() bool { return true },
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	first, err := p.CreateNarrative(ctx, "owner", photos, nil)
	if err != nil {
		t.Fatalf("first CreateNarrative() error = %v", err)
	}
	if first.State != types.StateIllustrationsInFlight || first.TaskID == "" {
		t.Fatalf("first = %+v, want queued", first)
	}

	second, err := p.CreateNarrative(ctx, "owner", photos, nil)
	if err != nil {
		t.Fatalf("second CreateNarrative() error = %v", err)
	}
	if second.State != types.StateNarrativeOnly || second.TaskID != "" {
		t.Errorf("second = %+v, want narrative_only without a task", second)
	}
	n, err := records.GetNarrative(ctx, "owner", second.NarrativeID)
	if err != nil {
		t.Fatalf("GetNarrative() error = %v", err)
	}
	if n.State != types.StateNarrativeOnly {
		t.Errorf("stored state = %s, want narrative_only", n.State)
	}

	if _, err := p.QueueIllustrations(ctx, "owner", second.NarrativeID); !errors.Is(err, jobs.ErrQueueFull) {
		t.Errorf("QueueIllustrations() error = %v, want ErrQueueFull", err)
	}
	n, _ = records.GetNarrative(ctx, "owner", second.NarrativeID)
	if n.State != types.StateNarrativeOnly {
		t.Errorf("stored state after rejected queue = %s, want narrative_only", n.State)
	}
}

func TestMarkInFlight_AlreadyAdvanced(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created, _ := f.pipeline.CreateNarrative(ctx, "owner", photos, nil)
	id := created.NarrativeID
	for _, s := range []types.NarrativeState{types.StateIllustrationsInFlight, types.StateIllustrationsSettled} {
		if err := f.records.SetState(ctx, "owner", id, s); err != nil {
			t.Fatalf("SetState(%s) error = %v", s, err)
		}
	}
	if err := f.pipeline.markInFlight(ctx, "owner", id); err != nil {
		t.Errorf("markInFlight() on settled narrative error = %v", err)
	}
	if err := f.pipeline.markInFlight(ctx, "owner", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("markInFlight() missing error = %v, want ErrNotFound", err)
	}
}
