// Package pipeline drives a narrative from photos to a settled set of
// illustrations.
//
// A narrative moves through three states:
//
//	narrative_only -> illustrations_in_flight -> illustrations_settled
//
// CreateNarrative saves the story and, when an image provider is
// configured, queues an illustration task keyed by the narrative id. The
// task handler generates the illustrations out of band and settles the
// narrative. Without an image provider the narrative stays narrative_only.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jackzampolin/picturebook/internal/illustrate"
	"github.com/jackzampolin/picturebook/internal/jobs"
	"github.com/jackzampolin/picturebook/internal/prompts"
	"github.com/jackzampolin/picturebook/internal/store"
	"github.com/jackzampolin/picturebook/internal/story"
	"github.com/jackzampolin/picturebook/internal/types"
)

// TaskIllustrate is the task type that generates a narrative's illustrations.
const TaskIllustrate = "illustrate"

// ErrMissingOwner is returned when a call carries no owner identity.
var ErrMissingOwner = errors.New("owner id is required")

// Config configures a Pipeline.
type Config struct {
	Records     store.Records
	Stories     *story.Generator
	Illustrator *illustrate.Generator

	// Scheduler runs illustration tasks. When nil, CreateNarrative never
	// queues illustrations.
	Scheduler *jobs.Scheduler

	// ImagesEnabled reports whether an image provider is configured. It is
	// checked on every CreateNarrative so provider config can change at runtime.
	ImagesEnabled func() bool

	Logger *slog.Logger
}

// Pipeline orchestrates story generation and illustration.
type Pipeline struct {
	records       store.Records
	stories       *story.Generator
	illustrator   *illustrate.Generator
	scheduler     *jobs.Scheduler
	imagesEnabled func() bool
	logger        *slog.Logger
}

// New creates a Pipeline and registers its task handler with the scheduler.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Records == nil {
		return nil, errors.New("record store is required")
	}
	if cfg.Stories == nil {
		return nil, errors.New("story generator is required")
	}
	if cfg.Illustrator == nil {
		return nil, errors.New("illustration generator is required")
	}
	if cfg.ImagesEnabled == nil {
		cfg.ImagesEnabled = func() bool { return false }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Pipeline{
		records:       cfg.Records,
		stories:       cfg.Stories,
		illustrator:   cfg.Illustrator,
		scheduler:     cfg.Scheduler,
		imagesEnabled: cfg.ImagesEnabled,
		logger:        cfg.Logger,
	}
	if p.scheduler != nil {
		p.scheduler.RegisterHandler(TaskIllustrate, p.HandleTask)
	}
	return p, nil
}

// Created is the result of CreateNarrative.
type Created struct {
	NarrativeID string               `json:"narrative_id"`
	Title       string               `json:"title"`
	State       types.NarrativeState `json:"state"`
	Fallback    bool                 `json:"fallback"`
	TaskID      string               `json:"task_id,omitempty"`
}

// CreateNarrative writes and saves a story for imageURLs, then queues its
// illustrations if an image provider is configured. It returns as soon as the
// narrative is saved. Errors are limited to validation and record-store
// failures; provider failures resolve to the fallback story.
func (p *Pipeline) CreateNarrative(ctx context.Context, ownerID string, imageURLs []string, custom *story.Customization) (*Created, error) {
	if ownerID == "" {
		return nil, ErrMissingOwner
	}
	if len(imageURLs) == 0 {
		return nil, story.ErrNoImages
	}
	if err := custom.Validate(); err != nil {
		return nil, err
	}

	generated, err := p.stories.Generate(ctx, imageURLs, custom)
	if err != nil {
		return nil, err
	}

	n := &store.Narrative{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Title:         generated.Title,
		Body:          generated.Body,
		Fallback:      generated.Fallback,
		ImageURLs:     imageURLs,
		Customization: custom.WithDefaults(),
		State:         types.StateNarrativeOnly,
	}
	if err := p.records.CreateNarrative(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to save narrative: %w", err)
	}

	logger := p.logger.With("narrative_id", n.ID, "owner_id", ownerID)
	logger.Info("narrative created", "title", n.Title, "fallback", n.Fallback)

	created := &Created{
		NarrativeID: n.ID,
		Title:       n.Title,
		State:       types.StateNarrativeOnly,
		Fallback:    n.Fallback,
	}

	if p.scheduler == nil || !p.imagesEnabled() {
		logger.Info("no image provider configured, narrative will not be illustrated")
		return created, nil
	}

	taskID, err := p.queueIllustrations(ctx, ownerID, n.ID)
	if err != nil {
		// The story is saved; the caller still gets it.
		logger.Error("failed to queue illustrations", "error", err)
		return created, nil
	}
	created.State = types.StateIllustrationsInFlight
	created.TaskID = taskID
	return created, nil
}

// queueIllustrations submits the illustrate task and only then marks the
// narrative in flight, so a rejected submission leaves it narrative_only.
func (p *Pipeline) queueIllustrations(ctx context.Context, ownerID, narrativeID string) (string, error) {
	rec, err := p.scheduler.Submit(ctx, jobs.NewTask(TaskIllustrate, narrativeID, ownerID))
	if err != nil {
		return "", err
	}
	if err := p.markInFlight(ctx, ownerID, narrativeID); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// markInFlight moves a narrative_only narrative to illustrations_in_flight.
// A worker may already have advanced it, which is not an error.
func (p *Pipeline) markInFlight(ctx context.Context, ownerID, narrativeID string) error {
	err := p.records.SetState(ctx, ownerID, narrativeID, types.StateIllustrationsInFlight)
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		return fmt.Errorf("failed to update narrative state: %w", err)
	}
	return nil
}

// QueueIllustrations queues illustration generation for an existing
// narrative that has none yet. It is the manual trigger for narratives left
// in narrative_only or whose task failed before producing illustrations.
func (p *Pipeline) QueueIllustrations(ctx context.Context, ownerID, narrativeID string) (string, error) {
	if ownerID == "" {
		return "", ErrMissingOwner
	}
	if p.scheduler == nil {
		return "", errors.New("no task scheduler configured")
	}
	n, err := p.records.GetNarrative(ctx, ownerID, narrativeID)
	if err != nil {
		return "", err
	}
	existing, err := p.records.ListIllustrations(ctx, ownerID, narrativeID)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return "", ErrAlreadyIllustrated
	}

	rec, err := p.scheduler.Submit(ctx, jobs.NewTask(TaskIllustrate, narrativeID, ownerID))
	if err != nil {
		return "", err
	}
	if n.State == types.StateNarrativeOnly {
		if err := p.markInFlight(ctx, ownerID, narrativeID); err != nil {
			return "", err
		}
	}
	return rec.ID, nil
}

// ErrAlreadyIllustrated is returned when illustrations are requested for a
// narrative that already has some.
var ErrAlreadyIllustrated = errors.New("narrative already has illustrations")

// IllustrationSet is the result of GenerateIllustrations.
type IllustrationSet struct {
	Count         int                  `json:"count"`
	Illustrations []store.Illustration `json:"illustrations"`
}

// GenerateIllustrations builds one prompt per page of body, illustrates
// every page, and saves the results against the narrative. Page failures
// become placeholders, so the only errors are a missing narrative and
// record-store failures.
//
// Calls are not deduplicated: a second call adds a second set of records.
func (p *Pipeline) GenerateIllustrations(ctx context.Context, ownerID, narrativeID, body, title string) (*IllustrationSet, error) {
	if ownerID == "" {
		return nil, ErrMissingOwner
	}
	n, err := p.records.GetNarrative(ctx, ownerID, narrativeID)
	if err != nil {
		return nil, err
	}

	pagePrompts := prompts.Build(body, title)
	results := p.illustrator.GenerateAll(ctx, narrativeID, pagePrompts)

	ills := make([]store.Illustration, len(results))
	for i, r := range results {
		ills[i] = store.Illustration{
			ID:          uuid.NewString(),
			NarrativeID: narrativeID,
			PageNumber:  r.PageNumber,
			ImageURL:    r.ImageURL,
			Prompt:      r.Prompt,
			Placeholder: r.Placeholder,
		}
	}
	if err := p.records.AddIllustrations(ctx, ownerID, narrativeID, ills); err != nil {
		return nil, fmt.Errorf("failed to save illustrations: %w", err)
	}

	if err := p.settle(ctx, ownerID, n); err != nil {
		return nil, err
	}

	p.logger.Info("illustrations saved", "narrative_id", narrativeID, "count", len(ills))
	return &IllustrationSet{Count: len(ills), Illustrations: ills}, nil
}

// settle moves the narrative forward to illustrations_settled.
func (p *Pipeline) settle(ctx context.Context, ownerID string, n *store.Narrative) error {
	switch n.State {
	case types.StateIllustrationsSettled:
		return nil
	case types.StateNarrativeOnly, "":
		if err := p.markInFlight(ctx, ownerID, n.ID); err != nil {
			return err
		}
	}
	err := p.records.SetState(ctx, ownerID, n.ID, types.StateIllustrationsSettled)
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		return fmt.Errorf("failed to update narrative state: %w", err)
	}
	return nil
}

// HandleTask is the illustrate task handler. It loads the narrative by the
// task key and generates its illustrations from the saved body and title.
//
// Queues deliver at least once. A narrative that already has illustrations
// is only settled, never illustrated a second time.
func (p *Pipeline) HandleTask(ctx context.Context, task *jobs.Task) error {
	n, err := p.records.GetNarrative(ctx, task.OwnerID, task.Key)
	if err != nil {
		return fmt.Errorf("failed to load narrative %s: %w", task.Key, err)
	}
	logger := p.logger.With("narrative_id", n.ID, "task_id", task.ID)
	if n.State == types.StateIllustrationsSettled {
		logger.Info("narrative already settled, skipping task")
		return nil
	}
	existing, err := p.records.ListIllustrations(ctx, task.OwnerID, n.ID)
	if err != nil {
		return fmt.Errorf("failed to list illustrations: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("narrative already illustrated, settling redelivered task", "count", len(existing))
		return p.settle(ctx, task.OwnerID, n)
	}
	_, err = p.GenerateIllustrations(ctx, task.OwnerID, n.ID, n.Body, n.Title)
	return err
}

// View is a narrative with its illustrations.
type View struct {
	store.Narrative
	Illustrations []store.Illustration `json:"illustrations"`
}

// Get returns a narrative and its illustrations, scoped by owner.
func (p *Pipeline) Get(ctx context.Context, ownerID, narrativeID string) (*View, error) {
	if ownerID == "" {
		return nil, ErrMissingOwner
	}
	n, err := p.records.GetNarrative(ctx, ownerID, narrativeID)
	if err != nil {
		return nil, err
	}
	ills, err := p.records.ListIllustrations(ctx, ownerID, narrativeID)
	if err != nil {
		return nil, err
	}
	if ills == nil {
		ills = []store.Illustration{}
	}
	return &View{Narrative: *n, Illustrations: ills}, nil
}

// Delete removes a narrative and its illustration records.
func (p *Pipeline) Delete(ctx context.Context, ownerID, narrativeID string) error {
	if ownerID == "" {
		return ErrMissingOwner
	}
	return p.records.DeleteNarrative(ctx, ownerID, narrativeID)
}
