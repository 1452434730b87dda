package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/picturebook/internal/api"
	"github.com/jackzampolin/picturebook/internal/pipeline"
	"github.com/jackzampolin/picturebook/internal/store"
	"github.com/jackzampolin/picturebook/internal/story"
	"github.com/jackzampolin/picturebook/internal/svcctx"
)

const maxRequestBytes = 1 << 20

const narrativesGroup = "narratives"

// requireOwner returns the caller's owner id, or writes 401 and returns false.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := strings.TrimSpace(r.Header.Get(api.OwnerHeader))
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing "+api.OwnerHeader+" header")
		return "", false
	}
	return owner, true
}

// writePipelineError maps pipeline and store errors to HTTP statuses.
func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "narrative not found")
	case errors.Is(err, pipeline.ErrMissingOwner):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, story.ErrNoImages), errors.Is(err, story.ErrInvalidCustomization):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrAlreadyIllustrated):
		writeError(w, http.StatusConflict, err.Error())
	default:
		if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
			logger.Error("narrative request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// CreateNarrativeRequest is the body of POST /api/narratives.
type CreateNarrativeRequest struct {
	ImageURLs      []string             `json:"image_urls"`
	Customizations *story.Customization `json:"customizations,omitempty"`
}

// CreateNarrativeEndpoint handles POST /api/narratives.
type CreateNarrativeEndpoint struct{}

func (e *CreateNarrativeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/narratives", e.handler
}

func (e *CreateNarrativeEndpoint) RequiresInit() bool { return true }

func (e *CreateNarrativeEndpoint) Group() string { return narrativesGroup }

func (e *CreateNarrativeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := validateCreateNarrative(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req CreateNarrativeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p := svcctx.PipelineFrom(r.Context())
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	created, err := p.CreateNarrative(r.Context(), owner, req.ImageURLs, req.Customizations)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (e *CreateNarrativeEndpoint) Command(getServerURL func() string) *cobra.Command {
	var images []string
	var custom story.Customization
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a story from one or more images",
		Long: `Write a children's story from the given image URLs.

The story is saved immediately. If an image provider is configured,
illustrations are generated in the background; poll the narrative with
"narratives get <id>" to see them arrive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := CreateNarrativeRequest{ImageURLs: images}
			if custom != (story.Customization{}) {
				req.Customizations = &custom
			}
			client := api.NewClient(getServerURL()).WithOwner(api.Owner())
			var resp pipeline.Created
			if err := client.Post(cmd.Context(), "/api/narratives", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringArrayVar(&images, "image", nil, "Image URL (repeatable)")
	cmd.Flags().Var(newEnumFlag(&custom.AgeGroup, story.AgeGroups), "age-group", "Target age group")
	cmd.Flags().Var(newEnumFlag(&custom.Theme, story.Themes), "theme", "Story theme")
	cmd.Flags().Var(newEnumFlag(&custom.Length, story.Lengths), "length", "Story length")
	cmd.Flags().Var(newEnumFlag(&custom.Tone, story.Tones), "tone", "Story tone")
	cmd.MarkFlagRequired("image")
	return cmd
}

// GetNarrativeEndpoint handles GET /api/narratives/{id}.
type GetNarrativeEndpoint struct{}

func (e *GetNarrativeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/narratives/{id}", e.handler
}

func (e *GetNarrativeEndpoint) RequiresInit() bool { return true }

func (e *GetNarrativeEndpoint) Group() string { return narrativesGroup }

func (e *GetNarrativeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	p := svcctx.PipelineFrom(r.Context())
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	view, err := p.Get(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writePipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (e *GetNarrativeEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a narrative with its state and illustrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL()).WithOwner(api.Owner())
			var resp pipeline.View
			if err := client.Get(cmd.Context(), "/api/narratives/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DeleteNarrativeEndpoint handles DELETE /api/narratives/{id}.
type DeleteNarrativeEndpoint struct{}

func (e *DeleteNarrativeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/narratives/{id}", e.handler
}

func (e *DeleteNarrativeEndpoint) RequiresInit() bool { return true }

func (e *DeleteNarrativeEndpoint) Group() string { return narrativesGroup }

func (e *DeleteNarrativeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	p := svcctx.PipelineFrom(r.Context())
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	if err := p.Delete(r.Context(), owner, r.PathValue("id")); err != nil {
		writePipelineError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteNarrativeEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a narrative and its illustration records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL()).WithOwner(api.Owner())
			if err := client.Delete(cmd.Context(), "/api/narratives/"+args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted narrative %s\n", args[0])
			return nil
		},
	}
}

// IllustrateRequest is the optional body of POST /api/narratives/{id}/illustrations.
// Empty fields fall back to the saved narrative's body and title.
type IllustrateRequest struct {
	Body  string `json:"body,omitempty"`
	Title string `json:"title,omitempty"`
}

// QueuedResponse is returned when illustrations are queued instead of generated inline.
type QueuedResponse struct {
	TaskID string `json:"task_id"`
}

// IllustrateEndpoint handles POST /api/narratives/{id}/illustrations.
//
// Requests are refused with 409 once any illustration is stored for the
// narrative. A request that arrives while a queued task is still running and
// nothing is stored yet is not refused. With ?async=true the work is queued
// and the task id returned.
type IllustrateEndpoint struct{}

func (e *IllustrateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/narratives/{id}/illustrations", e.handler
}

func (e *IllustrateEndpoint) RequiresInit() bool { return true }

func (e *IllustrateEndpoint) Group() string { return narrativesGroup }

func (e *IllustrateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	p := svcctx.PipelineFrom(r.Context())
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	if r.URL.Query().Get("async") == "true" {
		taskID, err := p.QueueIllustrations(r.Context(), owner, id)
		if err != nil {
			writePipelineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, QueuedResponse{TaskID: taskID})
		return
	}

	var req IllustrateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	view, err := p.Get(r.Context(), owner, id)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}
	if len(view.Illustrations) > 0 {
		writePipelineError(w, r, pipeline.ErrAlreadyIllustrated)
		return
	}
	if req.Body == "" {
		req.Body = view.Body
	}
	if req.Title == "" {
		req.Title = view.Title
	}

	set, err := p.GenerateIllustrations(r.Context(), owner, id, req.Body, req.Title)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, set)
}

func (e *IllustrateEndpoint) Command(getServerURL func() string) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "illustrate <id>",
		Short: "Generate illustrations for a narrative that has none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL()).WithOwner(api.Owner())
			path := "/api/narratives/" + args[0] + "/illustrations"
			if async {
				var resp QueuedResponse
				if err := client.Post(cmd.Context(), path+"?async=true", nil, &resp); err != nil {
					return err
				}
				return api.Output(resp)
			}
			var resp pipeline.IllustrationSet
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Queue the work and return the task id")
	return cmd
}

// enumFlag is a pflag.Value restricted to a fixed set of string values.
type enumFlag[T ~string] struct {
	target  *T
	allowed []T
}

func newEnumFlag[T ~string](target *T, allowed []T) *enumFlag[T] {
	return &enumFlag[T]{target: target, allowed: allowed}
}

func (f *enumFlag[T]) String() string { return string(*f.target) }

func (f *enumFlag[T]) Set(v string) error {
	for _, a := range f.allowed {
		if string(a) == v {
			*f.target = a
			return nil
		}
	}
	names := make([]string, len(f.allowed))
	for i, a := range f.allowed {
		names[i] = string(a)
	}
	return fmt.Errorf("must be one of %s", strings.Join(names, ", "))
}

func (f *enumFlag[T]) Type() string { return "string" }
