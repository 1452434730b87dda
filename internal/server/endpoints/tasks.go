package endpoints

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/picturebook/internal/api"
	"github.com/jackzampolin/picturebook/internal/jobs"
	"github.com/jackzampolin/picturebook/internal/svcctx"
)

const tasksGroup = "tasks"

// GetTaskEndpoint handles GET /api/tasks/{id}.
type GetTaskEndpoint struct{}

func (e *GetTaskEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/tasks/{id}", e.handler
}

func (e *GetTaskEndpoint) RequiresInit() bool { return true }

func (e *GetTaskEndpoint) Group() string { return tasksGroup }

func (e *GetTaskEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	scheduler := svcctx.SchedulerFrom(r.Context())
	if scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "task scheduler not initialized")
		return
	}

	rec, err := scheduler.Manager().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Tasks are visible to their owner only.
	if rec.OwnerID != owner {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (e *GetTaskEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get an illustration task by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL()).WithOwner(api.Owner())
			var resp jobs.Record
			if err := client.Get(cmd.Context(), "/api/tasks/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListTasksResponse is the response for listing tasks.
type ListTasksResponse struct {
	Tasks []*jobs.Record `json:"tasks"`
}

// ListTasksEndpoint handles GET /api/tasks.
type ListTasksEndpoint struct{}

func (e *ListTasksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/tasks", e.handler
}

func (e *ListTasksEndpoint) RequiresInit() bool { return true }

func (e *ListTasksEndpoint) Group() string { return tasksGroup }

func (e *ListTasksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	scheduler := svcctx.SchedulerFrom(r.Context())
	if scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "task scheduler not initialized")
		return
	}

	filter := jobs.ListFilter{
		Status: jobs.Status(r.URL.Query().Get("status")),
		Key:    r.URL.Query().Get("narrative_id"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	tasks := []*jobs.Record{}
	for _, rec := range scheduler.Manager().List(r.Context(), filter) {
		if rec.OwnerID == owner {
			tasks = append(tasks, rec)
		}
	}

	writeJSON(w, http.StatusOK, ListTasksResponse{Tasks: tasks})
}

func (e *ListTasksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var status, narrativeID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List illustration tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if status != "" {
				query.Set("status", status)
			}
			if narrativeID != "" {
				query.Set("narrative_id", narrativeID)
			}
			path := "/api/tasks"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}
			client := api.NewClient(getServerURL()).WithOwner(api.Owner())
			var resp ListTasksResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (queued, running, completed, failed)")
	cmd.Flags().StringVar(&narrativeID, "narrative", "", "Filter by narrative ID")
	return cmd
}
