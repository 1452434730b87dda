package endpoints

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/picturebook/internal/store"
	"github.com/jackzampolin/picturebook/internal/svcctx"
)

// BlobEndpoint handles GET /blobs/{key...}. It makes the public URLs
// returned by the fs and NATS blob stores fetchable.
type BlobEndpoint struct{}

func (e *BlobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/blobs/{key...}", e.handler
}

func (e *BlobEndpoint) RequiresInit() bool { return true }

func (e *BlobEndpoint) Command(_ func() string) *cobra.Command { return nil }

func (e *BlobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := store.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	blobs := svcctx.BlobsFrom(r.Context())
	if blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "blob store not initialized")
		return
	}

	blob, err := blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "blob not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := blob.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(blob.Data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	// Keys embed a unique suffix, so stored bytes never change.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(blob.Data)
}
