package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sheetsage/sheetsage/internal/dataset"
	"github.com/sheetsage/sheetsage/internal/log"
)

// maxUploadBytes caps the size of one uploaded file.
const maxUploadBytes = 50 << 20

// DatasetHandler serves dataset upload and management endpoints.
type DatasetHandler struct {
	ingestor *dataset.Ingestor
	store    *dataset.Store
	logger   log.Logger
}

// NewDatasetHandler creates a dataset handler.
func NewDatasetHandler(ing *dataset.Ingestor, store *dataset.Store, logger log.Logger) *DatasetHandler {
	return &DatasetHandler{ingestor: ing, store: store, logger: logger}
}

// RegisterRoutes registers dataset routes on the given mux.
func (h *DatasetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/datasets", h.upload)
	mux.HandleFunc("GET /api/datasets", h.list)
	mux.HandleFunc("DELETE /api/datasets/{id}", h.delete)
	mux.HandleFunc("POST /api/datasets/sync", h.sync)
}

// datasetJSON is the wire form of one dataset.
type datasetJSON struct {
	ID        int64     `json:"id"`
	TableName string    `json:"table_name"`
	FileName  string    `json:"file_name"`
	FileType  string    `json:"file_type"`
	Columns   []string  `json:"columns"`
	RowCount  int64     `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
}

func toDatasetJSON(m *dataset.Meta) datasetJSON {
	return datasetJSON{
		ID:        m.ID,
		TableName: m.TableName,
		FileName:  m.FileName,
		FileType:  m.FileType,
		Columns:   m.Columns,
		RowCount:  m.RowCount,
		CreatedAt: m.CreatedAt,
	}
}

// upload ingests a multipart file ("file" field), streaming progress as SSE
// payloads and finishing with the stored dataset or an error payload.
func (h *DatasetHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	writePayload := func(v any) {
		payload, err := json.Marshal(v)
		if err != nil {
			h.logger.Error("encoding upload payload failed", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	progress := func(percent int, status string) {
		writePayload(struct {
			Type    string `json:"type"`
			Percent int    `json:"percent"`
			Status  string `json:"status"`
		}{"progress", percent, status})
	}

	meta, err := h.ingestor.Ingest(r.Context(), file, header.Filename, progress)
	if err != nil {
		h.logger.Error("upload failed", "file", header.Filename, "error", err)
		writePayload(struct {
			Error string `json:"error"`
		}{uploadErrorMessage(err)})
		return
	}

	writePayload(struct {
		Type    string      `json:"type"`
		Dataset datasetJSON `json:"dataset"`
	}{"complete", toDatasetJSON(meta)})
}

// uploadErrorMessage keeps internal failure detail out of the client-facing
// message for anything that is not the uploader's fault.
func uploadErrorMessage(err error) string {
	switch {
	case errors.Is(err, dataset.ErrUnsupportedFile), errors.Is(err, dataset.ErrEmptyFile):
		return err.Error()
	default:
		return "Failed to process the uploaded file. Please try again."
	}
}

func (h *DatasetHandler) list(w http.ResponseWriter, r *http.Request) {
	metas, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("listing datasets failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list datasets")
		return
	}
	out := make([]datasetJSON, len(metas))
	for i := range metas {
		out[i] = toDatasetJSON(&metas[i])
	}
	writeJSON(w, http.StatusOK, struct {
		Datasets []datasetJSON `json:"datasets"`
	}{out})
}

// sync drops metadata for tables that no longer exist, so the catalog stays
// honest after manual schema changes.
func (h *DatasetHandler) sync(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Sync(r.Context())
	if err != nil {
		h.logger.Error("syncing datasets failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sync_failed", "failed to sync datasets")
		return
	}
	if removed == nil {
		removed = []int64{}
	}
	writeJSON(w, http.StatusOK, struct {
		Removed []int64 `json:"removed"`
	}{removed})
}

func (h *DatasetHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "dataset id must be an integer")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("dataset %d not found", id))
			return
		}
		h.logger.Error("deleting dataset failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete dataset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
