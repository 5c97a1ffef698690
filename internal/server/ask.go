package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sheetsage/sheetsage/internal/log"
	"github.com/sheetsage/sheetsage/internal/query"
	"github.com/sheetsage/sheetsage/internal/stream"
)

// Asker runs one question through the ask pipeline, emitting protocol
// events as it goes.
type Asker interface {
	Ask(ctx context.Context, req query.AskRequest, emit query.Emitter) error
}

// AskHandler serves the streamed answer endpoints.
type AskHandler struct {
	engine Asker
	logger log.Logger
}

// NewAskHandler creates an ask handler over engine.
func NewAskHandler(engine Asker, logger log.Logger) *AskHandler {
	return &AskHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers ask routes on the given mux.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ask/stream", h.handleSSE)
	mux.HandleFunc("POST /api/ask/ndjson", h.handleNDJSON)
}

type askRequest struct {
	Question  string `json:"question"`
	DatasetID *int64 `json:"dataset_id"`
	ChatID    *int64 `json:"chat_id"`
}

// handleSSE streams the answer with SSE framing: each payload on a
// "data: " line followed by a blank line.
func (h *AskHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	h.serve(w, r, "\n\n")
}

// handleNDJSON streams the answer with newline framing: one "data: " line
// per payload.
func (h *AskHandler) handleNDJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	h.serve(w, r, "\n")
}

func (h *AskHandler) serve(w http.ResponseWriter, r *http.Request, terminator string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "missing_question", "question is required")
		return
	}

	emit := &streamEmitter{w: w, flusher: flusher, terminator: terminator}
	err := h.engine.Ask(r.Context(), query.AskRequest{
		Question:  req.Question,
		DatasetID: req.DatasetID,
		ChatID:    req.ChatID,
	}, emit)
	if err != nil {
		// The client is gone; there is nobody left to tell.
		h.logger.Warn("answer stream aborted", "error", err)
	}
}

// streamEmitter writes protocol payloads to an HTTP response, flushing
// after each one so tokens reach the client as they are generated.
type streamEmitter struct {
	w          http.ResponseWriter
	flusher    http.Flusher
	terminator string
}

func (e *streamEmitter) Metadata(m *stream.Metadata) error {
	payload, err := stream.EncodeMetadata(m)
	if err != nil {
		return err
	}
	return e.write(payload)
}

func (e *streamEmitter) Token(token string) error {
	payload, err := stream.EncodeToken(token)
	if err != nil {
		return err
	}
	return e.write(payload)
}

func (e *streamEmitter) Done(elapsedSeconds float64) error {
	payload, err := stream.EncodeDone(elapsedSeconds)
	if err != nil {
		return err
	}
	return e.write(payload)
}

func (e *streamEmitter) Error(message string) error {
	payload, err := stream.EncodeError(message)
	if err != nil {
		return err
	}
	return e.write(payload)
}

func (e *streamEmitter) write(payload []byte) error {
	if _, err := fmt.Fprintf(e.w, "data: %s%s", payload, e.terminator); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}
