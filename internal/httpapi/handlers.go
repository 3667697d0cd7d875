package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jacentio/notebook/projection"
	"github.com/jacentio/notebook/store"
)

// errMalformedRequest marks a body that is not valid JSON for the route.
var errMalformedRequest = errors.New("malformed request body")

type handler struct {
	reader DocumentReader
	writer DocumentWriter
	logger *zap.Logger
}

// CreatedResponse is returned by the create endpoints.
type CreatedResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listDocuments handles GET /api/notes/documents
func (h *handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.reader.ListDocuments(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, docs)
}

// getDocument handles GET /api/notes/documents/{id}
func (h *handler) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.reader.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, doc)
}

// createDocument handles POST /api/notes/documents
func (h *handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var in projection.DocumentInput
	if err := decode(w, r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}

	id, err := h.writer.PersistDocument(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

// createNote handles POST /api/notes/documents/{id}/groups/{groupId}/notes
func (h *handler) createNote(w http.ResponseWriter, r *http.Request) {
	var in projection.NoteInput
	if err := decode(w, r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}

	id, err := h.writer.PersistNote(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "groupId"), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

// deleteDocument handles DELETE /api/notes/documents/{id}
func (h *handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.writer.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errMalformedRequest, err)
	}
	return nil
}

// statusOf maps an error from the reader or writer to an HTTP status.
// Refinements are checked before ErrTransaction because they wrap it.
func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errMalformedRequest),
		errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, store.ErrIntegrity):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrTransaction),
		errors.Is(err, store.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("requestID", chimiddleware.GetReqID(r.Context())),
		zap.Error(err),
	}

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
		// Storage details stay in the log.
		msg = http.StatusText(status)
	} else {
		h.logger.Info("request rejected", fields...)
	}
	h.respondJSON(w, status, ErrorResponse{Error: msg, Code: status})
}

func (h *handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
