// Package httpapi exposes the notebook reader and writer over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jacentio/notebook/projection"
)

// DocumentReader is the read side served by the router.
type DocumentReader interface {
	ListDocuments(ctx context.Context) ([]projection.Document, error)
	GetDocument(ctx context.Context, id string) (projection.Document, error)
}

// DocumentWriter is the write side served by the router.
type DocumentWriter interface {
	PersistDocument(ctx context.Context, in projection.DocumentInput) (string, error)
	PersistNote(ctx context.Context, documentID, groupID string, in projection.NoteInput) (string, error)
	DeleteDocument(ctx context.Context, id string) error
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// NewRouter builds the chi router for the notebook API. The returned mux can
// be served directly or handed to the Lambda adapter.
func NewRouter(reader DocumentReader, writer DocumentWriter, logger *zap.Logger) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{reader: reader, writer: writer, logger: logger}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(logger))

	router.Get("/healthz", h.health)

	router.Route("/api/notes/documents", func(r chi.Router) {
		r.Get("/", h.listDocuments)
		r.Post("/", h.createDocument)
		r.Get("/{id}", h.getDocument)
		r.Delete("/{id}", h.deleteDocument)
		r.Post("/{id}/groups/{groupId}/notes", h.createNote)
	})

	return router
}

// requestLogger logs one line per request at Debug; error responses are
// logged by the handlers.
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
