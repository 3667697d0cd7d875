package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/notebook/projection"
	"github.com/jacentio/notebook/store"
	"github.com/jacentio/notebook/store/memstore"
)

type testAPI struct {
	gw     *memstore.Store
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	clock := func() time.Time { return time.Unix(1_700_000_000, 0) }
	gw := memstore.New(memstore.WithClock(clock))
	reader := projection.NewReader(gw, nil, projection.OrderByCreated())
	writer := projection.NewWriter(gw, nil, projection.WithClock(clock))
	return &testAPI{gw: gw, router: NewRouter(reader, writer, nil)}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRouter_Health(t *testing.T) {
	rec := newTestAPI(t).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_DocumentLifecycle(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/notes/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/notes/documents", `{
		"title": "Plan",
		"description": "Q3",
		"updatedBy": "ana",
		"groups": [{"title": "Tasks", "notes": [{"title": "Buy milk", "createdBy": "ana"}]}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	docID := decodeBody[CreatedResponse](t, rec).ID
	require.NotEmpty(t, docID)

	rec = api.do(t, http.MethodGet, "/api/notes/documents/"+docID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeBody[projection.Document](t, rec)
	assert.Equal(t, "Plan", doc.Title)
	assert.Equal(t, "ana", doc.UpdatedBy)
	require.Len(t, doc.Groups, 1)
	assert.Equal(t, docID, doc.Groups[0].Parent)
	require.Len(t, doc.Groups[0].Notes, 1)
	groupID := doc.Groups[0].ID

	path := fmt.Sprintf("/api/notes/documents/%s/groups/%s/notes", docID, groupID)
	rec = api.do(t, http.MethodPost, path, `{"title": "Call Bob", "createdBy": "ana"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	noteID := decodeBody[CreatedResponse](t, rec).ID

	rec = api.do(t, http.MethodGet, "/api/notes/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decodeBody[[]projection.Document](t, rec)
	require.Len(t, docs, 1)
	require.Len(t, docs[0].Groups[0].Notes, 2)
	var ids []string
	for _, n := range docs[0].Groups[0].Notes {
		ids = append(ids, n.ID)
	}
	assert.Contains(t, ids, noteID)

	rec = api.do(t, http.MethodDelete, "/api/notes/documents/"+docID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/notes/documents/"+docID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_VersionNotExposed(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/notes/documents", `{"title": "Plan"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/notes/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "version")
	assert.Contains(t, rec.Body.String(), `"groups":[]`)
}

func TestRouter_Errors(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/notes/documents", `{"title": "Plan", "groups": [{"title": "G"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	docID := decodeBody[CreatedResponse](t, rec).ID

	other := api.do(t, http.MethodPost, "/api/notes/documents", `{"title": "Other", "groups": [{"title": "H"}]}`)
	require.Equal(t, http.StatusCreated, other.Code)
	otherID := decodeBody[CreatedResponse](t, other).ID
	otherDoc := decodeBody[projection.Document](t, api.do(t, http.MethodGet, "/api/notes/documents/"+otherID, ""))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown document", http.MethodGet, "/api/notes/documents/404", "", http.StatusNotFound},
		{"malformed json", http.MethodPost, "/api/notes/documents", `{"title":`, http.StatusBadRequest},
		{"wrong json type", http.MethodPost, "/api/notes/documents", `{"title": 7}`, http.StatusBadRequest},
		{"missing title", http.MethodPost, "/api/notes/documents", `{"description": "x"}`, http.StatusBadRequest},
		{"nested missing title", http.MethodPost, "/api/notes/documents", `{"title": "x", "groups": [{}]}`, http.StatusBadRequest},
		{"note under unknown document", http.MethodPost, "/api/notes/documents/404/groups/1/notes", `{"title": "n"}`, http.StatusNotFound},
		{"note under unknown group", http.MethodPost, "/api/notes/documents/" + docID + "/groups/404/notes", `{"title": "n"}`, http.StatusNotFound},
		{"note under foreign group", http.MethodPost, "/api/notes/documents/" + docID + "/groups/" + otherDoc.Groups[0].ID + "/notes", `{"title": "n"}`, http.StatusBadRequest},
		{"note without title", http.MethodPost, "/api/notes/documents/" + docID + "/groups/" + otherDoc.Groups[0].ID + "/notes", `{}`, http.StatusBadRequest},
		{"malformed document id", http.MethodGet, "/api/notes/documents/latest", "", http.StatusBadRequest},
		{"note under malformed group id", http.MethodPost, "/api/notes/documents/" + docID + "/groups/tasks/notes", `{"title": "n"}`, http.StatusBadRequest},
		{"delete unknown", http.MethodDelete, "/api/notes/documents/404", "", http.StatusNotFound},
		{"method not allowed", http.MethodPut, "/api/notes/documents/" + docID, `{}`, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want != http.StatusMethodNotAllowed {
				body := decodeBody[ErrorResponse](t, rec)
				assert.Equal(t, tt.want, body.Code)
				assert.NotEmpty(t, body.Error)
			}
		})
	}
}

func TestRouter_GatewayFailureHidesDetails(t *testing.T) {
	api := newTestAPI(t)
	api.gw.FailNext(memstore.OpScan, errors.New("dial tcp 10.0.0.1:443: i/o timeout"))

	rec := api.do(t, http.MethodGet, "/api/notes/documents", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), body.Error)
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
}

type failingReader struct{ err error }

func (f failingReader) ListDocuments(context.Context) ([]projection.Document, error) {
	return nil, f.err
}

func (f failingReader) GetDocument(context.Context, string) (projection.Document, error) {
	return projection.Document{}, f.err
}

func TestRouter_Unavailable(t *testing.T) {
	router := NewRouter(failingReader{err: store.ErrUnavailable}, nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notes/documents/1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusOf(t *testing.T) {
	tx := &store.TransactionError{Table: "t", Failed: []int{1}}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound},
		{"integrity", store.ErrIntegrity, http.StatusBadRequest},
		{"invalid input", store.ErrInvalidInput, http.StatusBadRequest},
		{"malformed request", fmt.Errorf("%w: eof", errMalformedRequest), http.StatusBadRequest},
		{"already exists wraps transaction", fmt.Errorf("%w: %w", store.ErrAlreadyExists, tx), http.StatusConflict},
		{"concurrent modification wraps transaction", fmt.Errorf("%w: %w", store.ErrConcurrentModification, tx), http.StatusConflict},
		{"bare transaction", tx, http.StatusBadGateway},
		{"gateway", store.WrapGatewayError("scan", "t", store.Key{}, errors.New("boom")), http.StatusBadGateway},
		{"unavailable", store.ErrUnavailable, http.StatusServiceUnavailable},
		{"malformed item", store.ErrMalformedItem, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}
