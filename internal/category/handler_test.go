// internal/category/handler_test.go
package category

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, svc Service, mutating ...func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	h, err := NewHandler(svc, quietLogger())
	require.NoError(t, err)

	r := chi.NewRouter()
	h.Register(r, mutating...)
	return r
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandlerIndexListsCategories(t *testing.T) {
	svc := newTestService(t, &memoryRepo{}, nil)
	_, err := svc.Create(context.Background(), "Books <&>", "paper")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newTestRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Books &lt;&amp;&gt;")
	assert.Contains(t, rec.Body.String(), "paper")
}

func TestHandlerAdd(t *testing.T) {
	svc := newTestService(t, &memoryRepo{}, nil)
	router := newTestRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, postForm("/add", url.Values{"name": {" Music "}}))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	list := svc.List(context.Background())
	require.Len(t, list, 1)
	assert.Equal(t, "Music", list[0].Name())
	assert.Equal(t, "", list[0].Description())
	assert.True(t, list[0].IsActive())
}

func TestHandlerAddValidationError(t *testing.T) {
	svc := newTestService(t, &memoryRepo{}, nil)

	rec := httptest.NewRecorder()
	newTestRouter(t, svc).ServeHTTP(rec, postForm("/add", url.Values{"name": {"   "}, "description": {"keep me"}}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name: is required")
	assert.Contains(t, rec.Body.String(), "keep me")
	assert.Empty(t, svc.List(context.Background()))
}

func TestHandlerDetailsAndNotFound(t *testing.T) {
	svc := newTestService(t, &memoryRepo{}, nil)
	c, _ := svc.Create(context.Background(), "Books", "")
	router := newTestRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/category/"+c.ID(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), c.ID())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/category/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/category/nope/edit", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerEdit(t *testing.T) {
	svc := newTestService(t, &memoryRepo{}, nil)
	c, _ := svc.Create(context.Background(), "Books", "old")
	router := newTestRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/category/"+c.ID()+"/edit", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="Books"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, postForm("/category/"+c.ID()+"/edit", url.Values{"name": {"Novels"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	got, _ := svc.Get(context.Background(), c.ID())
	assert.Equal(t, "Novels", got.Name())
	assert.Equal(t, "", got.Description())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, postForm("/category/"+c.ID()+"/edit", url.Values{"name": {"  "}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	got, _ = svc.Get(context.Background(), c.ID())
	assert.Equal(t, "Novels", got.Name())
}

func TestHandlerEditUnknownIDRedirects(t *testing.T) {
	svc := newTestService(t, &memoryRepo{}, nil)

	rec := httptest.NewRecorder()
	newTestRouter(t, svc).ServeHTTP(rec, postForm("/category/missing/edit", url.Values{"name": {"x"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestHandlerToggleAndDelete(t *testing.T) {
	svc := newTestService(t, &memoryRepo{}, nil)
	c, _ := svc.Create(context.Background(), "Books", "")
	router := newTestRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, postForm("/category/"+c.ID()+"/toggle", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	got, _ := svc.Get(context.Background(), c.ID())
	assert.False(t, got.IsActive())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, postForm("/category/"+c.ID()+"/delete", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, svc.List(context.Background()))
}

func TestHandlerHistory(t *testing.T) {
	journal := &journalPublisher{entries: map[string][]HistoryEntry{}}
	svc := newTestService(t, &memoryRepo{}, journal)
	c, _ := svc.Create(context.Background(), "Books", "")
	journal.entries[c.ID()] = []HistoryEntry{{Version: 1, Kind: KindCreated, Data: []byte(`{"name":"Books"}`)}}

	rec := httptest.NewRecorder()
	newTestRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/category/"+c.ID()+"/history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CategoryCreated")

	plain := newTestService(t, &memoryRepo{}, nil)
	c, _ = plain.Create(context.Background(), "Books", "")
	rec = httptest.NewRecorder()
	newTestRouter(t, plain).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/category/"+c.ID()+"/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerMutatingMiddlewareOnlyGuardsPosts(t *testing.T) {
	svc := newTestService(t, &memoryRepo{}, nil)
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}
	router := newTestRouter(t, svc, deny)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, postForm("/add", url.Values{"name": {"x"}}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, svc.List(context.Background()))
}

func TestHandlerHealthz(t *testing.T) {
	svc := newTestService(t, &memoryRepo{}, nil)

	rec := httptest.NewRecorder()
	newTestRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
