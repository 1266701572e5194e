package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"advert-service/internal/domain"
	"advert-service/internal/infrastructure/metrics"
	"advert-service/internal/repository"
	"advert-service/internal/repository/memory"
	"advert-service/internal/service"
	"advert-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()

	reg := metrics.NewRegistry()
	store := memory.NewStore()
	svc := service.NewAdvertService(nil, time.Minute, metrics.NewServiceMetrics(reg))
	if opts.Gatherer == nil {
		opts.Gatherer = reg
	}

	r := NewRouter(svc, store, logger.Discard(), metrics.NewHandlerMetrics(reg), opts)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestAdvertLifecycle(t *testing.T) {
	srv := newTestServer(t, Options{})

	code, body := call(t, srv, http.MethodPost, "/adverts", `{"title":"Bike","description":"Red bike","owner":"alice"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `{"id":1}`, body)

	code, body = call(t, srv, http.MethodGet, "/adverts/1", "")
	require.Equal(t, http.StatusOK, code, body)

	var ad domain.Advert
	require.NoError(t, json.Unmarshal([]byte(body), &ad))
	assert.Equal(t, int64(1), ad.ID)
	assert.Equal(t, "Bike", ad.Title)
	assert.Equal(t, "Red bike", ad.Description)
	assert.Equal(t, "alice", ad.Owner)
	assert.False(t, ad.CreationDate.IsZero())

	var rawAd map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &rawAd))
	_, err := time.Parse(time.RFC3339Nano, rawAd["creation_date"].(string))
	assert.NoError(t, err, "creation_date must be ISO-8601")

	code, body = call(t, srv, http.MethodPatch, "/adverts/1", `{"owner":"bob"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `{"id":1}`, body)

	code, body = call(t, srv, http.MethodGet, "/adverts/1", "")
	require.Equal(t, http.StatusOK, code, body)
	var patched domain.Advert
	require.NoError(t, json.Unmarshal([]byte(body), &patched))
	assert.Equal(t, "bob", patched.Owner)
	assert.Equal(t, "Bike", patched.Title)
	assert.Equal(t, "Red bike", patched.Description)
	assert.True(t, ad.CreationDate.Equal(patched.CreationDate))

	code, body = call(t, srv, http.MethodDelete, "/adverts/1", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `{"status":"deleted"}`, body)

	code, body = call(t, srv, http.MethodGet, "/adverts/1", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"error":"Advert with id 1 not found"}`, body)
}

func TestMissingAdvertHasSameShapeForEveryMethod(t *testing.T) {
	srv := newTestServer(t, Options{})

	for _, tc := range []struct{ method, body string }{
		{http.MethodGet, ""},
		{http.MethodPatch, `{"title":"X"}`},
		{http.MethodDelete, ""},
	} {
		code, body := call(t, srv, tc.method, "/adverts/404", tc.body)
		assert.Equal(t, http.StatusNotFound, code, tc.method)
		assert.JSONEq(t, `{"error":"Advert with id 404 not found"}`, body, tc.method)
	}
}

func TestNotFoundMessageUsesNumericID(t *testing.T) {
	srv := newTestServer(t, Options{})

	code, body := call(t, srv, http.MethodGet, "/adverts/007", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"error":"Advert with id 7 not found"}`, body)

	code, _ = call(t, srv, http.MethodPost, "/adverts", `{"title":"Bike","description":"Red bike","owner":"alice"}`)
	require.Equal(t, http.StatusOK, code)

	code, body = call(t, srv, http.MethodGet, "/adverts/01", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body, `"id":1`)
}

func TestPatchOfMissingAdvertIsNotFoundWhateverTheBody(t *testing.T) {
	srv := newTestServer(t, Options{})

	code, body := call(t, srv, http.MethodPatch, "/adverts/999", `{"id":5}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"error":"Advert with id 999 not found"}`, body)
}

func TestPatchCannotTouchReadOnlyFields(t *testing.T) {
	srv := newTestServer(t, Options{})

	code, _ := call(t, srv, http.MethodPost, "/adverts", `{"title":"Bike","description":"Red bike","owner":"alice"}`)
	require.Equal(t, http.StatusOK, code)
	_, before := call(t, srv, http.MethodGet, "/adverts/1", "")

	code, body := call(t, srv, http.MethodPatch, "/adverts/1", `{"creation_date":"2000-01-01T00:00:00Z","title":"X"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.JSONEq(t, `{"error":"field \"creation_date\" cannot be updated"}`, body)

	code, body = call(t, srv, http.MethodPatch, "/adverts/1", `{"id":99}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.JSONEq(t, `{"error":"field \"id\" cannot be updated"}`, body)

	_, after := call(t, srv, http.MethodGet, "/adverts/1", "")
	assert.JSONEq(t, before, after)
}

func TestPostHonoursExplicitCreationDate(t *testing.T) {
	srv := newTestServer(t, Options{})

	code, body := call(t, srv, http.MethodPost, "/adverts",
		`{"title":"Old","description":"Vintage","owner":"carol","creation_date":"1999-12-31T23:59:59Z"}`)
	require.Equal(t, http.StatusOK, code, body)

	_, body = call(t, srv, http.MethodGet, "/adverts/1", "")
	var ad domain.Advert
	require.NoError(t, json.Unmarshal([]byte(body), &ad))
	assert.Equal(t, time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), ad.CreationDate)
}

func TestPostAcceptsEmptyStrings(t *testing.T) {
	srv := newTestServer(t, Options{})

	code, body := call(t, srv, http.MethodPost, "/adverts", `{"title":"","description":"d","owner":"o"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `{"id":1}`, body)

	code, body = call(t, srv, http.MethodPatch, "/adverts/1", `{"owner":""}`)
	assert.Equal(t, http.StatusOK, code, body)
}

func TestPostRejectsOverlongTitle(t *testing.T) {
	srv := newTestServer(t, Options{})

	long := strings.Repeat("x", domain.MaxTitleLength+1)
	code, body := call(t, srv, http.MethodPost, "/adverts", `{"title":"`+long+`","description":"d","owner":"o"}`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.JSONEq(t, `{"error":"invalid advert: title must be at most 100 characters"}`, body)
}

func TestNonNumericIDFallsThroughToRouter(t *testing.T) {
	srv := newTestServer(t, Options{})

	for _, path := range []string{"/adverts/abc", "/adverts/-1", "/adverts/1a", "/adverts/1/extra"} {
		code, body := call(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, code, path)
		assert.JSONEq(t, `{"error":"not found"}`, body, path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Options{})

	code, body := call(t, srv, http.MethodPut, "/adverts/1", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.JSONEq(t, `{"error":"method not allowed"}`, body)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, Options{})

	code, body := call(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	call(t, srv, http.MethodGet, "/adverts/1", "")

	code, body = call(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `handler_requests_total{endpoint="/adverts/{id}",method="GET",status="not_found"} 1`)
	assert.Contains(t, body, `service_methods_total{method="GetAdvert",status="not_found"} 1`)
}

func TestRequestIDHeaderIsAccepted(t *testing.T) {
	srv := newTestServer(t, Options{})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "abc-123")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitApplies(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitRPS: 1, RateLimitBurst: 1})

	code, _ := call(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)

	code, body := call(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.JSONEq(t, `{"error":"too many requests"}`, body)
}

// deadlineService reports whether GetAdvert ran under a context deadline.
type deadlineService struct {
	service.AdvertService
	hadDeadline atomic.Bool
}

func (s *deadlineService) GetAdvert(ctx context.Context, sess repository.Session, id int64) (*domain.Advert, error) {
	_, ok := ctx.Deadline()
	s.hadDeadline.Store(ok)
	return &domain.Advert{ID: id}, nil
}

func TestRequestTimeoutBoundsHandlerContext(t *testing.T) {
	reg := metrics.NewRegistry()
	svc := &deadlineService{}
	r := NewRouter(svc, memory.NewStore(), logger.Discard(), metrics.NewHandlerMetrics(reg), Options{RequestTimeout: time.Minute})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	code, _ := call(t, srv, http.MethodGet, "/adverts/1", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, svc.hadDeadline.Load())
}
