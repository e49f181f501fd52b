package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/calendarapi/internal/config"
	"example.com/calendarapi/internal/domain"
	"example.com/calendarapi/internal/journal"
	"example.com/calendarapi/internal/store"
)

type fakeRecorder struct {
	mu      sync.Mutex
	changes []domain.Change
}

func (f *fakeRecorder) Record(c domain.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, c)
}

type fakeReader struct {
	mu       sync.Mutex
	readyErr error
	queries  []journal.Query
}

func (f *fakeReader) QueryTotals(_ context.Context, q journal.Query) (journal.Totals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return journal.Totals{Count: 3, UniqueDates: 2, UniqueEvents: 2}, nil
}

func (f *fakeReader) QueryBucketsDaily(_ context.Context, q journal.Query) ([]journal.Bucket, error) {
	return []journal.Bucket{{BucketStart: 1704067200, Count: 3, UniqueDates: 2, UniqueEvents: 2}}, nil
}

func (f *fakeReader) Ready(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readyErr
}

func (f *fakeRecorder) snapshot() []domain.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Change(nil), f.changes...)
}

var fixedNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func newServer(t *testing.T, policy store.IDPolicy) (*httptest.Server, *fakeRecorder, *fakeReader) {
	t.Helper()
	rec := &fakeRecorder{}
	rd := &fakeReader{}
	cfg := config.Default()
	cfg.MaxBodyBytes = 512
	cfg.RateLimitMetricsPerMin = 2
	deps := &ServerDeps{
		Cfg:     cfg,
		Store:   store.New(policy),
		Journal: rec,
		Reader:  rd,
		Now:     func() time.Time { return fixedNow },
	}
	srv := httptest.NewServer(deps.Router())
	t.Cleanup(srv.Close)
	return srv, rec, rd
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && strings.Contains(resp.Header.Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

const eventPath = "/api/v1/calendar/event/"

func TestScenario_CRUD(t *testing.T) {
	for _, p := range []store.IDPolicy{store.AllocateOnCommit, store.AllocateOnDecode} {
		t.Run(string(p), func(t *testing.T) { scenarioCRUD(t, p) })
	}
}

func scenarioCRUD(t *testing.T, policy store.IDPolicy) {
	srv, rec, _ := newServer(t, policy)

	status, body := do(t, srv, http.MethodPost, eventPath, "2024-01-01|Meeting|Discuss budget")
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Event created successfully.", body["message"])

	status, body = do(t, srv, http.MethodGet, eventPath+"2024-01-01/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"date": "2024-01-01", "title": "Meeting", "text": "Discuss budget"}, body)

	status, body = do(t, srv, http.MethodPost, eventPath, "2024-01-01|Other|Dup")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, domain.MsgDuplicateDate, body["error"])

	status, body = do(t, srv, http.MethodPut, eventPath+"2024-01-01/", "2024-01-01|Meeting|Changed")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Event updated successfully.", body["message"])

	_, body = do(t, srv, http.MethodGet, eventPath+"2024-01-01/", "")
	assert.Equal(t, "Changed", body["text"])

	status, body = do(t, srv, http.MethodDelete, eventPath+"2024-01-01/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Event deleted successfully.", body["message"])

	status, body = do(t, srv, http.MethodGet, eventPath+"2024-01-01/", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, domain.MsgNotFound, body["error"])

	changes := rec.snapshot()
	require.Len(t, changes, 3)
	assert.Equal(t, domain.OpCreate, changes[0].Op)
	assert.Equal(t, domain.OpUpdate, changes[1].Op)
	assert.Equal(t, "Changed", changes[1].Event.Text)
	assert.Equal(t, domain.OpDelete, changes[2].Op)
	assert.NotEmpty(t, changes[0].RequestID)
	assert.Equal(t, fixedNow, changes[0].At)
}

func TestCreate_Errors(t *testing.T) {
	srv, rec, _ := newServer(t, store.AllocateOnCommit)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"bad date", "01-2024-01|T|X", domain.MsgInvalidDate},
		{"two parts", "2024-01-01|OnlyTwoParts", "Invalid RAW event data: 2024-01-01|OnlyTwoParts"},
		{"title 31", "2024-01-01|" + strings.Repeat("t", 31) + "|X", domain.MsgLengthLimits},
		{"text 201", "2024-01-01|T|" + strings.Repeat("x", 201), domain.MsgLengthLimits},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, eventPath, tc.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tc.wantMsg, body["error"])
		})
	}
	assert.Empty(t, rec.snapshot())
}

func TestPathDateValidation(t *testing.T) {
	srv, _, _ := newServer(t, store.AllocateOnCommit)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		status, body := do(t, srv, method, eventPath+"01-01-2024/", "2024-01-01|T|X")
		assert.Equal(t, http.StatusBadRequest, status, method)
		assert.Equal(t, domain.MsgInvalidPathDate, body["error"], method)
	}
}

func TestUpdate_NotFoundBeforeBody(t *testing.T) {
	srv, _, _ := newServer(t, store.AllocateOnCommit)

	for _, b := range []string{"2024-05-05|T|X", "garbage", "bad|T|X"} {
		status, body := do(t, srv, http.MethodPut, eventPath+"2024-05-05/", b)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, domain.MsgNotFound, body["error"])
	}

	status, _ := do(t, srv, http.MethodDelete, eventPath+"2024-05-05/", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdate_Validation(t *testing.T) {
	srv, _, _ := newServer(t, store.AllocateOnCommit)
	status, _ := do(t, srv, http.MethodPost, eventPath, "2024-01-01|T|X")
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, srv, http.MethodPut, eventPath+"2024-01-01/", "2024-01-01|"+strings.Repeat("t", 31)+"|X")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, domain.MsgLengthLimits, body["error"])

	status, body = do(t, srv, http.MethodPut, eventPath+"2024-01-01/", "2024-01-01|T")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "Invalid RAW event data")
}

func TestList(t *testing.T) {
	srv, _, _ := newServer(t, store.AllocateOnCommit)

	status, body := do(t, srv, http.MethodGet, eventPath, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body)

	do(t, srv, http.MethodPost, eventPath, "2024-01-02|B|b")
	do(t, srv, http.MethodPost, eventPath, "2024-01-01|A|a")

	status, body = do(t, srv, http.MethodGet, eventPath, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{
		"2024-01-01": map[string]any{"date": "2024-01-01", "title": "A", "text": "a"},
		"2024-01-02": map[string]any{"date": "2024-01-02", "title": "B", "text": "b"},
	}, body)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newServer(t, store.AllocateOnCommit)
	status, _ := do(t, srv, http.MethodPatch, eventPath+"2024-01-01/", "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestBodyLimit(t *testing.T) {
	srv, _, _ := newServer(t, store.AllocateOnCommit)
	status, body := do(t, srv, http.MethodPost, eventPath, "2024-01-01|T|"+strings.Repeat("x", 1024))
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "body too large", body["title"])
}

func TestRequestIDPropagation(t *testing.T) {
	srv, rec, _ := newServer(t, store.AllocateOnCommit)

	req, err := http.NewRequest(http.MethodPost, srv.URL+eventPath, strings.NewReader("2024-01-01|T|X"))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "client-42")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "client-42", resp.Header.Get("X-Request-ID"))
	changes := rec.snapshot()
	require.Len(t, changes, 1)
	assert.Equal(t, "client-42", changes[0].RequestID)
}

func TestFeed(t *testing.T) {
	srv, _, _ := newServer(t, store.AllocateOnCommit)
	do(t, srv, http.MethodPost, eventPath, "2024-01-01|Meeting|Discuss budget")

	resp, err := srv.Client().Get(srv.URL + "/api/v1/calendar/feed.ics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	assert.Contains(t, string(raw), "SUMMARY:Meeting")
	assert.Contains(t, string(raw), "20240101")
}

func TestMetrics(t *testing.T) {
	srv, _, rd := newServer(t, store.AllocateOnCommit)

	status, body := do(t, srv, http.MethodGet, "/api/v1/calendar/journal/metrics?op=create&group_by=day", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), body["totals"].(map[string]any)["count"])
	assert.Len(t, body["buckets"], 1)
	rd.mu.Lock()
	require.Len(t, rd.queries, 1)
	assert.Equal(t, journal.Query{Op: "create", From: fixedNow.Unix() - defaultWindowSeconds, To: fixedNow.Unix()}, rd.queries[0])
	rd.mu.Unlock()

	status, body = do(t, srv, http.MethodGet, "/api/v1/calendar/journal/metrics?op=truncate", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid parameters", body["title"])

	// Limit is 2 per minute; the third call is rejected.
	status, _ = do(t, srv, http.MethodGet, "/api/v1/calendar/journal/metrics", "")
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestMetrics_NotRegisteredWithoutReader(t *testing.T) {
	deps := &ServerDeps{Cfg: config.Default(), Store: store.New(store.AllocateOnCommit)}
	srv := httptest.NewServer(deps.Router())
	defer srv.Close()

	status, _ := do(t, srv, http.MethodGet, "/api/v1/calendar/journal/metrics", "")
	assert.Equal(t, http.StatusNotFound, status)

	// Without a journal the calendar still works.
	status, _ = do(t, srv, http.MethodPost, eventPath, "2024-01-01|T|X")
	assert.Equal(t, http.StatusCreated, status)
}

func TestHealthAndReady(t *testing.T) {
	srv, _, rd := newServer(t, store.AllocateOnCommit)

	status, body := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, _ = do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, status)

	rd.mu.Lock()
	rd.readyErr = errors.New("connection refused")
	rd.mu.Unlock()
	status, body = do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not ready", body["title"])
}

func TestWriteError_Unclassified(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(w, r, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error."}`, w.Body.String())
}
