package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mpf/internal/alerting"
	"github.com/your-org/mpf/internal/api/handlers"
	"github.com/your-org/mpf/internal/ledger"
	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/storage"
	"github.com/your-org/mpf/pkg/dto"
)

const testKey = "secret"

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memBlobs) PutObject(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memBlobs) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, storage.ErrObjectNotFound)
	}
	return data, nil
}

func (m *memBlobs) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type fakeTasks struct {
	mu    sync.Mutex
	tasks []models.MatchTask
}

func (f *fakeTasks) PublishMatchTask(_ context.Context, task models.MatchTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

type fakeEstimator struct{ calls int }

func (f *fakeEstimator) EstimateAgeGender([]byte) (string, string) {
	f.calls++
	return "34", "Woman"
}

type testEnv struct {
	handler   http.Handler
	store     *storage.SQLiteStore
	blobs     *memBlobs
	tasks     *fakeTasks
	estimator *fakeEstimator
	ledger    *ledger.Ledger
	alerts    *alerting.Hook
}

func newEnv(t *testing.T, withTasks bool) *testEnv {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		store:     store,
		blobs:     &memBlobs{objects: map[string][]byte{}},
		estimator: &fakeEstimator{},
	}
	env.alerts = alerting.NewHook(store)
	env.ledger = ledger.New(store, env.alerts)

	opts := handlers.RecordOptions{Estimator: env.estimator}
	if withTasks {
		env.tasks = &fakeTasks{}
		opts.Tasks = env.tasks
	}

	env.handler = NewRouter(RouterConfig{
		APIKey:  testKey,
		Store:   store,
		Blobs:   env.blobs,
		Ledger:  env.ledger,
		Alerts:  env.alerts,
		Records: opts,
		Checks: map[string]handlers.Check{
			"db": store.Ping,
		},
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-API-Key", testKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func pngPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) submit(t *testing.T, fields map[string]string, photo []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if photo != nil {
		part, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/records", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) createRecord(t *testing.T, name string) *models.CaseRecord {
	t.Helper()
	r := &models.CaseRecord{Name: name}
	require.NoError(t, e.store.CreateRecord(context.Background(), r))
	return r
}

func TestSystemEndpoints(t *testing.T) {
	env := newEnv(t, false)

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	failing := NewRouter(RouterConfig{
		Checks: map[string]handlers.Check{
			"nats": func(context.Context) error { return errors.New("nats not connected") },
		},
	})
	w = httptest.NewRecorder()
	failing.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "nats not connected")
}

func TestAPIRequiresKey(t *testing.T) {
	env := newEnv(t, false)

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/records", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateRecordWithPhoto(t *testing.T) {
	env := newEnv(t, true)
	photo := pngPhoto(t)

	w := env.submit(t, map[string]string{
		"name":               "Jane Doe",
		"last_seen_location": "City Library",
		"description":        "red coat",
	}, photo)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[dto.CreateRecordResponse](t, w)
	assert.True(t, resp.MatchingQueued)
	assert.Equal(t, "34", resp.Record.Age)
	assert.Equal(t, "Woman", resp.Record.Gender)
	assert.Equal(t, "Missing", resp.Record.Status)
	assert.Equal(t, "Public", resp.Record.Source)
	assert.NotEmpty(t, resp.Record.TrackingCode)
	assert.Equal(t, fmt.Sprintf("/v1/records/%d/photo", resp.Record.ID), resp.Record.PhotoURL)

	require.Len(t, env.tasks.tasks, 1)
	assert.Equal(t, resp.Record.ID, env.tasks.tasks[0].RecordID)
	assert.Equal(t, "submitted", env.tasks.tasks[0].Reason)

	notes, err := env.alerts.List(context.Background(), false, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, alerting.NewSubmissionTitle, notes[0].Title)
	assert.Contains(t, notes[0].Message, resp.Record.TrackingCode)

	w = env.do(t, http.MethodGet, resp.Record.PhotoURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, photo, w.Body.Bytes())
}

func TestCreateRecordWithoutPhoto(t *testing.T) {
	env := newEnv(t, false)

	w := env.submit(t, map[string]string{"name": "John", "age": "40"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[dto.CreateRecordResponse](t, w)
	assert.False(t, resp.MatchingQueued)
	assert.Equal(t, "40", resp.Record.Age)
	assert.Equal(t, "N/A", resp.Record.Gender)
	assert.Empty(t, resp.Record.PhotoURL)
	assert.Zero(t, env.estimator.calls)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/records/%d/photo", resp.Record.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRecordValidation(t *testing.T) {
	env := newEnv(t, false)

	w := env.submit(t, map[string]string{"age": "40"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.submit(t, map[string]string{"name": "X"}, []byte("plain text, not a photo"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAndListRecords(t *testing.T) {
	env := newEnv(t, false)
	a := env.createRecord(t, "A")
	b := env.createRecord(t, "B")
	require.NoError(t, env.store.SetStatus(context.Background(), b.ID, models.RecordStatusFound))

	w := env.do(t, http.MethodGet, fmt.Sprintf("/v1/records/%d", a.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A", decode[dto.RecordResponse](t, w).Name)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/records/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/records/abc", nil).Code)

	w = env.do(t, http.MethodGet, "/v1/records?status=Found", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.RecordListResponse](t, w)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, b.ID, list.Records[0].ID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/records?status=Lost", nil).Code)

	w = env.do(t, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.StatsResponse{Missing: 1, Found: 1, Total: 2}, decode[dto.StatsResponse](t, w))
}

func TestUpdateRecordStatus(t *testing.T) {
	env := newEnv(t, true)
	r := env.createRecord(t, "A")
	path := fmt.Sprintf("/v1/records/%d/status", r.ID)

	w := env.do(t, http.MethodPatch, path, dto.UpdateStatusRequest{Status: "Found"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Found", decode[dto.RecordResponse](t, w).Status)
	assert.Empty(t, env.tasks.tasks)

	w = env.do(t, http.MethodPatch, path, dto.UpdateStatusRequest{Status: "Missing"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.tasks.tasks, 1)
	assert.Equal(t, "edited", env.tasks.tasks[0].Reason)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, path, dto.UpdateStatusRequest{Status: "Closed"}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, "/v1/records/999/status", dto.UpdateStatusRequest{Status: "Found"}).Code)
}

func TestMatchesReviewFlow(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	a := env.createRecord(t, "A")
	b := env.createRecord(t, "B")

	low, _, err := env.ledger.RecordMatch(ctx, a.ID, &b.ID, 75, models.MatchMethodContext,
		models.ContextEvidence{NameSimilarity: 0.75})
	require.NoError(t, err)
	high, _, err := env.ledger.RecordMatch(ctx, a.ID, &b.ID, 92, models.MatchMethodFacial,
		models.FacialEvidence{Distance: 0.08, Confidence: 92})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/v1/matches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.MatchListResponse](t, w)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, high.ID, list.Matches[0].ID)
	assert.Equal(t, low.ID, list.Matches[1].ID)
	assert.JSONEq(t, `{"type":"facial","detail":{"distance":0.08,"confidence":92}}`, string(list.Matches[0].Evidence))

	w = env.do(t, http.MethodPatch, fmt.Sprintf("/v1/matches/%d", high.ID), dto.UpdateStatusRequest{Status: "Escalated"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Escalated", decode[dto.MatchResponse](t, w).Status)

	notes, err := env.alerts.List(ctx, false, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Match escalated", notes[0].Title)

	w = env.do(t, http.MethodGet, "/v1/matches?status=Escalated", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[dto.MatchListResponse](t, w).Total)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/matches?status=Open", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, fmt.Sprintf("/v1/matches/%d", low.ID), dto.UpdateStatusRequest{Status: "Open"}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, "/v1/matches/999", dto.UpdateStatusRequest{Status: "Dismissed"}).Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/records/%d/matches", b.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[dto.MatchListResponse](t, w).Total)
}

func TestDeleteRecordPolicy(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()

	w := env.submit(t, map[string]string{"name": "With photo", "age": "5", "gender": "Man"}, pngPhoto(t))
	require.Equal(t, http.StatusCreated, w.Code)
	rec := decode[dto.CreateRecordResponse](t, w).Record
	other := env.createRecord(t, "Other")

	fact, _, err := env.ledger.RecordMatch(ctx, other.ID, &rec.ID, 80, models.MatchMethodContext, nil)
	require.NoError(t, err)

	path := fmt.Sprintf("/v1/records/%d", rec.ID)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodDelete, path, nil).Code)

	_, err = env.ledger.UpdateMatchStatus(ctx, fact.ID, models.MatchStatusDismissed)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Empty(t, env.blobs.objects)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil).Code)
}

func TestRematch(t *testing.T) {
	env := newEnv(t, true)
	r := env.createRecord(t, "A")

	w := env.do(t, http.MethodPost, fmt.Sprintf("/v1/records/%d/rematch", r.ID), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, env.tasks.tasks, 1)
	assert.Equal(t, "manual", env.tasks.tasks[0].Reason)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/records/999/rematch", nil).Code)

	noQueue := newEnv(t, false)
	r = noQueue.createRecord(t, "B")
	assert.Equal(t, http.StatusServiceUnavailable, noQueue.do(t, http.MethodPost, fmt.Sprintf("/v1/records/%d/rematch", r.ID), nil).Code)
}

func TestNotificationEndpoints(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()

	first, err := env.alerts.Notify(ctx, "one", "m", models.LevelInfo, nil)
	require.NoError(t, err)
	_, err = env.alerts.Notify(ctx, "two", "m", models.LevelWarning, map[string]int{"count": 2})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/v1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.NotificationListResponse](t, w)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, "two", list.Notifications[0].Title)

	path := fmt.Sprintf("/v1/notifications/%d", first.ID)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, path+"/read", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/notifications/999/read", nil).Code)

	w = env.do(t, http.MethodGet, "/v1/notifications", nil)
	assert.Equal(t, 1, decode[dto.NotificationListResponse](t, w).Total)

	w = env.do(t, http.MethodGet, "/v1/notifications?include_read=true", nil)
	assert.Equal(t, 2, decode[dto.NotificationListResponse](t, w).Total)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/notifications?include_read=maybe", nil).Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).Code)

	w = env.do(t, http.MethodGet, "/v1/notifications?include_read=true", nil)
	assert.Equal(t, 1, decode[dto.NotificationListResponse](t, w).Total)
}
