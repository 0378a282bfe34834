package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mpf/internal/api/handlers"
	"github.com/your-org/mpf/internal/matching"
	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/storage"
	"github.com/your-org/mpf/pkg/dto"
)

// markerFaces returns a one-value embedding per known photo; the distance to a
// candidate is looked up by that value.
type markerFaces struct {
	markers   map[string]float32
	distances map[float32]float64
}

func (f *markerFaces) ExtractEmbedding(photo []byte) ([]float32, error) {
	m, ok := f.markers[string(photo)]
	if !ok {
		return nil, errors.New("no face detected")
	}
	return []float32{m}, nil
}

func (f *markerFaces) Distance(_, b []float32) float64 {
	return f.distances[b[0]]
}

func shadedPNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 2, color.RGBA{G: shade, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) search(t *testing.T, photo []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if photo != nil {
		part, err := mw.CreateFormFile("image", "found.png")
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/search", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) withSearcher(searcher handlers.PhotoSearcher) {
	e.handler = NewRouter(RouterConfig{
		APIKey:   testKey,
		Store:    e.store,
		Blobs:    e.blobs,
		Ledger:   e.ledger,
		Alerts:   e.alerts,
		Records:  handlers.RecordOptions{Estimator: e.estimator},
		Searcher: searcher,
	})
}

func TestSearchByPhoto(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()

	near, far, noFace, found := shadedPNG(t, 10), shadedPNG(t, 20), shadedPNG(t, 30), shadedPNG(t, 40)
	best := env.submit(t, map[string]string{"name": "Jane Doe", "age": "34", "gender": "Woman"}, near)
	require.Equal(t, http.StatusCreated, best.Code, best.Body.String())
	second := env.submit(t, map[string]string{"name": "Anna Smith", "age": "30", "gender": "Woman"}, far)
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	blurry := env.submit(t, map[string]string{"name": "Blurry", "age": "50", "gender": "Man"}, noFace)
	require.Equal(t, http.StatusCreated, blurry.Code, blurry.Body.String())
	env.createRecord(t, "No Photo")

	faces := &markerFaces{
		markers:   map[string]float32{string(found): 0, string(near): 1, string(far): 2},
		distances: map[float32]float64{1: 0.15, 2: 0.5},
	}
	env.withSearcher(matching.NewEngine(matching.DefaultConfig(), matching.Deps{
		Faces:      faces,
		Candidates: storage.NewCandidateGateway(env.store, env.blobs, ""),
		Cache:      env.store,
	}))

	notesBefore, err := env.alerts.List(ctx, true, 0)
	require.NoError(t, err)

	w := env.search(t, found)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.SearchResponse](t, w)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "Jane Doe", resp.Results[0].Name)
	assert.InDelta(t, 85.0, resp.Results[0].Confidence, 1e-9)
	assert.Equal(t, "Anna Smith", resp.Results[1].Name)
	assert.InDelta(t, 50.0, resp.Results[1].Confidence, 1e-9)
	assert.Equal(t, fmt.Sprintf("/v1/records/%d/photo", resp.Results[0].RecordID), resp.Results[0].PhotoURL)
	assert.Equal(t, "34", resp.Age)
	assert.Equal(t, "Woman", resp.Gender)

	matches := decode[dto.MatchListResponse](t, env.do(t, http.MethodGet, "/v1/matches", nil))
	assert.Zero(t, matches.Total)
	notesAfter, err := env.alerts.List(ctx, true, 0)
	require.NoError(t, err)
	assert.Len(t, notesAfter, len(notesBefore))
	stats := decode[dto.StatsResponse](t, env.do(t, http.MethodGet, "/v1/stats", nil))
	assert.Equal(t, 4, stats.Missing)
	assert.Zero(t, stats.PendingReview)

	w = env.search(t, noFace)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "no face detected")

	assert.Equal(t, http.StatusBadRequest, env.search(t, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.search(t, []byte("plain text")).Code)
}

func TestSearchWithoutFaceModels(t *testing.T) {
	env := newEnv(t, false)

	w := env.search(t, pngPhoto(t))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	env.withSearcher(matching.NewEngine(matching.DefaultConfig(), matching.Deps{
		Candidates: storage.NewCandidateGateway(env.store, env.blobs, models.RecordStatusMissing),
	}))
	w = env.search(t, pngPhoto(t))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
