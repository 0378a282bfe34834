package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mpf/internal/models"
)

func TestSearchSortsHitsAndWritesNothing(t *testing.T) {
	h := newHarness(t,
		models.Candidate{ID: 1, Name: "Jane Doe", Location: "City Library", Age: "34", Photo: []byte("c1")},
		models.Candidate{ID: 2, Name: "Anna Smith", Photo: []byte("c2")},
		models.Candidate{ID: 3, Name: "Far Away", Photo: []byte("c3")},
		models.Candidate{ID: 4, Name: "No Photo"},
		models.Candidate{ID: 5, Name: "Blurry", Photo: []byte("c5")},
		models.Candidate{ID: 6, Name: "Corrupt", Photo: []byte("c6")},
	)
	h.faces.embeddings["found"] = []float32{0}
	h.faces.embeddings["c1"] = []float32{1}
	h.faces.embeddings["c2"] = []float32{2}
	h.faces.embeddings["c3"] = []float32{3}
	h.faces.panics["c6"] = true
	h.faces.distances[1] = 0.45
	h.faces.distances[2] = 0.1
	h.faces.distances[3] = 0.9

	hits, err := h.engine.Search(context.Background(), []byte("found"))
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, int64(2), hits[0].RecordID)
	assert.InDelta(t, 90.0, hits[0].Confidence, 1e-9)
	assert.Equal(t, int64(1), hits[1].RecordID)
	assert.InDelta(t, 55.0, hits[1].Confidence, 1e-9)
	assert.Equal(t, "City Library", hits[1].Location)
	assert.Equal(t, "34", hits[1].Age)
	assert.InDelta(t, 0.45, hits[1].Distance, 1e-9)

	assert.Empty(t, h.ledger.facts)
	assert.Empty(t, h.alerts.sent)
	assert.Empty(t, h.statuses.set)
	assert.Zero(t, h.faces.calls[""])
}

func TestSearchRejectsPhotoWithoutFace(t *testing.T) {
	h := newHarness(t, models.Candidate{ID: 1, Name: "Jane Doe", Photo: []byte("c1")})
	h.faces.embeddings["c1"] = []float32{1}

	_, err := h.engine.Search(context.Background(), []byte("landscape"))
	require.ErrorIs(t, err, ErrUnusablePhoto)
	assert.Zero(t, h.faces.calls["c1"])

	h.faces.panics["crash"] = true
	_, err = h.engine.Search(context.Background(), []byte("crash"))
	require.ErrorIs(t, err, ErrUnusablePhoto)
}

func TestSearchWithoutFacesOrCandidates(t *testing.T) {
	e := NewEngine(DefaultConfig(), Deps{Candidates: &fakeCandidates{}})
	_, err := e.Search(context.Background(), []byte("found"))
	require.ErrorIs(t, err, ErrFacesUnavailable)

	h := newHarness(t)
	h.faces.embeddings["found"] = []float32{0}
	h.candidates.err = errors.New("db down")
	_, err = h.engine.Search(context.Background(), []byte("found"))
	require.EqualError(t, err, "list candidates: db down")
}

func TestSearchUsesEmbeddingCache(t *testing.T) {
	cache := &fakeCache{entries: map[string][]float32{"records/1.png": {1}}}
	faces := newFakeFaces()
	faces.embeddings["found"] = []float32{0}
	faces.distances[1] = 0.2
	e := NewEngine(DefaultConfig(), Deps{
		Faces:      faces,
		Candidates: &fakeCandidates{list: []models.Candidate{{ID: 1, Name: "Jane Doe", PhotoKey: "records/1.png", Photo: []byte("c1")}}},
		Cache:      cache,
	})

	hits, err := e.Search(context.Background(), []byte("found"))
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Zero(t, faces.calls["c1"])
}
