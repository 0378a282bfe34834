package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/your-org/mpf/internal/observability"
	"github.com/your-org/mpf/internal/similarity"
)

var (
	// ErrFacesUnavailable is returned by Search when no face capability is configured.
	ErrFacesUnavailable = errors.New("face matching unavailable")
	// ErrUnusablePhoto wraps the capability error for a search photo without a usable face.
	ErrUnusablePhoto = errors.New("unusable photo")
)

// SearchHit is an active record whose photo is within tolerance of the search photo.
type SearchHit struct {
	RecordID   int64   `json:"record_id"`
	Name       string  `json:"name"`
	Location   string  `json:"location"`
	Age        string  `json:"age"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// Search compares an ad-hoc photo, such as one of a found person, with every active
// record that has a photo. Nothing is written: no match facts, alerts or status
// changes. Hits are sorted by descending confidence.
func (e *Engine) Search(ctx context.Context, photo []byte) ([]SearchHit, error) {
	if e.deps.Faces == nil {
		return nil, ErrFacesUnavailable
	}
	source, err := e.extract(photo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnusablePhoto, err)
	}

	candidates, err := e.deps.Candidates.ListActiveRecords(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	var hits []SearchHit
	for _, c := range candidates {
		if len(c.Photo) == 0 {
			continue
		}
		emb, err := e.candidateEmbedding(ctx, c)
		if err != nil {
			observability.CandidateFaceFailures.Inc()
			slog.Warn("skip candidate face", "candidate", c.ID, "error", err)
			continue
		}
		distance, err := e.distance(source, emb)
		if err != nil {
			observability.CandidateFaceFailures.Inc()
			slog.Warn("skip candidate face", "candidate", c.ID, "error", err)
			continue
		}
		if distance > e.cfg.FaceTolerance {
			continue
		}
		hits = append(hits, SearchHit{
			RecordID:   c.ID,
			Name:       c.Name,
			Location:   c.Location,
			Age:        c.Age,
			Distance:   distance,
			Confidence: similarity.FaceConfidence(distance),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Confidence > hits[j].Confidence
	})
	slog.Info("photo search complete", "candidates", len(candidates), "hits", len(hits))
	return hits, nil
}
