package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/your-org/mpf/internal/models"
)

// CandidateGateway exposes the active records, photos loaded, to the matching engine.
type CandidateGateway struct {
	records RecordStore
	blobs   BlobStore
	active  models.RecordStatus
}

// NewCandidateGateway builds a gateway over records with the given active status.
// blobs may be nil, in which case candidates carry no photo.
func NewCandidateGateway(records RecordStore, blobs BlobStore, active models.RecordStatus) *CandidateGateway {
	if active == "" {
		active = models.RecordStatusMissing
	}
	return &CandidateGateway{records: records, blobs: blobs, active: active}
}

// ListActiveRecords returns every active record except excludingID. A photo that
// vanished from the bucket leaves the candidate without one; other blob errors fail.
func (g *CandidateGateway) ListActiveRecords(ctx context.Context, excludingID int64) ([]models.Candidate, error) {
	records, err := g.records.ListRecordsByStatus(ctx, g.active, excludingID)
	if err != nil {
		return nil, fmt.Errorf("list active records: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(records))
	for _, r := range records {
		c := models.Candidate{
			ID:       r.ID,
			Name:     r.Name,
			Location: r.LastSeenLocation,
			Age:      r.Age,
			PhotoKey: r.PhotoKey,
		}
		if r.HasPhoto() && g.blobs != nil {
			photo, err := g.blobs.GetObject(ctx, r.PhotoKey)
			switch {
			case errors.Is(err, ErrObjectNotFound):
				slog.Warn("candidate photo missing", "record", r.ID, "key", r.PhotoKey)
				c.PhotoKey = ""
			case err != nil:
				return nil, fmt.Errorf("load photo of record %d: %w", r.ID, err)
			default:
				c.Photo = photo
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (g *CandidateGateway) SetStatus(ctx context.Context, id int64, status models.RecordStatus) error {
	return g.records.SetStatus(ctx, id, status)
}

// LoadPhoto fetches a record photo, returning nil when the record has none or it is gone.
func LoadPhoto(ctx context.Context, blobs BlobStore, r *models.CaseRecord) ([]byte, error) {
	if blobs == nil || !r.HasPhoto() {
		return nil, nil
	}
	photo, err := blobs.GetObject(ctx, r.PhotoKey)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return photo, nil
}
