package matching

import (
	"context"

	"github.com/your-org/mpf/internal/models"
)

// FaceMatcher is the face embedding capability. Lower distance means more similar.
type FaceMatcher interface {
	ExtractEmbedding(image []byte) ([]float32, error)
	Distance(a, b []float32) float64
}

// CandidateSource lists active records other than the given one, photos included.
type CandidateSource interface {
	ListActiveRecords(ctx context.Context, excludingID int64) ([]models.Candidate, error)
}

type StatusWriter interface {
	SetStatus(ctx context.Context, id int64, status models.RecordStatus) error
}

// Ledger records match facts. It returns inserted=false when the
// (source, candidate, method) triple already exists.
type Ledger interface {
	RecordMatch(ctx context.Context, sourceID int64, candidateID *int64, score float64,
		method models.MatchMethod, evidence models.Evidence) (fact *models.MatchFact, inserted bool, err error)
}

type Alerter interface {
	Notify(ctx context.Context, title, message string, level models.NotificationLevel, payload any) (*models.Notification, error)
}

// EmbeddingCache stores embeddings per (record, photo). Get returns nil, nil on a miss.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, recordID int64, photoKey string) ([]float32, error)
	PutEmbedding(ctx context.Context, recordID int64, photoKey string, embedding []float32) error
}

// Submission is a newly submitted or edited record to match against the active set.
type Submission struct {
	RecordID int64
	Photo    []byte
	Name     string
	Location string
	Age      string
}

// Outcome is one accepted match found during a run.
type Outcome struct {
	CandidateID   int64              `json:"candidate_id"`
	CandidateName string             `json:"candidate_name"`
	Score         float64            `json:"score"`
	Method        models.MatchMethod `json:"method"`
	MatchID       int64              `json:"match_id"`
	Recorded      bool               `json:"recorded"` // false when the fact already existed
}
