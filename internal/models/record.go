package models

import "time"

type RecordStatus string

const (
	RecordStatusMissing       RecordStatus = "Missing"
	RecordStatusFound         RecordStatus = "Found"
	RecordStatusPendingReview RecordStatus = "Pending Review"
)

func (s RecordStatus) Valid() bool {
	switch s {
	case RecordStatusMissing, RecordStatusFound, RecordStatusPendingReview:
		return true
	}
	return false
}

// CaseRecord is a report of a missing or sighted person.
type CaseRecord struct {
	ID               int64        `json:"id" db:"id"`
	Name             string       `json:"name" db:"name"`
	Age              string       `json:"age" db:"age"`
	Gender           string       `json:"gender" db:"gender"`
	LastSeenLocation string       `json:"last_seen_location" db:"last_seen_location"`
	Description      string       `json:"description" db:"description"`
	PhotoKey         string       `json:"photo_key,omitempty" db:"photo_key"`
	Status           RecordStatus `json:"status" db:"status"`
	TrackingCode     string       `json:"tracking_code" db:"tracking_code"`
	Source           string       `json:"source" db:"source"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
}

// HasPhoto reports whether a photograph is stored for the record.
func (r *CaseRecord) HasPhoto() bool {
	return r.PhotoKey != ""
}

// RecordStats counts records per status.
type RecordStats struct {
	Missing       int `json:"missing"`
	Found         int `json:"found"`
	PendingReview int `json:"pending_review"`
	Total         int `json:"total"`
}

// Candidate is the view of an active record the matching engine compares against.
type Candidate struct {
	ID       int64
	Name     string
	Location string
	Age      string
	PhotoKey string
	Photo    []byte
}
