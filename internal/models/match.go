package models

import (
	"fmt"
	"time"
)

type MatchMethod string

const (
	MatchMethodFacial  MatchMethod = "facial"
	MatchMethodContext MatchMethod = "context"
)

func (m MatchMethod) Valid() bool {
	return m == MatchMethodFacial || m == MatchMethodContext
}

type MatchStatus string

const (
	MatchStatusNew         MatchStatus = "New"
	MatchStatusUnderReview MatchStatus = "Under Review"
	MatchStatusEscalated   MatchStatus = "Escalated"
	MatchStatusDismissed   MatchStatus = "Dismissed"
)

// MatchStatuses lists every status an operator may set.
var MatchStatuses = []MatchStatus{
	MatchStatusNew,
	MatchStatusUnderReview,
	MatchStatusEscalated,
	MatchStatusDismissed,
}

func (s MatchStatus) Valid() bool {
	for _, v := range MatchStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseMatchStatus accepts the canonical status names.
func ParseMatchStatus(s string) (MatchStatus, error) {
	st := MatchStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown match status %q", s)
	}
	return st, nil
}

// MatchFact is persisted evidence that two case records may refer to the same person.
// CandidateID is nil for hits not tied to a specific record.
type MatchFact struct {
	ID          int64       `json:"id" db:"id"`
	SourceID    int64       `json:"source_id" db:"source_id"`
	CandidateID *int64      `json:"candidate_id,omitempty" db:"candidate_id"`
	Score       float64     `json:"score" db:"score"`
	Method      MatchMethod `json:"method" db:"method"`
	Evidence    Evidence    `json:"evidence" db:"evidence"`
	Status      MatchStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// Involves reports whether the record takes part in the match as source or candidate.
func (m *MatchFact) Involves(recordID int64) bool {
	if m.SourceID == recordID {
		return true
	}
	return m.CandidateID != nil && *m.CandidateID == recordID
}

// MatchKey identifies a match fact for deduplication.
type MatchKey struct {
	SourceID    int64
	CandidateID int64 // 0 when the fact has no candidate
	Method      MatchMethod
}

func NewMatchKey(sourceID int64, candidateID *int64, method MatchMethod) MatchKey {
	k := MatchKey{SourceID: sourceID, Method: method}
	if candidateID != nil {
		k.CandidateID = *candidateID
	}
	return k
}

func (k MatchKey) String() string {
	return fmt.Sprintf("%d/%d/%s", k.SourceID, k.CandidateID, k.Method)
}
