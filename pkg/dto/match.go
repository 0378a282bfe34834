package dto

import "encoding/json"

type MatchResponse struct {
	ID          int64           `json:"id"`
	SourceID    int64           `json:"source_id"`
	CandidateID *int64          `json:"candidate_id,omitempty"`
	Score       float64         `json:"score"`
	Method      string          `json:"method"`
	Evidence    json.RawMessage `json:"evidence,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
}

type MatchListResponse struct {
	Matches []MatchResponse `json:"matches"`
	Total   int             `json:"total"`
}
