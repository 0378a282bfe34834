package dto

type SearchResult struct {
	RecordID   int64   `json:"record_id"`
	Name       string  `json:"name"`
	Location   string  `json:"last_seen_location"`
	Age        string  `json:"age"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
	PhotoURL   string  `json:"photo_url"`
}

// SearchResponse answers POST /v1/search. Age and Gender are estimated from the
// uploaded photo and are empty when no estimator is configured.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
	Age     string         `json:"age,omitempty"`
	Gender  string         `json:"gender,omitempty"`
}
