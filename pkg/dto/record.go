package dto

// CreateRecordRequest is bound from the multipart form of POST /v1/records.
// The photo travels in the "image" file field.
type CreateRecordRequest struct {
	Name             string `form:"name" binding:"required"`
	Age              string `form:"age"`
	Gender           string `form:"gender"`
	LastSeenLocation string `form:"last_seen_location"`
	Description      string `form:"description"`
	Source           string `form:"source"`
}

type RecordResponse struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Age              string `json:"age"`
	Gender           string `json:"gender"`
	LastSeenLocation string `json:"last_seen_location"`
	Description      string `json:"description"`
	Status           string `json:"status"`
	TrackingCode     string `json:"tracking_code"`
	Source           string `json:"source"`
	PhotoURL         string `json:"photo_url,omitempty"`
	CreatedAt        string `json:"created_at"`
}

type CreateRecordResponse struct {
	Record         RecordResponse `json:"record"`
	MatchingQueued bool           `json:"matching_queued"`
}

type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
	Total   int              `json:"total"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type StatsResponse struct {
	Missing       int `json:"missing"`
	Found         int `json:"found"`
	PendingReview int `json:"pending_review"`
	Total         int `json:"total"`
}
