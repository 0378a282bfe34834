package models

import "time"

// MatchTask is the message published to NATS to request a matching run.
type MatchTask struct {
	RecordID    int64     `json:"record_id"`
	Reason      string    `json:"reason"` // submitted, edited, manual
	RequestedAt time.Time `json:"requested_at"`
}
