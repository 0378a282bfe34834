package models

import (
	"strings"

	"github.com/google/uuid"
)

// NewTrackingCode returns the short code handed to reporters to follow up on a report.
func NewTrackingCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:10])
}
