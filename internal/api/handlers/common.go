package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/storage"
	"github.com/your-org/mpf/pkg/dto"
)

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return n, true
}

// respondError maps storage sentinels to status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrRecordHasOpenMatches):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func recordResponse(r *models.CaseRecord) dto.RecordResponse {
	resp := dto.RecordResponse{
		ID:               r.ID,
		Name:             r.Name,
		Age:              r.Age,
		Gender:           r.Gender,
		LastSeenLocation: r.LastSeenLocation,
		Description:      r.Description,
		Status:           string(r.Status),
		TrackingCode:     r.TrackingCode,
		Source:           r.Source,
		CreatedAt:        formatTime(r.CreatedAt),
	}
	if r.HasPhoto() {
		resp.PhotoURL = "/v1/records/" + strconv.FormatInt(r.ID, 10) + "/photo"
	}
	return resp
}

func matchResponse(m *models.MatchFact) dto.MatchResponse {
	evidence, err := models.MarshalEvidence(m.Evidence)
	if err != nil {
		slog.Warn("encode match evidence", "id", m.ID, "error", err)
		evidence = nil
	}
	return dto.MatchResponse{
		ID:          m.ID,
		SourceID:    m.SourceID,
		CandidateID: m.CandidateID,
		Score:       m.Score,
		Method:      string(m.Method),
		Evidence:    evidence,
		Status:      string(m.Status),
		CreatedAt:   formatTime(m.CreatedAt),
	}
}

func notificationResponse(n *models.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Level:     string(n.Level),
		Payload:   n.Payload,
		Read:      n.Read,
		CreatedAt: formatTime(n.CreatedAt),
	}
}
