package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/pkg/dto"
)

// MatchLedger is the part of the ledger the API exposes.
type MatchLedger interface {
	ListMatches(ctx context.Context, statuses []models.MatchStatus, limit int) ([]models.MatchFact, error)
	ListMatchesForRecord(ctx context.Context, recordID int64) ([]models.MatchFact, error)
	UpdateMatchStatus(ctx context.Context, id int64, status models.MatchStatus) (*models.MatchFact, error)
}

type MatchHandler struct {
	ledger MatchLedger
}

func NewMatchHandler(ledger MatchLedger) *MatchHandler {
	return &MatchHandler{ledger: ledger}
}

// matchList renders matches strongest first for review queues.
func matchList(matches []models.MatchFact) dto.MatchListResponse {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	resp := make([]dto.MatchResponse, 0, len(matches))
	for i := range matches {
		resp = append(resp, matchResponse(&matches[i]))
	}
	return dto.MatchListResponse{Matches: resp, Total: len(resp)}
}

// List handles GET /v1/matches?status=New&status=Escalated&limit=50.
func (h *MatchHandler) List(c *gin.Context) {
	var statuses []models.MatchStatus
	for _, raw := range c.QueryArray("status") {
		st, err := models.ParseMatchStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		statuses = append(statuses, st)
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	matches, err := h.ledger.ListMatches(c.Request.Context(), statuses, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, matchList(matches))
}

// Update handles PATCH /v1/matches/:id with {"status": "..."}.
func (h *MatchHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := models.ParseMatchStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fact, err := h.ledger.UpdateMatchStatus(c.Request.Context(), id, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, matchResponse(fact))
}
