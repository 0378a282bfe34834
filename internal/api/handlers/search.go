package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mpf/internal/matching"
	"github.com/your-org/mpf/pkg/dto"
)

// PhotoSearcher compares an ad-hoc photo with the active records.
type PhotoSearcher interface {
	Search(ctx context.Context, photo []byte) ([]matching.SearchHit, error)
}

type SearchHandler struct {
	searcher  PhotoSearcher
	estimator AgeGenderEstimator
}

// NewSearchHandler accepts nil collaborators; without a searcher every search is 503.
func NewSearchHandler(searcher PhotoSearcher, estimator AgeGenderEstimator) *SearchHandler {
	return &SearchHandler{searcher: searcher, estimator: estimator}
}

// Search handles POST /v1/search (multipart "image"). Nothing is stored.
func (h *SearchHandler) Search(c *gin.Context) {
	photo, _, err := readPhoto(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	if h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face matching not initialized"})
		return
	}

	hits, err := h.searcher.Search(c.Request.Context(), photo)
	switch {
	case errors.Is(err, matching.ErrFacesUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, matching.ErrUnusablePhoto):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	case err != nil:
		respondError(c, err)
		return
	}

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	resp := dto.SearchResponse{Results: make([]dto.SearchResult, 0, len(hits)), Total: len(hits)}
	for _, hit := range hits {
		resp.Results = append(resp.Results, dto.SearchResult{
			RecordID:   hit.RecordID,
			Name:       hit.Name,
			Location:   hit.Location,
			Age:        hit.Age,
			Distance:   hit.Distance,
			Confidence: hit.Confidence,
			PhotoURL:   "/v1/records/" + strconv.FormatInt(hit.RecordID, 10) + "/photo",
		})
	}
	if h.estimator != nil {
		resp.Age, resp.Gender = h.estimator.EstimateAgeGender(photo)
	}
	c.JSON(http.StatusOK, resp)
}
