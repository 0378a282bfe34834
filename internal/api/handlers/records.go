package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/storage"
	"github.com/your-org/mpf/pkg/dto"
)

const maxPhotoBytes = 10 << 20

// photoTypes maps accepted upload content types to object key extensions.
var photoTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
}

// TaskPublisher queues matching runs.
type TaskPublisher interface {
	PublishMatchTask(ctx context.Context, task models.MatchTask) error
}

// AgeGenderEstimator fills in demographics missing from a report.
type AgeGenderEstimator interface {
	EstimateAgeGender(photo []byte) (age, gender string)
}

type SubmissionNotifier interface {
	NotifyNewSubmission(ctx context.Context, r *models.CaseRecord) (*models.Notification, error)
}

// RecordOptions carries the optional collaborators of RecordHandler.
type RecordOptions struct {
	Tasks         TaskPublisher
	Estimator     AgeGenderEstimator
	Notifier      SubmissionNotifier
	ActiveStatus  models.RecordStatus
	PendingStatus models.RecordStatus
}

type RecordHandler struct {
	records  storage.RecordStore
	blobs    storage.BlobStore
	matches  MatchLedger
	opts     RecordOptions
	statuses map[models.RecordStatus]bool
}

func NewRecordHandler(records storage.RecordStore, blobs storage.BlobStore, matches MatchLedger, opts RecordOptions) *RecordHandler {
	if opts.ActiveStatus == "" {
		opts.ActiveStatus = models.RecordStatusMissing
	}
	if opts.PendingStatus == "" {
		opts.PendingStatus = models.RecordStatusPendingReview
	}
	return &RecordHandler{
		records: records,
		blobs:   blobs,
		matches: matches,
		opts:    opts,
		statuses: map[models.RecordStatus]bool{
			opts.ActiveStatus:        true,
			opts.PendingStatus:       true,
			models.RecordStatusFound: true,
		},
	}
}

// readPhoto returns the uploaded image and its content type, nil when none was sent.
func readPhoto(c *gin.Context) ([]byte, string, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if fh.Size > maxPhotoBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes", maxPhotoBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	ct := http.DetectContentType(data)
	if _, ok := photoTypes[ct]; !ok {
		return nil, "", fmt.Errorf("image must be PNG or JPEG, got %s", ct)
	}
	return data, ct, nil
}

// Create handles POST /v1/records (multipart form).
func (h *RecordHandler) Create(c *gin.Context) {
	var req dto.CreateRecordRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	photo, contentType, err := readPhoto(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if photo != nil && h.blobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage unavailable"})
		return
	}

	ctx := c.Request.Context()
	r := &models.CaseRecord{
		Name:             req.Name,
		Age:              req.Age,
		Gender:           req.Gender,
		LastSeenLocation: req.LastSeenLocation,
		Description:      req.Description,
		Status:           h.opts.ActiveStatus,
		Source:           req.Source,
	}
	if r.Source == "" {
		r.Source = "Public"
	}
	h.fillDemographics(r, photo)

	if photo != nil {
		r.PhotoKey = storage.PhotoKey(photoTypes[contentType])
		if err := h.blobs.PutObject(ctx, r.PhotoKey, photo, contentType); err != nil {
			respondError(c, err)
			return
		}
	}

	if err := h.records.CreateRecord(ctx, r); err != nil {
		if r.PhotoKey != "" {
			_ = h.blobs.DeleteObject(ctx, r.PhotoKey)
		}
		respondError(c, err)
		return
	}
	slog.Info("record created", "id", r.ID, "source", r.Source, "photo", r.HasPhoto())

	if h.opts.Notifier != nil {
		if _, err := h.opts.Notifier.NotifyNewSubmission(ctx, r); err != nil {
			slog.Warn("notify new submission", "id", r.ID, "error", err)
		}
	}

	c.JSON(http.StatusCreated, dto.CreateRecordResponse{
		Record:         recordResponse(r),
		MatchingQueued: h.queue(ctx, r.ID, "submitted"),
	})
}

// fillDemographics estimates age and gender from the photo when the reporter left them out.
func (h *RecordHandler) fillDemographics(r *models.CaseRecord, photo []byte) {
	if r.Age != "" && r.Gender != "" {
		return
	}
	age, gender := "N/A", "N/A"
	if photo != nil && h.opts.Estimator != nil {
		age, gender = h.opts.Estimator.EstimateAgeGender(photo)
	}
	if r.Age == "" {
		r.Age = age
	}
	if r.Gender == "" {
		r.Gender = gender
	}
}

func (h *RecordHandler) queue(ctx context.Context, id int64, reason string) bool {
	if h.opts.Tasks == nil {
		return false
	}
	task := models.MatchTask{RecordID: id, Reason: reason, RequestedAt: time.Now().UTC()}
	if err := h.opts.Tasks.PublishMatchTask(ctx, task); err != nil {
		slog.Warn("queue matching run", "id", id, "error", err)
		return false
	}
	return true
}

// List handles GET /v1/records?status=Missing&limit=100.
func (h *RecordHandler) List(c *gin.Context) {
	status := models.RecordStatus(c.Query("status"))
	if status != "" && !h.statuses[status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	records, err := h.records.ListRecords(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.RecordResponse, 0, len(records))
	for i := range records {
		resp = append(resp, recordResponse(&records[i]))
	}
	c.JSON(http.StatusOK, dto.RecordListResponse{Records: resp, Total: len(resp)})
}

func (h *RecordHandler) load(c *gin.Context) (*models.CaseRecord, bool) {
	id, ok := parseID(c)
	if !ok {
		return nil, false
	}
	r, err := h.records.GetRecord(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return nil, false
	}
	return r, true
}

func (h *RecordHandler) Get(c *gin.Context) {
	r, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, recordResponse(r))
}

// Photo streams the stored photograph.
func (h *RecordHandler) Photo(c *gin.Context) {
	r, ok := h.load(c)
	if !ok {
		return
	}
	photo, err := storage.LoadPhoto(c.Request.Context(), h.blobs, r)
	if err != nil {
		respondError(c, err)
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record has no photo"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(photo), photo)
}

// UpdateStatus handles PATCH /v1/records/:id/status. Reopening a record queues a fresh run.
func (h *RecordHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := models.RecordStatus(req.Status)
	if !h.statuses[status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	ctx := c.Request.Context()
	if err := h.records.SetStatus(ctx, id, status); err != nil {
		respondError(c, err)
		return
	}
	r, err := h.records.GetRecord(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if status == h.opts.ActiveStatus {
		h.queue(ctx, id, "edited")
	}
	c.JSON(http.StatusOK, recordResponse(r))
}

// Delete removes a record unless it still has undismissed matches (409).
func (h *RecordHandler) Delete(c *gin.Context) {
	r, ok := h.load(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.records.DeleteRecord(ctx, r.ID); err != nil {
		respondError(c, err)
		return
	}
	if r.HasPhoto() && h.blobs != nil {
		if err := h.blobs.DeleteObject(ctx, r.PhotoKey); err != nil {
			slog.Warn("delete record photo", "id", r.ID, "key", r.PhotoKey, "error", err)
		}
	}
	slog.Info("record deleted", "id", r.ID)
	c.Status(http.StatusNoContent)
}

// Rematch queues a manual matching run for an existing record.
func (h *RecordHandler) Rematch(c *gin.Context) {
	r, ok := h.load(c)
	if !ok {
		return
	}
	if h.opts.Tasks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "matching queue unavailable"})
		return
	}
	if !h.queue(c.Request.Context(), r.ID, "manual") {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue matching run"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "record_id": r.ID})
}

// Matches lists the matches a record takes part in, strongest first.
func (h *RecordHandler) Matches(c *gin.Context) {
	r, ok := h.load(c)
	if !ok {
		return
	}
	matches, err := h.matches.ListMatchesForRecord(c.Request.Context(), r.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, matchList(matches))
}

func (h *RecordHandler) Stats(c *gin.Context) {
	stats, err := h.records.RecordStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.StatsResponse{
		Missing:       stats.Missing,
		Found:         stats.Found,
		PendingReview: stats.PendingReview,
		Total:         stats.Total,
	})
}
