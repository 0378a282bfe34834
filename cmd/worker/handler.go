package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/mpf/internal/matching"
	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/storage"
)

type engine interface {
	Run(ctx context.Context, sub matching.Submission) ([]matching.Outcome, error)
}

// taskHandler turns a queued match task into an engine run. Only records in the
// active or pending status are matched.
type taskHandler struct {
	records storage.RecordStore
	blobs   storage.BlobStore
	engine  engine
	active  models.RecordStatus
	pending models.RecordStatus
}

func newTaskHandler(records storage.RecordStore, blobs storage.BlobStore, eng engine, active, pending models.RecordStatus) *taskHandler {
	if active == "" {
		active = models.RecordStatusMissing
	}
	if pending == "" {
		pending = models.RecordStatusPendingReview
	}
	return &taskHandler{records: records, blobs: blobs, engine: eng, active: active, pending: pending}
}

func (h *taskHandler) handle(ctx context.Context, task models.MatchTask) error {
	r, err := h.records.GetRecord(ctx, task.RecordID)
	if err != nil {
		return fmt.Errorf("load record %d: %w", task.RecordID, err)
	}
	if r == nil {
		slog.Warn("drop task for unknown record", "record", task.RecordID)
		return nil
	}
	if r.Status != h.active && r.Status != h.pending {
		slog.Info("skip matching for closed record", "record", r.ID, "status", r.Status)
		return nil
	}

	photo, err := storage.LoadPhoto(ctx, h.blobs, r)
	if err != nil {
		return fmt.Errorf("load photo of record %d: %w", r.ID, err)
	}

	outcomes, err := h.engine.Run(ctx, matching.Submission{
		RecordID: r.ID,
		Photo:    photo,
		Name:     r.Name,
		Location: r.LastSeenLocation,
		Age:      r.Age,
	})
	if err != nil {
		return fmt.Errorf("match record %d: %w", r.ID, err)
	}

	slog.Info("matching run finished",
		"record", r.ID,
		"reason", task.Reason,
		"photo", photo != nil,
		"matches", len(outcomes),
	)
	return nil
}
