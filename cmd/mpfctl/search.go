package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/your-org/mpf/internal/config"
	"github.com/your-org/mpf/internal/matching"
	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/storage"
	"github.com/your-org/mpf/internal/vision"
)

// faceAnalyzer is what the search command needs from the face models.
type faceAnalyzer interface {
	matching.FaceMatcher
	EstimateAgeGender(photo []byte) (age, gender string)
}

// openFaces loads the ONNX face models. The returned func releases them.
var openFaces = func(cfg config.VisionConfig) (faceAnalyzer, func(), error) {
	if err := vision.InitRuntime(cfg.ONNXLibrary); err != nil {
		return nil, nil, err
	}
	faces, err := vision.NewFaceService(cfg)
	if err != nil {
		vision.ShutdownRuntime()
		return nil, nil, err
	}
	return faces, func() {
		faces.Close()
		vision.ShutdownRuntime()
	}, nil
}

// openBlobs connects to the photo bucket, returning nil when none is configured.
var openBlobs = func(_ context.Context, cfg config.MinIOConfig) (storage.BlobStore, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	store, err := storage.NewMinIOStore(cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <photo-file>",
		Short: "Compare a photo with every missing person record",
		Long:  "Compare a photo, such as one of a found person, with the active records. Nothing is recorded.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			photo, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read photo: %w", err)
			}
			return ctx.withServices(cmd.Context(), func(s *services) error {
				faces, release, err := openFaces(s.cfg.Vision)
				if err != nil {
					return fmt.Errorf("load face models: %w", err)
				}
				defer release()

				blobs, err := openBlobs(cmd.Context(), s.cfg.MinIO)
				if err != nil {
					return fmt.Errorf("connect to photo storage: %w", err)
				}

				engine := matching.NewEngine(matching.Config{
					FaceTolerance:    s.cfg.Matching.FaceTolerance,
					ContextThreshold: s.cfg.Matching.ContextThreshold,
					PendingStatus:    models.RecordStatus(s.cfg.Matching.PendingStatus),
				}, matching.Deps{
					Faces:      faces,
					Candidates: storage.NewCandidateGateway(s.store, blobs, models.RecordStatus(s.cfg.Matching.ActiveStatus)),
					Cache:      s.store,
				})
				hits, err := engine.Search(cmd.Context(), photo)
				if err != nil {
					return err
				}

				age, gender := faces.EstimateAgeGender(photo)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Photo analysis: age %s, gender %s\n", age, gender)
				if len(hits) == 0 {
					fmt.Fprintln(out, "No matching records")
					return nil
				}
				if limit > 0 && len(hits) > limit {
					hits = hits[:limit]
				}
				fmt.Fprint(out, renderTable(
					[]string{"Record", "Name", "Last Seen", "Age", "Confidence"},
					buildSearchRows(hits),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	return cmd
}

func buildSearchRows(hits []matching.SearchHit) [][]string {
	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, []string{
			strconv.FormatInt(h.RecordID, 10),
			h.Name,
			h.Location,
			h.Age,
			fmt.Sprintf("%.1f%%", h.Confidence),
		})
	}
	return rows
}
