package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/observability"
	"github.com/your-org/mpf/internal/similarity"
)

// AlertTitle is the title of the aggregated notification raised by a run with matches.
const AlertTitle = "Potential match detected"

type Config struct {
	// FaceTolerance is the largest embedding distance accepted as a facial match (inclusive).
	FaceTolerance float64
	// ContextThreshold is the smallest combined contextual score accepted (inclusive).
	ContextThreshold float64
	PendingStatus    models.RecordStatus
}

func DefaultConfig() Config {
	return Config{
		FaceTolerance:    0.6,
		ContextThreshold: 0.72,
		PendingStatus:    models.RecordStatusPendingReview,
	}
}

// Deps are the collaborators of the engine. Faces and Cache are optional; without
// Faces only contextual matching runs.
type Deps struct {
	Faces      FaceMatcher
	Candidates CandidateSource
	Statuses   StatusWriter
	Ledger     Ledger
	Alerts     Alerter
	Cache      EmbeddingCache
}

// Engine runs the cross-report matching pipeline for one submission at a time.
// Runs may overlap; deduplication is the ledger's job.
type Engine struct {
	cfg  Config
	deps Deps
}

func NewEngine(cfg Config, deps Deps) *Engine {
	return &Engine{cfg: cfg, deps: deps}
}

// Run compares the submission against every active record, records accepted matches,
// raises one alert when anything matched and moves the involved records to the pending
// status. Outcomes are returned in discovery order. Only storage failures are returned
// as errors; face extraction problems just drop the facial signal.
func (e *Engine) Run(ctx context.Context, sub Submission) ([]Outcome, error) {
	start := time.Now()
	outcomes, err := e.run(ctx, sub)
	observability.MatchingRunDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		observability.MatchingRuns.WithLabelValues("error").Inc()
	case len(outcomes) == 0:
		observability.MatchingRuns.WithLabelValues("no_match").Inc()
	default:
		observability.MatchingRuns.WithLabelValues("match").Inc()
	}
	return outcomes, err
}

func (e *Engine) run(ctx context.Context, sub Submission) ([]Outcome, error) {
	candidates, err := e.deps.Candidates.ListActiveRecords(ctx, sub.RecordID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		slog.Debug("no active candidates", "record", sub.RecordID)
		return nil, nil
	}

	source := e.sourceEmbedding(sub)

	var outcomes []Outcome
	for _, c := range candidates {
		if source != nil && len(c.Photo) > 0 {
			out, ok, err := e.checkFace(ctx, sub.RecordID, source, c)
			if err != nil {
				return nil, err
			}
			if ok {
				outcomes = append(outcomes, out)
			}
		}

		out, ok, err := e.checkContext(ctx, sub, c)
		if err != nil {
			return nil, err
		}
		if ok {
			outcomes = append(outcomes, out)
		}
	}

	if len(outcomes) == 0 {
		return nil, nil
	}

	if err := e.alert(ctx, sub, outcomes); err != nil {
		return nil, err
	}
	if err := e.markPending(ctx, sub.RecordID, outcomes); err != nil {
		return nil, err
	}

	slog.Info("matching run complete", "record", sub.RecordID, "candidates", len(candidates), "matches", len(outcomes))
	return outcomes, nil
}

func (e *Engine) sourceEmbedding(sub Submission) []float32 {
	if len(sub.Photo) == 0 || e.deps.Faces == nil {
		return nil
	}
	emb, err := e.extract(sub.Photo)
	if err != nil {
		slog.Warn("skip facial matching for run", "record", sub.RecordID, "error", err)
		return nil
	}
	return emb
}

func (e *Engine) checkFace(ctx context.Context, sourceID int64, source []float32, c models.Candidate) (Outcome, bool, error) {
	emb, err := e.candidateEmbedding(ctx, c)
	if err != nil {
		observability.CandidateFaceFailures.Inc()
		slog.Warn("skip candidate face", "record", sourceID, "candidate", c.ID, "error", err)
		return Outcome{}, false, nil
	}

	distance, err := e.distance(source, emb)
	if err != nil {
		observability.CandidateFaceFailures.Inc()
		slog.Warn("skip candidate face", "record", sourceID, "candidate", c.ID, "error", err)
		return Outcome{}, false, nil
	}
	if distance > e.cfg.FaceTolerance {
		return Outcome{}, false, nil
	}

	confidence := similarity.FaceConfidence(distance)
	out, err := e.record(ctx, sourceID, c, confidence, models.FacialEvidence{
		Distance:   distance,
		Confidence: confidence,
	})
	if err != nil {
		return Outcome{}, false, err
	}
	return out, true, nil
}

func (e *Engine) checkContext(ctx context.Context, sub Submission, c models.Candidate) (Outcome, bool, error) {
	ev := models.ContextEvidence{
		NameSimilarity:     similarity.TextSimilarity(sub.Name, c.Name),
		LocationSimilarity: similarity.TextSimilarity(sub.Location, c.Location),
		AgeSimilarity:      similarity.AgeSimilarity(sub.Age, c.Age),
	}
	combined := similarity.CombinedContextScore(ev.NameSimilarity, ev.LocationSimilarity, ev.AgeSimilarity)
	if combined < e.cfg.ContextThreshold {
		return Outcome{}, false, nil
	}

	out, err := e.record(ctx, sub.RecordID, c, combined*100, ev)
	if err != nil {
		return Outcome{}, false, err
	}
	return out, true, nil
}

func (e *Engine) record(ctx context.Context, sourceID int64, c models.Candidate, score float64, ev models.Evidence) (Outcome, error) {
	candidateID := c.ID
	fact, inserted, err := e.deps.Ledger.RecordMatch(ctx, sourceID, &candidateID, score, ev.Method(), ev)
	if err != nil {
		return Outcome{}, fmt.Errorf("record %s match %d->%d: %w", ev.Method(), sourceID, c.ID, err)
	}

	out := Outcome{
		CandidateID:   c.ID,
		CandidateName: c.Name,
		Score:         score,
		Method:        ev.Method(),
		Recorded:      inserted,
	}
	if fact != nil {
		out.MatchID = fact.ID
	}
	return out, nil
}

// candidateEmbedding prefers the cache and stores fresh extractions in it.
// Cache failures only cost a re-extraction.
func (e *Engine) candidateEmbedding(ctx context.Context, c models.Candidate) ([]float32, error) {
	useCache := e.deps.Cache != nil && c.PhotoKey != ""
	if useCache {
		cached, err := e.deps.Cache.GetEmbedding(ctx, c.ID, c.PhotoKey)
		if err != nil {
			slog.Warn("read cached embedding", "candidate", c.ID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	emb, err := e.extract(c.Photo)
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := e.deps.Cache.PutEmbedding(ctx, c.ID, c.PhotoKey, emb); err != nil {
			slog.Warn("cache embedding", "candidate", c.ID, "error", err)
		}
	}
	return emb, nil
}

// extract shields the run from a misbehaving capability.
func (e *Engine) extract(image []byte) (emb []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			emb, err = nil, fmt.Errorf("extract embedding: panic: %v", r)
		}
	}()

	emb, err = e.deps.Faces.ExtractEmbedding(image)
	if err != nil {
		return nil, err
	}
	if len(emb) == 0 {
		return nil, errors.New("extract embedding: empty embedding")
	}
	return emb, nil
}

func (e *Engine) distance(a, b []float32) (d float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compare faces: panic: %v", r)
		}
	}()
	return e.deps.Faces.Distance(a, b), nil
}

func (e *Engine) alert(ctx context.Context, sub Submission, outcomes []Outcome) error {
	best := outcomes[0]
	for _, o := range outcomes[1:] {
		if o.Score > best.Score {
			best = o
		}
	}

	name := sub.Name
	if name == "" {
		name = fmt.Sprintf("record #%d", sub.RecordID)
	}
	message := fmt.Sprintf("%d potential match(es) for %s. Best: %s via %s (%.1f%%).",
		len(outcomes), name, best.CandidateName, best.Method, best.Score)

	payload := map[string]any{
		"source_id": sub.RecordID,
		"count":     len(outcomes),
		"best":      best,
		"matches":   outcomes,
	}
	if _, err := e.deps.Alerts.Notify(ctx, AlertTitle, message, models.LevelWarning, payload); err != nil {
		return fmt.Errorf("notify matches for %d: %w", sub.RecordID, err)
	}
	return nil
}

func (e *Engine) markPending(ctx context.Context, sourceID int64, outcomes []Outcome) error {
	ids := []int64{sourceID}
	seen := map[int64]bool{sourceID: true}
	for _, o := range outcomes {
		if !seen[o.CandidateID] {
			seen[o.CandidateID] = true
			ids = append(ids, o.CandidateID)
		}
	}

	for _, id := range ids {
		if err := e.deps.Statuses.SetStatus(ctx, id, e.cfg.PendingStatus); err != nil {
			return fmt.Errorf("set status of %d: %w", id, err)
		}
	}
	return nil
}
