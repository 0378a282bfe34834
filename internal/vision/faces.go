package vision

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/mpf/internal/config"
	"github.com/your-org/mpf/internal/observability"
)

// ErrNoFace is returned when a photograph contains no detectable face.
var ErrNoFace = errors.New("no face detected")

const (
	AgeUnavailable = "N/A"
	AgeNotDetected = "Not detected"
	AgeError       = "Error"
)

// FaceService extracts identity embeddings and demographic estimates from
// case photographs. Calls are serialised because the sessions share tensors.
type FaceService struct {
	mu         sync.Mutex
	detector   *Detector
	embedder   *Embedder
	attributes *AttributePredictor
}

// NewFaceService loads det_10g, w600k_r50 and genderage from cfg.ModelsDir.
// The ONNX runtime environment must already be initialised. A missing
// genderage model only disables EstimateAgeGender.
func NewFaceService(cfg config.VisionConfig) (*FaceService, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()

	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")
	attrPath := filepath.Join(cfg.ModelsDir, "genderage.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), opts)
	if err != nil {
		return nil, err
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, opts)
	if err != nil {
		det.Close()
		return nil, err
	}

	slog.Info("loading attribute model", "path", attrPath)
	attr, err := NewAttributePredictor(attrPath, opts)
	if err != nil {
		slog.Warn("age and gender estimation disabled", "error", err)
		attr = nil
	}

	slog.Info("face service ready")
	return &FaceService{detector: det, embedder: emb, attributes: attr}, nil
}

// ExtractEmbedding returns the embedding of the most confident face in a PNG or
// JPEG photo, or ErrNoFace.
func (s *FaceService) ExtractEmbedding(photo []byte) ([]float32, error) {
	img, err := decodePhoto(photo)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	face, err := s.bestFace(img)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	emb, err := s.embedder.Embed(toTensor(face, embInputSize, embNorm))
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return emb, nil
}

// Distance is the cosine distance between embeddings (0..2). A distance of 0.6
// is a cosine similarity of 0.4.
func (s *FaceService) Distance(a, b []float32) float64 {
	return Cosine(a, b)
}

// EstimateAgeGender fills in age and gender for reports that omit them. It
// reports AgeUnavailable when the model is not loaded, AgeNotDetected when the
// photo has no face and AgeError when the photo cannot be processed.
func (s *FaceService) EstimateAgeGender(photo []byte) (age, gender string) {
	if s == nil || s.attributes == nil {
		return AgeUnavailable, AgeUnavailable
	}
	img, err := decodePhoto(photo)
	if err != nil {
		return AgeError, AgeError
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	face, err := s.bestFace(img)
	if errors.Is(err, ErrNoFace) {
		return AgeNotDetected, AgeNotDetected
	}
	if err != nil {
		slog.Warn("estimate age and gender", "error", err)
		return AgeError, AgeError
	}

	start := time.Now()
	ag, err := s.attributes.Predict(toTensor(face, attrInputSize, attrNorm))
	observability.InferenceDuration.WithLabelValues("attrs").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("estimate age and gender", "error", err)
		return AgeError, AgeError
	}
	return ag.AgeField(), ag.Gender
}

func (s *FaceService) bestFace(img image.Image) (image.Image, error) {
	b := img.Bounds()

	start := time.Now()
	dets, err := s.detector.Detect(toTensor(img, detInputSize, detNorm), b.Dx(), b.Dy())
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, ErrNoFace
	}

	// dets is sorted strongest first.
	face := cropFace(img, dets[0])
	if face == nil {
		return nil, ErrNoFace
	}
	return face, nil
}

// Close releases all ONNX sessions.
func (s *FaceService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detector.Close()
	s.embedder.Close()
	if s.attributes != nil {
		s.attributes.Close()
	}
}
