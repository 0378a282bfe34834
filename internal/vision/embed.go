package vision

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	embInputSize = 112
	embDim       = 512
)

// Embedder produces ArcFace (w600k_r50) identity vectors from face crops.
type Embedder struct {
	model *onnxModel
}

func NewEmbedder(modelPath string, opts *ort.SessionOptions) (*Embedder, error) {
	model, err := loadModel(modelPath,
		tensorSpec{"input.1", ort.NewShape(1, 3, embInputSize, embInputSize)},
		[]tensorSpec{{"683", ort.NewShape(1, embDim)}},
		opts)
	if err != nil {
		return nil, fmt.Errorf("load embedder: %w", err)
	}
	return &Embedder{model: model}, nil
}

// Embed returns the unit-length embedding of a 112x112 CHW face tensor.
func (e *Embedder) Embed(face []float32) ([]float32, error) {
	if err := e.model.run(face); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}
	out := make([]float32, embDim)
	copy(out, e.model.output(0))
	normalize(out)
	return out, nil
}

func (e *Embedder) Close() {
	e.model.Close()
}

// normalize scales v to unit L2 norm in place. Zero vectors are left alone.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

// Cosine returns the cosine distance 1-cos(a,b) in [0,2]. For unit embeddings
// this is 1 - a·b. Vectors of different length or zero norm are incomparable
// and yield +Inf.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return math.Inf(1)
	}
	d := 1 - dot/math.Sqrt(na*nb)
	return math.Min(2, math.Max(0, d))
}
