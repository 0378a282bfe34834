package vision

import (
	"fmt"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face found in a photograph, in source pixel coordinates.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
}

func (d Detection) area() float32 {
	return (d.BBox[2] - d.BBox[0]) * (d.BBox[3] - d.BBox[1])
}

const (
	detInputSize    = 640
	anchorsPerCell  = 2
	nmsIoUThreshold = 0.4
)

var detStrides = []int{8, 16, 32}

// Detector runs RetinaFace (det_10g) on still photographs.
type Detector struct {
	model     *onnxModel
	threshold float32
}

// NewDetector loads the detection model. opts may be nil.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	// Output order: scores, boxes, landmarks; each once per stride.
	var outputs []tensorSpec
	names := [3][3]string{
		{"448", "471", "494"},
		{"451", "474", "497"},
		{"454", "477", "500"},
	}
	widths := [3]int64{1, 4, 10}
	for kind := 0; kind < 3; kind++ {
		for si, stride := range detStrides {
			cells := int64(detInputSize/stride) * int64(detInputSize/stride) * anchorsPerCell
			outputs = append(outputs, tensorSpec{names[kind][si], ort.NewShape(cells, widths[kind])})
		}
	}

	model, err := loadModel(modelPath,
		tensorSpec{"input.1", ort.NewShape(1, 3, detInputSize, detInputSize)},
		outputs, opts)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}
	return &Detector{model: model, threshold: threshold}, nil
}

// Detect returns faces above the threshold, strongest first.
// input is the CHW tensor of the photo resized to 640x640.
func (d *Detector) Detect(input []float32, srcW, srcH int) ([]Detection, error) {
	if err := d.model.run(input); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	scaleX := float32(srcW) / detInputSize
	scaleY := float32(srcH) / detInputSize

	var found []Detection
	for si, stride := range detStrides {
		scores := d.model.output(si)
		boxes := d.model.output(si + len(detStrides))
		found = append(found, decodeStride(scores, boxes, stride, d.threshold, scaleX, scaleY, srcW, srcH)...)
	}
	return suppress(found, nmsIoUThreshold), nil
}

func (d *Detector) Close() {
	d.model.Close()
}

// decodeStride turns the anchor distances of one feature map into boxes.
func decodeStride(scores, boxes []float32, stride int, threshold, scaleX, scaleY float32, srcW, srcH int) []Detection {
	side := detInputSize / stride
	st := float32(stride)

	var out []Detection
	for i, score := range scores {
		if score < threshold {
			continue
		}
		cell := i / anchorsPerCell
		ax := float32(cell%side) * st
		ay := float32(cell/side) * st

		b := boxes[i*4 : i*4+4]
		out = append(out, Detection{
			BBox: [4]float32{
				clamp((ax-b[0]*st)*scaleX, 0, float32(srcW)),
				clamp((ay-b[1]*st)*scaleY, 0, float32(srcH)),
				clamp((ax+b[2]*st)*scaleX, 0, float32(srcW)),
				clamp((ay+b[3]*st)*scaleY, 0, float32(srcH)),
			},
			Confidence: score,
		})
	}
	return out
}

// suppress keeps the strongest of every group of overlapping boxes.
func suppress(dets []Detection, maxIoU float32) []Detection {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	var kept []Detection
	for _, d := range dets {
		overlaps := false
		for _, k := range kept {
			if overlap(d, k) > maxIoU {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}

// overlap is the intersection over union of two boxes.
func overlap(a, b Detection) float32 {
	w := math.Min(float64(a.BBox[2]), float64(b.BBox[2])) - math.Max(float64(a.BBox[0]), float64(b.BBox[0]))
	h := math.Min(float64(a.BBox[3]), float64(b.BBox[3])) - math.Max(float64(a.BBox[1]), float64(b.BBox[1]))
	if w <= 0 || h <= 0 {
		return 0
	}
	inter := float32(w * h)
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
