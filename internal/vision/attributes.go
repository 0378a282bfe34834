package vision

import (
	"fmt"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

const attrInputSize = 96

// AgeGender is the estimate for one face.
type AgeGender struct {
	Age    int
	Gender string // "Man" or "Woman"
}

// AgeField renders the age the way case records store it.
func (a AgeGender) AgeField() string {
	return strconv.Itoa(a.Age)
}

// AttributePredictor runs the InsightFace genderage model.
type AttributePredictor struct {
	model *onnxModel
}

func NewAttributePredictor(modelPath string, opts *ort.SessionOptions) (*AttributePredictor, error) {
	model, err := loadModel(modelPath,
		tensorSpec{"data", ort.NewShape(1, 3, attrInputSize, attrInputSize)},
		[]tensorSpec{{"fc1", ort.NewShape(1, 3)}},
		opts)
	if err != nil {
		return nil, fmt.Errorf("load attributes: %w", err)
	}
	return &AttributePredictor{model: model}, nil
}

// Predict estimates age and gender from a 96x96 CHW face tensor.
func (p *AttributePredictor) Predict(face []float32) (AgeGender, error) {
	if err := p.model.run(face); err != nil {
		return AgeGender{}, fmt.Errorf("run attributes: %w", err)
	}
	return decodeAgeGender(p.model.output(0))
}

func (p *AttributePredictor) Close() {
	p.model.Close()
}

// decodeAgeGender reads [female_score, male_score, age/100].
func decodeAgeGender(out []float32) (AgeGender, error) {
	if len(out) < 3 {
		return AgeGender{}, fmt.Errorf("unexpected attribute output size %d", len(out))
	}
	gender := "Woman"
	if out[1] > out[0] {
		gender = "Man"
	}
	age := int(out[2]*100 + 0.5)
	if age < 0 {
		age = 0
	}
	if age > 100 {
		age = 100
	}
	return AgeGender{Age: age, Gender: gender}, nil
}
